package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/passlock/passlock/internal/errs"
	"github.com/passlock/passlock/internal/model"
	"github.com/passlock/passlock/internal/totp"
)

const seed = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func testSession(t *testing.T) (*Session, *int) {
	t.Helper()

	store := model.New()
	idx, err := store.AddEntry("Github")
	require.NoError(t, err)
	require.NoError(t, store.SetField(idx, 0, model.Field{Name: "login", Value: model.Basic{Text: "alice"}}))
	require.NoError(t, store.SetField(idx, 1, model.Field{Name: "password", Value: model.Protected{Text: "hunter2"}}))
	_, err = store.AddEntry("Bank")
	require.NoError(t, err)
	require.NoError(t, store.SetEntryTags(1, []string{"money"}))

	saves := 0
	s := New(store, func(*model.Store) error {
		saves++
		return nil
	})
	return s, &saves
}

func handle(t *testing.T, s *Session, evs ...Event) {
	t.Helper()
	for _, ev := range evs {
		require.NoError(t, s.Handle(ev))
	}
}

func TestSession_CreateEntry(t *testing.T) {
	s, _ := testSession(t)

	handle(t, s, NewEntry{})
	require.Equal(t, StateFieldEditing, s.Snapshot().State)

	handle(t, s, Input{Text: "Email"})
	snap := s.Snapshot()
	require.Equal(t, StateEntryFocused, snap.State)
	require.Equal(t, "Email", snap.Entry.Name)
	require.True(t, snap.Dirty)

	// Input outside an edit is ignored.
	require.NoError(t, s.Handle(Input{Text: "ignored"}))
}

func TestSession_CreateEntryEmptyNameRejected(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, NewEntry{})
	require.ErrorIs(t, s.Handle(Input{Text: ""}), errs.ErrValidation)
	// Still editing, so the user can retry.
	require.Equal(t, StateFieldEditing, s.Snapshot().State)
}

func TestSession_NewFieldTwoPhase(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, Select{}, NewField{Kind: model.KindBasic})

	snap := s.Snapshot()
	require.Equal(t, "field name", snap.Prompt)
	handle(t, s, Input{Text: "url"})

	snap = s.Snapshot()
	require.Equal(t, "value", snap.Prompt)
	handle(t, s, Input{Text: "https://github.com"})

	snap = s.Snapshot()
	require.Equal(t, StateEntryFocused, snap.State)
	require.Equal(t, "url", snap.Entry.Fields[2].Name)
	require.Equal(t, "https://github.com", snap.Entry.Fields[2].Display)
}

func TestSession_CancelDiscardsEdit(t *testing.T) {
	s, _ := testSession(t)
	before := s.store.Entries[0].LastUpdate

	handle(t, s, Select{}, Select{}, Cancel{})
	snap := s.Snapshot()
	require.Equal(t, StateEntryFocused, snap.State)
	require.Equal(t, "alice", snap.Entry.Fields[0].Display)
	require.True(t, s.store.Entries[0].LastUpdate.Equal(before))
	require.False(t, snap.Dirty)
}

func TestSession_EditFieldValue(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, Select{}, Select{}, Input{Text: "bob"})

	snap := s.Snapshot()
	require.Equal(t, "bob", snap.Entry.Fields[0].Display)
	require.Equal(t, model.KindBasic, snap.Entry.Fields[0].Kind)
	require.True(t, snap.Dirty)
}

func TestSession_ProtectedMaskAndReveal(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, Select{})

	snap := s.Snapshot()
	require.Equal(t, "••••••", snap.Entry.Fields[1].Display)

	handle(t, s, ToggleReveal{})
	require.Equal(t, "hunter2", s.Snapshot().Entry.Fields[1].Display)

	// Editing a protected value must not echo input.
	handle(t, s, ToggleReveal{}, MoveDown{}, Select{})
	require.True(t, s.Snapshot().MaskInput)
}

func TestSession_TOTPLiveCode(t *testing.T) {
	s, _ := testSession(t)
	at := time.Date(2026, 2, 1, 12, 0, 1, 0, time.UTC)
	s.now = func() time.Time { return at }

	handle(t, s, Select{}, NewField{Kind: model.KindTOTP}, Input{Text: "otp"}, Input{Text: seed})

	want, err := totp.Code(seed, totp.DefaultParams(), at)
	require.NoError(t, err)

	snap := s.Snapshot()
	fv := snap.Entry.Fields[2]
	require.Equal(t, model.KindTOTP, fv.Kind)
	require.Equal(t, want, fv.Display)
	require.Equal(t, 29*time.Second, fv.Remaining)

	// Same window, same code; next window, fresh code without any event.
	at = at.Add(10 * time.Second)
	require.Equal(t, want, s.Snapshot().Entry.Fields[2].Display)
	at = at.Add(30 * time.Second)
	require.NotEqual(t, want, s.Snapshot().Entry.Fields[2].Display)
}

func TestSession_BadSeedRejected(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, Select{}, NewField{Kind: model.KindTOTP}, Input{Text: "otp"})
	require.ErrorIs(t, s.Handle(Input{Text: "not base32 at all!!!"}), errs.ErrValidation)
	require.Equal(t, StateFieldEditing, s.Snapshot().State)
	require.Len(t, s.store.Entries[0].Fields, 2)
}

func TestSession_DeleteEntryNeedsConfirmation(t *testing.T) {
	s, _ := testSession(t)

	handle(t, s, Delete{})
	require.Equal(t, StateConfirming, s.Snapshot().State)
	handle(t, s, Cancel{})
	require.Len(t, s.store.Entries, 2)

	handle(t, s, Delete{}, Confirm{})
	require.Len(t, s.store.Entries, 1)
	require.Equal(t, "Bank", s.store.Entries[0].Name)
	require.True(t, s.Dirty())
}

func TestSession_DeleteFieldNeedsConfirmation(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, Select{}, MoveDown{}, Delete{}, Confirm{})

	snap := s.Snapshot()
	require.Equal(t, StateEntryFocused, snap.State)
	require.Len(t, snap.Entry.Fields, 1)
	require.Equal(t, "login", snap.Entry.Fields[0].Name)
}

func TestSession_QuitCleanEndsImmediately(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, Quit{})
	require.True(t, s.Done())
}

func TestSession_QuitDirtyRoutesThroughConfirm(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, NewEntry{}, Input{Text: "Email"}, Quit{})
	require.Equal(t, StateConfirming, s.Snapshot().State)
	require.False(t, s.Done())

	handle(t, s, Cancel{})
	require.False(t, s.Done())

	handle(t, s, Quit{}, Confirm{})
	require.True(t, s.Done())
}

func TestSession_ForceQuitAlwaysEnds(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, NewEntry{}, ForceQuit{})
	require.True(t, s.Done())
}

func TestSession_Save(t *testing.T) {
	s, saves := testSession(t)
	handle(t, s, NewEntry{}, Input{Text: "Email"})
	require.True(t, s.Dirty())

	handle(t, s, Save{})
	require.Equal(t, 1, *saves)
	require.False(t, s.Dirty())
}

func TestSession_SaveMidEditRejected(t *testing.T) {
	s, saves := testSession(t)
	handle(t, s, NewEntry{})
	require.ErrorIs(t, s.Handle(Save{}), errs.ErrValidation)
	require.Equal(t, 0, *saves)
}

func TestSession_SaveErrorKeepsDirty(t *testing.T) {
	store := model.New()
	_, err := store.AddEntry("Github")
	require.NoError(t, err)

	boom := errors.New("disk full")
	s := New(store, func(*model.Store) error { return boom })
	s.dirty = true

	require.ErrorIs(t, s.Handle(Save{}), boom)
	require.True(t, s.Dirty())
}

func TestSession_FuzzyFilter(t *testing.T) {
	s, _ := testSession(t)

	handle(t, s, SetQuery{Query: "money"})
	snap := s.Snapshot()
	require.Len(t, snap.Entries, 1)
	require.Equal(t, "Bank", snap.Entries[0].Name)

	// Select must resolve through the filtered view.
	handle(t, s, Select{})
	require.Equal(t, "Bank", s.Snapshot().Entry.Name)

	handle(t, s, Cancel{}, Cancel{})
	snap = s.Snapshot()
	require.Equal(t, "", snap.Query)
	require.Len(t, snap.Entries, 2)
}

func TestSession_ToggleProtect(t *testing.T) {
	s, _ := testSession(t)
	handle(t, s, Select{}, ToggleProtect{})
	require.Equal(t, model.KindProtected, s.Snapshot().Entry.Fields[0].Kind)
	require.True(t, s.Dirty())
}

// Naming the first entry of a brand-new store must render: there is a prompt
// but no entry to detail yet.
func TestSession_SnapshotWhileNamingFirstEntry(t *testing.T) {
	s := New(model.New(), func(*model.Store) error { return nil })
	handle(t, s, NewEntry{})

	snap := s.Snapshot()
	require.Equal(t, StateFieldEditing, snap.State)
	require.Nil(t, snap.Entry)
	require.Equal(t, "entry name", snap.Prompt)
	require.Empty(t, snap.Entries)
}

// Quit with unsaved changes after deleting the last entry confirms over an
// empty store.
func TestSession_SnapshotConfirmingQuitOnEmptyStore(t *testing.T) {
	s := New(model.New(), func(*model.Store) error { return nil })
	handle(t, s, NewEntry{}, Input{Text: "Github"}, Cancel{}, Delete{}, Confirm{}, Quit{})

	snap := s.Snapshot()
	require.Equal(t, StateConfirming, snap.State)
	require.Nil(t, snap.Entry)
	require.Equal(t, "discard unsaved changes? (y/n)", snap.Prompt)
	require.Empty(t, snap.Entries)
}

// Snapshot must produce a render model in all four states, detailing an entry
// exactly when one is in focus.
func TestSession_SnapshotEveryState(t *testing.T) {
	s, _ := testSession(t)

	snap := s.Snapshot()
	require.Equal(t, StateBrowsing, snap.State)
	require.Nil(t, snap.Entry)
	require.Len(t, snap.Entries, 2)

	handle(t, s, Select{})
	snap = s.Snapshot()
	require.Equal(t, StateEntryFocused, snap.State)
	require.NotNil(t, snap.Entry)
	require.Equal(t, "Github", snap.Entry.Name)

	handle(t, s, RenameEntry{})
	snap = s.Snapshot()
	require.Equal(t, StateFieldEditing, snap.State)
	require.NotNil(t, snap.Entry)

	handle(t, s, Cancel{}, Delete{})
	snap = s.Snapshot()
	require.Equal(t, StateConfirming, snap.State)
	require.NotNil(t, snap.Entry)
	require.Equal(t, "delete field login? (y/n)", snap.Prompt)
}

func TestSession_TimestampsAdvance(t *testing.T) {
	s, _ := testSession(t)
	before := s.store.Entries[0].LastUpdate

	handle(t, s, Select{}, Select{}, Input{Text: "bob"})

	e := s.store.Entries[0]
	require.True(t, e.LastUpdate.After(before))
	require.False(t, s.store.LastUpdate.Before(e.LastUpdate))
}
