// Package session implements the interactive editing loop over a decrypted
// store. It is a state machine driven by discrete input events and owns the
// store exclusively for its lifetime; the terminal layer only ever sees
// read-only snapshots.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/passlock/passlock/internal/errs"
	"github.com/passlock/passlock/internal/model"
	"github.com/passlock/passlock/internal/totp"
)

// State identifies what the session is currently focused on.
type State int

const (
	// StateBrowsing shows the entry list.
	StateBrowsing State = iota
	// StateEntryFocused shows the fields of one entry.
	StateEntryFocused
	// StateFieldEditing collects text input for a pending edit.
	StateFieldEditing
	// StateConfirming awaits confirmation of a destructive action.
	StateConfirming
)

func (s State) String() string {
	switch s {
	case StateBrowsing:
		return "browsing"
	case StateEntryFocused:
		return "entry"
	case StateFieldEditing:
		return "editing"
	case StateConfirming:
		return "confirming"
	default:
		return "unknown"
	}
}

// Event is one discrete user input. Events that make no sense in the current
// state are ignored, except Save mid-edit which is rejected explicitly.
type Event interface{ event() }

type (
	// MoveUp and MoveDown move the cursor over entries or fields.
	MoveUp   struct{}
	MoveDown struct{}
	// Select opens the highlighted entry, or begins editing the
	// highlighted field when an entry is already open.
	Select struct{}
	// Cancel backs out one level: discards an in-progress edit, dismisses
	// a confirmation, closes an entry, or clears the search filter.
	Cancel struct{}
	// NewEntry prompts for the name of a fresh entry.
	NewEntry struct{}
	// NewField prompts for a field name, then its value.
	NewField struct{ Kind model.ValueKind }
	// RenameEntry and EditTags prompt for the open entry's name and tags.
	RenameEntry struct{}
	EditTags    struct{}
	// Delete asks to remove the highlighted entry or field.
	Delete struct{}
	// ToggleReveal shows or masks protected values in the open entry.
	ToggleReveal struct{}
	// ToggleProtect flips the highlighted field between basic and
	// protected.
	ToggleProtect struct{}
	// SetQuery replaces the fuzzy search filter over the entry list.
	SetQuery struct{ Query string }
	// Input delivers one committed line of text to a pending prompt.
	Input struct{ Text string }
	// Confirm approves the pending destructive action.
	Confirm struct{}
	// Save writes the store out through the session's save function.
	Save struct{}
	// Quit ends the session, routing through a confirmation when there
	// are unsaved changes. ForceQuit ends it unconditionally.
	Quit      struct{}
	ForceQuit struct{}
)

func (MoveUp) event()        {}
func (MoveDown) event()      {}
func (Select) event()        {}
func (Cancel) event()        {}
func (NewEntry) event()      {}
func (NewField) event()      {}
func (RenameEntry) event()   {}
func (EditTags) event()      {}
func (Delete) event()        {}
func (ToggleReveal) event()  {}
func (ToggleProtect) event() {}
func (SetQuery) event()      {}
func (Input) event()         {}
func (Confirm) event()       {}
func (Save) event()          {}
func (Quit) event()          {}
func (ForceQuit) event()     {}

type editKind int

const (
	editEntryName editKind = iota
	editEntryRename
	editEntryTags
	editNewField
	editFieldValue
)

type edit struct {
	kind      editKind
	valueKind model.ValueKind
	name      string
	phase     int
	fieldIdx  int
	prior     State
}

type confirmKind int

const (
	confirmDeleteEntry confirmKind = iota
	confirmDeleteField
	confirmQuit
)

type confirm struct {
	kind     confirmKind
	entryIdx int
	fieldIdx int
	prior    State
}

// Session drives one editing run over a store. The zero value is not usable;
// construct with New.
type Session struct {
	store *model.Store
	save  func(*model.Store) error
	now   func() time.Time

	state    State
	query    string
	cursor   int
	entryIdx int
	fieldCur int
	reveal   bool
	dirty    bool
	done     bool

	edit    edit
	confirm confirm
}

// New builds a session over store. save is invoked by the Save event with the
// current store; the session itself never touches the filesystem.
func New(store *model.Store, save func(*model.Store) error) *Session {
	return &Session{store: store, save: save, now: time.Now}
}

// Done reports whether the session has ended.
func (s *Session) Done() bool { return s.done }

// Dirty reports whether the store has unsaved changes.
func (s *Session) Dirty() bool { return s.dirty }

// Handle applies one input event. Validation failures leave the session in a
// state where the user can retry or cancel.
func (s *Session) Handle(ev Event) error {
	if _, ok := ev.(ForceQuit); ok {
		s.done = true
		return nil
	}
	switch s.state {
	case StateBrowsing:
		return s.handleBrowsing(ev)
	case StateEntryFocused:
		return s.handleEntryFocused(ev)
	case StateFieldEditing:
		return s.handleFieldEditing(ev)
	case StateConfirming:
		return s.handleConfirming(ev)
	}
	return nil
}

// visible returns the store indices of entries matching the current filter,
// in display order.
func (s *Session) visible() []int {
	if s.query == "" {
		idx := make([]int, len(s.store.Entries))
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	hay := make([]string, len(s.store.Entries))
	for i, e := range s.store.Entries {
		hay[i] = e.Name + " " + strings.Join(e.Tags, " ")
	}
	matches := fuzzy.Find(s.query, hay)
	idx := make([]int, len(matches))
	for i, m := range matches {
		idx[i] = m.Index
	}
	return idx
}

func (s *Session) clampCursor(n int) {
	if s.cursor >= n {
		s.cursor = n - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}

func (s *Session) handleBrowsing(ev Event) error {
	vis := s.visible()
	switch ev := ev.(type) {
	case MoveUp:
		if s.cursor > 0 {
			s.cursor--
		}
	case MoveDown:
		if s.cursor < len(vis)-1 {
			s.cursor++
		}
	case Select:
		if len(vis) == 0 {
			return nil
		}
		s.entryIdx = vis[s.cursor]
		s.fieldCur = 0
		s.reveal = false
		s.state = StateEntryFocused
	case SetQuery:
		s.query = ev.Query
		s.cursor = 0
	case Cancel:
		s.query = ""
		s.cursor = 0
	case NewEntry:
		s.beginEdit(edit{kind: editEntryName, prior: StateBrowsing})
	case Delete:
		if len(vis) == 0 {
			return nil
		}
		s.beginConfirm(confirm{kind: confirmDeleteEntry, entryIdx: vis[s.cursor], prior: StateBrowsing})
	case Save:
		return s.doSave()
	case Quit:
		return s.doQuit()
	}
	return nil
}

func (s *Session) handleEntryFocused(ev Event) error {
	e := &s.store.Entries[s.entryIdx]
	switch ev := ev.(type) {
	case MoveUp:
		if s.fieldCur > 0 {
			s.fieldCur--
		}
	case MoveDown:
		if s.fieldCur < len(e.Fields)-1 {
			s.fieldCur++
		}
	case Select:
		if len(e.Fields) == 0 {
			return nil
		}
		s.beginEdit(edit{kind: editFieldValue, fieldIdx: s.fieldCur, prior: StateEntryFocused})
	case NewField:
		s.beginEdit(edit{kind: editNewField, valueKind: ev.Kind, prior: StateEntryFocused})
	case RenameEntry:
		s.beginEdit(edit{kind: editEntryRename, prior: StateEntryFocused})
	case EditTags:
		s.beginEdit(edit{kind: editEntryTags, prior: StateEntryFocused})
	case Delete:
		if len(e.Fields) == 0 {
			return nil
		}
		s.beginConfirm(confirm{kind: confirmDeleteField, entryIdx: s.entryIdx, fieldIdx: s.fieldCur, prior: StateEntryFocused})
	case ToggleReveal:
		s.reveal = !s.reveal
	case ToggleProtect:
		if len(e.Fields) == 0 {
			return nil
		}
		if err := s.store.ToggleProtection(s.entryIdx, s.fieldCur); err != nil {
			return err
		}
		s.dirty = true
	case Cancel:
		s.state = StateBrowsing
		s.reveal = false
	case Save:
		return s.doSave()
	case Quit:
		return s.doQuit()
	}
	return nil
}

func (s *Session) beginEdit(e edit) {
	s.edit = e
	s.state = StateFieldEditing
}

func (s *Session) beginConfirm(c confirm) {
	s.confirm = c
	s.state = StateConfirming
}

func (s *Session) handleFieldEditing(ev Event) error {
	switch ev := ev.(type) {
	case Cancel:
		s.state = s.edit.prior
		return nil
	case Save:
		return fmt.Errorf("cannot save mid-edit: %w", errs.ErrValidation)
	case Input:
		return s.applyInput(ev.Text)
	}
	return nil
}

func (s *Session) applyInput(text string) error {
	switch s.edit.kind {
	case editEntryName:
		idx, err := s.store.AddEntry(text)
		if err != nil {
			return err
		}
		s.dirty = true
		s.entryIdx = idx
		s.fieldCur = 0
		s.reveal = false
		s.state = StateEntryFocused
	case editEntryRename:
		if err := s.store.SetEntryName(s.entryIdx, text); err != nil {
			return err
		}
		s.dirty = true
		s.state = StateEntryFocused
	case editEntryTags:
		if err := s.store.SetEntryTags(s.entryIdx, splitTags(text)); err != nil {
			return err
		}
		s.dirty = true
		s.state = StateEntryFocused
	case editNewField:
		if s.edit.phase == 0 {
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("field name must not be empty: %w", errs.ErrValidation)
			}
			s.edit.name = text
			s.edit.phase = 1
			return nil
		}
		val, err := newValue(s.edit.valueKind, text)
		if err != nil {
			return err
		}
		n := len(s.store.Entries[s.entryIdx].Fields)
		if err := s.store.SetField(s.entryIdx, n, model.Field{Name: s.edit.name, Value: val}); err != nil {
			return err
		}
		s.dirty = true
		s.fieldCur = n
		s.state = StateEntryFocused
	case editFieldValue:
		f := s.store.Entries[s.entryIdx].Fields[s.edit.fieldIdx]
		val, err := replaceValue(f.Value, text)
		if err != nil {
			return err
		}
		f.Value = val
		if err := s.store.SetField(s.entryIdx, s.edit.fieldIdx, f); err != nil {
			return err
		}
		s.dirty = true
		s.state = StateEntryFocused
	}
	return nil
}

// newValue builds a field value of the requested kind from raw input. TOTP
// input is the base32 seed and is validated up front so a bad seed never
// lands in the store.
func newValue(kind model.ValueKind, text string) (model.Value, error) {
	switch kind {
	case model.KindBasic:
		return model.Basic{Text: text}, nil
	case model.KindProtected:
		return model.Protected{Text: text}, nil
	case model.KindTOTP:
		if _, err := totp.DecodeSecret(text); err != nil {
			return nil, err
		}
		return model.TOTP{Secret: text, Params: totp.DefaultParams()}, nil
	default:
		return nil, fmt.Errorf("unknown field kind: %w", errs.ErrValidation)
	}
}

// replaceValue keeps the variant of an existing value and swaps its content.
func replaceValue(old model.Value, text string) (model.Value, error) {
	switch v := old.(type) {
	case model.Basic:
		return model.Basic{Text: text}, nil
	case model.Protected:
		return model.Protected{Text: text}, nil
	case model.TOTP:
		if _, err := totp.DecodeSecret(text); err != nil {
			return nil, err
		}
		v.Secret = text
		return v, nil
	default:
		return nil, fmt.Errorf("unknown field kind: %w", errs.ErrValidation)
	}
}

func (s *Session) handleConfirming(ev Event) error {
	switch ev.(type) {
	case Cancel:
		s.state = s.confirm.prior
		return nil
	case Confirm:
		return s.applyConfirm()
	}
	return nil
}

func (s *Session) applyConfirm() error {
	switch s.confirm.kind {
	case confirmDeleteEntry:
		if err := s.store.RemoveEntry(s.confirm.entryIdx); err != nil {
			return err
		}
		s.dirty = true
		s.state = StateBrowsing
		s.clampCursor(len(s.visible()))
	case confirmDeleteField:
		if err := s.store.RemoveField(s.confirm.entryIdx, s.confirm.fieldIdx); err != nil {
			return err
		}
		s.dirty = true
		s.state = StateEntryFocused
		if n := len(s.store.Entries[s.entryIdx].Fields); s.fieldCur >= n && s.fieldCur > 0 {
			s.fieldCur = n - 1
		}
	case confirmQuit:
		s.done = true
	}
	return nil
}

func (s *Session) doSave() error {
	if err := s.save(s.store); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *Session) doQuit() error {
	if s.dirty {
		s.beginConfirm(confirm{kind: confirmQuit, prior: s.state})
		return nil
	}
	s.done = true
	return nil
}

func splitTags(text string) []string {
	var tags []string
	for _, t := range strings.Split(text, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
