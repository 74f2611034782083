package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/passlock/passlock/internal/model"
	"github.com/passlock/passlock/internal/session"
)

func testSession(t *testing.T, saves *int) *session.Session {
	t.Helper()
	store := model.New()
	idx, err := store.AddEntry("Github")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := store.SetField(idx, 0, model.Field{Name: "login", Value: model.Basic{Text: "alice"}}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	return session.New(store, func(*model.Store) error {
		*saves++
		return nil
	})
}

func Test_parseEvent_Browsing(t *testing.T) {
	var saves int
	snap := testSession(t, &saves).Snapshot()

	cases := map[string]session.Event{
		"k":     session.MoveUp{},
		"j":     session.MoveDown{},
		"o":     session.Select{},
		"":      session.Select{},
		"n":     session.NewEntry{},
		"d":     session.Delete{},
		"w":     session.Save{},
		"q":     session.Quit{},
		"Q":     session.ForceQuit{},
		"/bank": session.SetQuery{Query: "bank"},
	}
	for line, want := range cases {
		if got := parseEvent(snap, line); got != want {
			t.Fatalf("parseEvent(%q) = %#v, want %#v", line, got, want)
		}
	}
	if got := parseEvent(snap, "zz"); got != nil {
		t.Fatalf("parseEvent(zz) = %#v, want nil", got)
	}
}

func Test_parseEvent_PromptTakesInput(t *testing.T) {
	var saves int
	sess := testSession(t, &saves)
	if err := sess.Handle(session.NewEntry{}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	snap := sess.Snapshot()

	if got := parseEvent(snap, "q"); got != (session.Input{Text: "q"}) {
		t.Fatalf("prompt input 'q' = %#v, want Input", got)
	}
	if got := parseEvent(snap, ":c"); got != (session.Cancel{}) {
		t.Fatalf("prompt :c = %#v, want Cancel", got)
	}
}

func Test_parseEvent_Confirming(t *testing.T) {
	var saves int
	sess := testSession(t, &saves)
	if err := sess.Handle(session.Delete{}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	snap := sess.Snapshot()

	if got := parseEvent(snap, "y"); got != (session.Confirm{}) {
		t.Fatalf("confirm y = %#v", got)
	}
	if got := parseEvent(snap, "n"); got != (session.Cancel{}) {
		t.Fatalf("confirm n = %#v", got)
	}
}

func Test_runEditor_Script(t *testing.T) {
	var saves int
	sess := testSession(t, &saves)

	// Create an entry, add a field, save, quit.
	script := strings.Join([]string{
		"n", "Email",
		"a", "address", "alice@example.com",
		"w",
		"q",
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := runEditor(sess, strings.NewReader(script), &out); err != nil {
		t.Fatalf("runEditor: %v", err)
	}
	if !sess.Done() {
		t.Fatalf("session not done after quit")
	}
	if saves != 1 {
		t.Fatalf("saves = %d, want 1", saves)
	}
	if !strings.Contains(out.String(), "address: alice@example.com") {
		t.Fatalf("output missing new field:\n%s", out.String())
	}
}

func Test_runEditor_QuitDirtyAsksFirst(t *testing.T) {
	var saves int
	sess := testSession(t, &saves)

	script := "n\nEmail\nq\nn\nq\ny\n"
	var out bytes.Buffer
	if err := runEditor(sess, strings.NewReader(script), &out); err != nil {
		t.Fatalf("runEditor: %v", err)
	}
	if !sess.Done() {
		t.Fatalf("session not done")
	}
	if saves != 0 {
		t.Fatalf("saves = %d, want 0", saves)
	}
	if !strings.Contains(out.String(), "discard unsaved changes?") {
		t.Fatalf("missing confirmation prompt:\n%s", out.String())
	}
}

func Test_runEditor_EOFEnds(t *testing.T) {
	var saves int
	sess := testSession(t, &saves)
	var out bytes.Buffer
	if err := runEditor(sess, strings.NewReader("j\n"), &out); err != nil {
		t.Fatalf("runEditor: %v", err)
	}
}
