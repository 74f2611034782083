package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/passlock/passlock/internal/model"
	"github.com/passlock/passlock/internal/session"
)

const editorHelp = `keys:
  j / k        move down / up
  o or <enter> open entry / edit highlighted field
  n            new entry
  a / p / t    add basic / protected / totp field
  r            rename entry    g  edit tags
  d            delete entry or field (asks first)
  x            reveal / hide protected values
  P            flip field between basic and protected
  /text        filter entries (fuzzy), / alone clears
  w            save           q  quit        Q  quit without saving
  ?            this help
while a prompt is shown, type the value; :c cancels`

// runEditor drives the session loop: read a line, turn it into an event,
// apply it, render the new snapshot. It returns once the session ends.
func runEditor(sess *session.Session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	render(out, sess.Snapshot())
	for !sess.Done() {
		snap := sess.Snapshot()
		if snap.Prompt != "" {
			fmt.Fprintf(out, "%s> ", snap.Prompt)
		} else {
			fmt.Fprint(out, "> ")
		}
		if !sc.Scan() {
			break
		}
		line := sc.Text()
		if line == "?" && snap.Prompt == "" {
			fmt.Fprintln(out, editorHelp)
			continue
		}
		ev := parseEvent(snap, line)
		if ev == nil {
			fmt.Fprintln(out, "unknown command, ? for help")
			continue
		}
		if err := sess.Handle(ev); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		render(out, sess.Snapshot())
	}
	return sc.Err()
}

// parseEvent maps one input line to a session event, or nil when the line
// means nothing in the current state.
func parseEvent(snap session.Snapshot, line string) session.Event {
	if snap.State == session.StateConfirming {
		if line == "y" || line == "Y" {
			return session.Confirm{}
		}
		return session.Cancel{}
	}
	if snap.Prompt != "" {
		if line == ":c" {
			return session.Cancel{}
		}
		return session.Input{Text: line}
	}

	if strings.HasPrefix(line, "/") {
		return session.SetQuery{Query: strings.TrimPrefix(line, "/")}
	}
	switch line {
	case "k":
		return session.MoveUp{}
	case "j":
		return session.MoveDown{}
	case "o", "":
		return session.Select{}
	case "n":
		return session.NewEntry{}
	case "a":
		return session.NewField{Kind: model.KindBasic}
	case "p":
		return session.NewField{Kind: model.KindProtected}
	case "t":
		return session.NewField{Kind: model.KindTOTP}
	case "r":
		return session.RenameEntry{}
	case "g":
		return session.EditTags{}
	case "d":
		return session.Delete{}
	case "x":
		return session.ToggleReveal{}
	case "P":
		return session.ToggleProtect{}
	case "w":
		return session.Save{}
	case "q":
		return session.Quit{}
	case "Q":
		return session.ForceQuit{}
	case ":c":
		return session.Cancel{}
	}
	return nil
}

func render(w io.Writer, snap session.Snapshot) {
	switch snap.State {
	case session.StateBrowsing:
		renderList(w, snap)
	case session.StateEntryFocused:
		renderEntry(w, snap)
	}
	// Editing and confirming states render nothing extra; the prompt is
	// printed by the loop.
}

func renderList(w io.Writer, snap session.Snapshot) {
	if snap.Query != "" {
		fmt.Fprintf(w, "filter: %s\n", snap.Query)
	}
	if len(snap.Entries) == 0 {
		fmt.Fprintln(w, "(no entries)")
		return
	}
	for i, e := range snap.Entries {
		marker := "  "
		if i == snap.Cursor {
			marker = "* "
		}
		if len(e.Tags) > 0 {
			fmt.Fprintf(w, "%s%s [%s]\n", marker, e.Name, strings.Join(e.Tags, ", "))
		} else {
			fmt.Fprintf(w, "%s%s\n", marker, e.Name)
		}
	}
	if snap.Dirty {
		fmt.Fprintln(w, "-- unsaved changes --")
	}
}

func renderEntry(w io.Writer, snap session.Snapshot) {
	e := snap.Entry
	if len(e.Tags) > 0 {
		fmt.Fprintf(w, "%s [%s]\n", e.Name, strings.Join(e.Tags, ", "))
	} else {
		fmt.Fprintln(w, e.Name)
	}
	for i, f := range e.Fields {
		marker := "  "
		if i == e.Cursor {
			marker = "* "
		}
		if f.Kind == model.KindTOTP {
			fmt.Fprintf(w, "%s%s: %s (%ds left)\n", marker, f.Name, f.Display, int(f.Remaining.Seconds()))
		} else {
			fmt.Fprintf(w, "%s%s: %s\n", marker, f.Name, f.Display)
		}
	}
	if snap.Dirty {
		fmt.Fprintln(w, "-- unsaved changes --")
	}
}
