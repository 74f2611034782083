package session

import (
	"time"

	"github.com/passlock/passlock/internal/model"
	"github.com/passlock/passlock/internal/totp"
)

const mask = "••••••"

// Snapshot is a read-only view of the session for the rendering layer.
// TOTP codes are computed at snapshot time, so rendering again after a window
// boundary yields the fresh code without any session event.
type Snapshot struct {
	State  State
	Dirty  bool
	Done   bool
	Query  string
	Cursor int
	// Entries lists the visible (filtered) entry list in display order.
	Entries []EntryView
	// Entry is set when one entry is in focus, directly or behind the
	// current prompt or confirmation; nil otherwise.
	Entry *EntryDetail
	// Prompt is set while editing or confirming.
	Prompt string
	// MaskInput tells the input layer not to echo the next line.
	MaskInput bool
}

type EntryView struct {
	Name string
	Tags []string
}

type EntryDetail struct {
	Name   string
	Tags   []string
	Cursor int
	Fields []FieldView
}

type FieldView struct {
	Name string
	Kind model.ValueKind
	// Display is the rendered value: cleartext, a mask, or a live code.
	Display string
	// Remaining is the time left in the current code window, TOTP only.
	Remaining time.Duration
}

// Snapshot renders the current session state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		State:  s.state,
		Dirty:  s.dirty,
		Done:   s.done,
		Query:  s.query,
		Cursor: s.cursor,
	}
	for _, i := range s.visible() {
		e := s.store.Entries[i]
		snap.Entries = append(snap.Entries, EntryView{Name: e.Name, Tags: e.Tags})
	}
	if s.entryFocused() {
		snap.Entry = s.entryDetail()
	}
	snap.Prompt, snap.MaskInput = s.prompt()
	return snap
}

// entryFocused reports whether a specific entry is in focus. Prompts and
// confirmations reached from Browsing (naming a new entry, quit with unsaved
// changes) have none, so rendering them must not touch the entry list.
func (s *Session) entryFocused() bool {
	switch s.state {
	case StateEntryFocused:
		return true
	case StateFieldEditing:
		return s.edit.prior == StateEntryFocused
	case StateConfirming:
		return s.confirm.prior == StateEntryFocused
	default:
		return false
	}
}

func (s *Session) entryDetail() *EntryDetail {
	e := s.store.Entries[s.entryIdx]
	d := &EntryDetail{Name: e.Name, Tags: e.Tags, Cursor: s.fieldCur}
	now := s.now()
	for _, f := range e.Fields {
		fv := FieldView{Name: f.Name, Kind: f.Value.Kind()}
		switch v := f.Value.(type) {
		case model.Basic:
			fv.Display = v.Text
		case model.Protected:
			if s.reveal {
				fv.Display = v.Text
			} else {
				fv.Display = mask
			}
		case model.TOTP:
			code, err := totp.Code(v.Secret, v.Params, now)
			if err != nil {
				fv.Display = "invalid seed"
			} else {
				fv.Display = code
				fv.Remaining = totp.Remaining(v.Params, now)
			}
		}
		d.Fields = append(d.Fields, fv)
	}
	return d
}

func (s *Session) prompt() (string, bool) {
	switch s.state {
	case StateFieldEditing:
		switch s.edit.kind {
		case editEntryName:
			return "entry name", false
		case editEntryRename:
			return "new entry name", false
		case editEntryTags:
			return "tags (comma separated)", false
		case editNewField:
			if s.edit.phase == 0 {
				return "field name", false
			}
			if s.edit.valueKind == model.KindTOTP {
				return "base32 seed", true
			}
			return "value", s.edit.valueKind == model.KindProtected
		case editFieldValue:
			f := s.store.Entries[s.entryIdx].Fields[s.edit.fieldIdx]
			switch f.Value.Kind() {
			case model.KindTOTP:
				return "base32 seed", true
			case model.KindProtected:
				return "value", true
			default:
				return "value", false
			}
		}
	case StateConfirming:
		switch s.confirm.kind {
		case confirmDeleteEntry:
			return "delete entry " + s.store.Entries[s.confirm.entryIdx].Name + "? (y/n)", false
		case confirmDeleteField:
			e := s.store.Entries[s.confirm.entryIdx]
			return "delete field " + e.Fields[s.confirm.fieldIdx].Name + "? (y/n)", false
		case confirmQuit:
			return "discard unsaved changes? (y/n)", false
		}
	}
	return "", false
}
