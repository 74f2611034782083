// Package model defines the in-memory record store mutated by the editor
// session and persisted by the codec.
package model

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/passlock/passlock/internal/errs"
	"github.com/passlock/passlock/internal/totp"
)

// ValueKind discriminates the closed set of field value variants.
type ValueKind int

const (
	KindBasic ValueKind = iota
	KindProtected
	KindTOTP
)

func (k ValueKind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindProtected:
		return "protected"
	case KindTOTP:
		return "totp"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value is the sealed sum of field value variants. The set is fixed
// (Basic/Protected/TOTP); consumers dispatch with a type switch.
type Value interface {
	Kind() ValueKind
	sealed()
}

// Basic is a plaintext value, stored and displayed as-is.
type Basic struct {
	Text string
}

// Protected is a sensitive string. It lives in the clear in memory but is
// masked in render output and flagged on plaintext export; on disk it is only
// ever inside the encrypted payload.
type Protected struct {
	Text string
}

// TOTP holds a one-time-password seed and its derivation parameters. The
// seed is as sensitive as a Protected value.
type TOTP struct {
	Secret string // base32
	Issuer string
	Params totp.Params
}

func (Basic) Kind() ValueKind     { return KindBasic }
func (Protected) Kind() ValueKind { return KindProtected }
func (TOTP) Kind() ValueKind      { return KindTOTP }

func (Basic) sealed()     {}
func (Protected) sealed() {}
func (TOTP) sealed()      {}

// Field is a named value inside an entry.
type Field struct {
	Name  string
	Value Value
}

// Entry is one logical secret record. Field order is user-significant.
// Duplicate entry names are allowed; the ID (and list position) disambiguate.
type Entry struct {
	ID         uuid.UUID
	Name       string
	Tags       []string
	Fields     []Field
	FirstAdded time.Time
	LastUpdate time.Time
}

// Store is the root aggregate, exclusively owned by one session.
// Entries keep their insertion order.
type Store struct {
	Entries    []Entry
	LastUpdate time.Time
}

// New returns an empty store stamped with the current time.
func New() *Store {
	return &Store{LastUpdate: time.Now()}
}

// now returns a timestamp strictly after prev, so last_update advances even
// on coarse clocks.
func now(prev time.Time) time.Time {
	t := time.Now()
	if !t.After(prev) {
		t = prev.Add(time.Nanosecond)
	}
	return t
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", errs.ErrValidation)
	}
	return nil
}

// AddEntry appends a new empty entry and returns its index.
func (s *Store) AddEntry(name string) (int, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return 0, err
	}
	t := now(s.LastUpdate)
	s.Entries = append(s.Entries, Entry{
		ID:         id,
		Name:       name,
		FirstAdded: t,
		LastUpdate: t,
	})
	s.LastUpdate = t
	return len(s.Entries) - 1, nil
}

// RemoveEntry deletes the entry at idx, preserving the order of the rest.
func (s *Store) RemoveEntry(idx int) error {
	if idx < 0 || idx >= len(s.Entries) {
		return fmt.Errorf("entry index %d out of range: %w", idx, errs.ErrValidation)
	}
	s.Entries = append(s.Entries[:idx], s.Entries[idx+1:]...)
	s.LastUpdate = now(s.LastUpdate)
	return nil
}

// touch stamps the entry and the store with the same instant. Every mutator
// below goes through it, which is what keeps Store.LastUpdate >= any
// Entry.LastUpdate >= Entry.FirstAdded.
func (s *Store) touch(idx int) {
	e := &s.Entries[idx]
	t := now(e.LastUpdate)
	if !t.After(s.LastUpdate) {
		t = s.LastUpdate.Add(time.Nanosecond)
	}
	e.LastUpdate = t
	s.LastUpdate = t
}

// SetEntryName renames the entry at idx.
func (s *Store) SetEntryName(idx int, name string) error {
	if idx < 0 || idx >= len(s.Entries) {
		return fmt.Errorf("entry index %d out of range: %w", idx, errs.ErrValidation)
	}
	if err := validName(name); err != nil {
		return err
	}
	s.Entries[idx].Name = name
	s.touch(idx)
	return nil
}

// SetEntryTags replaces the tag set of the entry at idx.
func (s *Store) SetEntryTags(idx int, tags []string) error {
	if idx < 0 || idx >= len(s.Entries) {
		return fmt.Errorf("entry index %d out of range: %w", idx, errs.ErrValidation)
	}
	s.Entries[idx].Tags = tags
	s.touch(idx)
	return nil
}

// SetField writes field at position fieldIdx of entry idx; fieldIdx equal to
// the current field count appends.
func (s *Store) SetField(idx, fieldIdx int, f Field) error {
	if idx < 0 || idx >= len(s.Entries) {
		return fmt.Errorf("entry index %d out of range: %w", idx, errs.ErrValidation)
	}
	if err := validName(f.Name); err != nil {
		return err
	}
	if f.Value == nil {
		return fmt.Errorf("field %q has no value: %w", f.Name, errs.ErrValidation)
	}
	e := &s.Entries[idx]
	switch {
	case fieldIdx == len(e.Fields):
		e.Fields = append(e.Fields, f)
	case fieldIdx >= 0 && fieldIdx < len(e.Fields):
		e.Fields[fieldIdx] = f
	default:
		return fmt.Errorf("field index %d out of range: %w", fieldIdx, errs.ErrValidation)
	}
	s.touch(idx)
	return nil
}

// RemoveField deletes field fieldIdx from entry idx.
func (s *Store) RemoveField(idx, fieldIdx int) error {
	if idx < 0 || idx >= len(s.Entries) {
		return fmt.Errorf("entry index %d out of range: %w", idx, errs.ErrValidation)
	}
	e := &s.Entries[idx]
	if fieldIdx < 0 || fieldIdx >= len(e.Fields) {
		return fmt.Errorf("field index %d out of range: %w", fieldIdx, errs.ErrValidation)
	}
	e.Fields = append(e.Fields[:fieldIdx], e.Fields[fieldIdx+1:]...)
	s.touch(idx)
	return nil
}

// ToggleProtection flips a field between Basic and Protected. TOTP fields
// cannot be unprotected.
func (s *Store) ToggleProtection(idx, fieldIdx int) error {
	if idx < 0 || idx >= len(s.Entries) {
		return fmt.Errorf("entry index %d out of range: %w", idx, errs.ErrValidation)
	}
	e := &s.Entries[idx]
	if fieldIdx < 0 || fieldIdx >= len(e.Fields) {
		return fmt.Errorf("field index %d out of range: %w", fieldIdx, errs.ErrValidation)
	}
	switch v := e.Fields[fieldIdx].Value.(type) {
	case Basic:
		e.Fields[fieldIdx].Value = Protected{Text: v.Text}
	case Protected:
		e.Fields[fieldIdx].Value = Basic{Text: v.Text}
	case TOTP:
		return fmt.Errorf("totp fields stay protected: %w", errs.ErrValidation)
	}
	s.touch(idx)
	return nil
}
