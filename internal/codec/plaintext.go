package codec

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/passlock/passlock/internal/errs"
	"github.com/passlock/passlock/internal/model"
)

// plainFile is the unencrypted export of a whole store. It exists only for
// the explicit export/import commands and is never written by the core.
type plainFile struct {
	LastUpdate Timestamp   `yaml:"last_update"`
	Entries    []wireEntry `yaml:"entries"`
}

// EncodePlaintext renders the store with all protection removed. The caller
// decides whether the bytes ever reach a disk.
func EncodePlaintext(s *model.Store) ([]byte, error) {
	entries, err := toWireEntries(s)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(plainFile{
		LastUpdate: NewTimestamp(s.LastUpdate),
		Entries:    entries,
	})
}

// DecodePlaintext rebuilds a store from an EncodePlaintext export. Entries
// without IDs (hand-written files) get fresh ones.
func DecodePlaintext(data []byte) (*model.Store, error) {
	var pf plainFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("unmarshal plaintext export: %w", errs.ErrParse)
	}
	entries, err := fromWireEntries(pf.Entries)
	if err != nil {
		return nil, err
	}
	return &model.Store{Entries: entries, LastUpdate: pf.LastUpdate.Time()}, nil
}
