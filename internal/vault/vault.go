// Package vault ties the codec, crypto and migration layers to the
// filesystem. It is the only package that reads or writes store files; the
// session layer works purely in memory and calls back into Save.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/passlock/passlock/internal/codec"
	"github.com/passlock/passlock/internal/errs"
	"github.com/passlock/passlock/internal/migrate"
	"github.com/passlock/passlock/internal/model"
)

type Vault struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Vault {
	if log == nil {
		log = zap.NewNop()
	}
	return &Vault{log: log}
}

// Create writes a fresh empty store to path and returns it with its keys.
// An existing file is never overwritten.
func (v *Vault) Create(path string, passphrase []byte) (*model.Store, codec.Keys, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, codec.Keys{}, fmt.Errorf("%s already exists: %w", path, errs.ErrIO)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, codec.Keys{}, fmt.Errorf("stat %s: %v: %w", path, err, errs.ErrIO)
	}

	keys, err := codec.NewKeys(passphrase)
	if err != nil {
		return nil, codec.Keys{}, err
	}
	store := model.New()
	if err := v.Save(store, keys, path); err != nil {
		return nil, codec.Keys{}, err
	}
	v.log.Info("created store", zap.String("path", path))
	return store, keys, nil
}

// Open reads and decrypts the store at path. Files written by older releases
// are upgraded in memory; the file itself is rewritten only on the next save.
func (v *Vault) Open(path string, passphrase []byte) (*model.Store, codec.Keys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, codec.Keys{}, fmt.Errorf("read %s: %v: %w", path, err, errs.ErrIO)
	}

	ver, err := codec.Version(data)
	if err != nil {
		return nil, codec.Keys{}, err
	}
	if ver == codec.SchemaVersion {
		return codec.Decode(data, passphrase)
	}

	v.log.Info("upgrading store in memory",
		zap.String("path", path),
		zap.Int("from_version", ver),
	)
	return migrate.ToCurrent(data, passphrase)
}

// Save encodes the store and replaces path atomically. The temporary file is
// created in the target directory so the final rename cannot cross
// filesystems; a crash mid-save leaves the previous file intact.
func (v *Vault) Save(store *model.Store, keys codec.Keys, path string) error {
	data, err := codec.Encode(store, keys)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".passlock-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %v: %w", dir, err, errs.ErrIO)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %v: %w", tmp.Name(), err, errs.ErrIO)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %v: %w", tmp.Name(), err, errs.ErrIO)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %v: %w", tmp.Name(), err, errs.ErrIO)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod %s: %v: %w", tmp.Name(), err, errs.ErrIO)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %v: %w", path, err, errs.ErrIO)
	}

	v.log.Info("saved store",
		zap.String("path", path),
		zap.Int("entries", len(store.Entries)),
	)
	return nil
}

// Migrate upgrades the file at inPath and writes the result to outPath. The
// source file is never modified, and outPath must not already exist.
func (v *Vault) Migrate(inPath, outPath string, passphrase []byte) error {
	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("%s already exists: %w", outPath, errs.ErrIO)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %v: %w", outPath, err, errs.ErrIO)
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read %s: %v: %w", inPath, err, errs.ErrIO)
	}
	store, keys, err := migrate.ToCurrent(data, passphrase)
	if err != nil {
		return err
	}
	if err := v.Save(store, keys, outPath); err != nil {
		return err
	}
	v.log.Info("migrated store",
		zap.String("from", inPath),
		zap.String("to", outPath),
	)
	return nil
}

// ExportPlaintext serializes the store with all encryption removed. The
// bytes are only ever handed back to the caller; nothing here writes them.
func (v *Vault) ExportPlaintext(store *model.Store) ([]byte, error) {
	return codec.EncodePlaintext(store)
}

// ImportPlaintext parses an export back into a store. The caller still has
// to save it to get an encrypted file.
func (v *Vault) ImportPlaintext(data []byte) (*model.Store, error) {
	return codec.DecodePlaintext(data)
}
