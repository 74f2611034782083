// Package migrate upgrades vault containers written by older releases to the
// current schema.
//
// Each historical version has one transformation to the next; upgrades
// compose (v1→v2→v3) so supporting a new schema only ever costs one step.
// Steps re-encrypt under the same supplied passphrase with fresh salts and
// nonces, and they only ever see byte slices. Writing the result anywhere is
// the caller's business, so the source file is never touched.
package migrate

import (
	"crypto/sha256"
	"fmt"

	"github.com/passlock/passlock/internal/codec"
	"github.com/passlock/passlock/internal/crypto"
	"github.com/passlock/passlock/internal/errs"
	"github.com/passlock/passlock/internal/model"
)

// ToCurrent brings container bytes at any supported schema version up to the
// current one and decodes the result. Current-version input is simply
// decoded. Unknown versions are rejected, never guessed.
func ToCurrent(data, passphrase []byte) (*model.Store, codec.Keys, error) {
	for {
		v, err := codec.Version(data)
		if err != nil {
			return nil, codec.Keys{}, err
		}
		switch v {
		case codec.SchemaVersion:
			return codec.Decode(data, passphrase)
		case 1:
			if data, err = stepV1(data, passphrase); err != nil {
				return nil, codec.Keys{}, fmt.Errorf("migrate v1->v2: %w", err)
			}
		case 2:
			if data, err = stepV2(data, passphrase); err != nil {
				return nil, codec.Keys{}, fmt.Errorf("migrate v2->v3: %w", err)
			}
		default:
			return nil, codec.Keys{}, fmt.Errorf("schema version %d: %w", v, errs.ErrUnsupportedVersion)
		}
	}
}

// stepV1 upgrades v1 (SHA-256 passphrase key, per-field encryption) to v2
// (Argon2id key with a header salt, same per-field scheme).
func stepV1(data, passphrase []byte) ([]byte, error) {
	h, err := parseLegacy(data, 1)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(passphrase)
	oldKey := sum[:]
	if err := crypto.CheckToken(oldKey, h.VerificationToken); err != nil {
		return nil, err
	}

	salt, err := crypto.Rand(crypto.SaltLen)
	if err != nil {
		return nil, err
	}
	newKey := crypto.DeriveKey(passphrase, salt)

	if err := h.reseal(oldKey, newKey); err != nil {
		return nil, err
	}
	h.SchemaVersion = 2
	h.KDFSalt = salt
	if h.VerificationToken, err = crypto.NewToken(newKey); err != nil {
		return nil, err
	}
	return h.marshal()
}

// stepV2 upgrades v2 to the current whole-payload format. Per-field
// ciphertexts are opened with the v2 key and the store is re-encoded through
// the codec with a fresh salt.
func stepV2(data, passphrase []byte) ([]byte, error) {
	h, err := parseLegacy(data, 2)
	if err != nil {
		return nil, err
	}
	if len(h.KDFSalt) == 0 {
		return nil, fmt.Errorf("v2 header missing kdf_salt: %w", errs.ErrParse)
	}

	oldKey := crypto.DeriveKey(passphrase, h.KDFSalt)
	if err := crypto.CheckToken(oldKey, h.VerificationToken); err != nil {
		return nil, err
	}

	store, err := h.toStore(oldKey)
	if err != nil {
		return nil, err
	}

	keys, err := codec.NewKeys(passphrase)
	if err != nil {
		return nil, err
	}
	return codec.Encode(store, keys)
}
