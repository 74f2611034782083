// Package codec serializes the record store to and from the encrypted
// on-disk container.
//
// The container is YAML with a plaintext header (schema_version,
// verification_token, kdf_salt, iv, last_update) and a single encrypted
// entries payload. The header stays readable before decryption so the crypto
// engine can verify the passphrase and locate the payload nonce; everything
// about the entries themselves lives inside the payload.
package codec

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"gopkg.in/yaml.v3"

	"github.com/passlock/passlock/internal/crypto"
	"github.com/passlock/passlock/internal/errs"
	"github.com/passlock/passlock/internal/model"
	"github.com/passlock/passlock/internal/totp"
)

// SchemaVersion is the current on-disk format version.
const SchemaVersion = 3

// Keys carries the session key material: the derived vault key and the KDF
// salt it was derived with. It is passed explicitly wherever encryption
// happens; nothing holds it as ambient state.
type Keys struct {
	Key  []byte
	Salt []byte
}

// NewKeys generates a fresh salt and derives the vault key from passphrase.
func NewKeys(passphrase []byte) (Keys, error) {
	salt, err := crypto.Rand(crypto.SaltLen)
	if err != nil {
		return Keys{}, err
	}
	return KeysFrom(passphrase, salt), nil
}

// KeysFrom derives the vault key from passphrase and a known salt.
func KeysFrom(passphrase, salt []byte) Keys {
	return Keys{Key: crypto.DeriveKey(passphrase, salt), Salt: salt}
}

// Binary is a byte slice serialized as a base64 string, keeping the
// container diffable as text.
type Binary []byte

func (b Binary) MarshalYAML() (any, error) {
	return base64.StdEncoding.EncodeToString(b), nil
}

func (b *Binary) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("binary field: %w", errs.ErrParse)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("bad base64: %w", errs.ErrParse)
	}
	*b = raw
	return nil
}

// Timestamp is the wire shape of a point in time.
type Timestamp struct {
	Secs  int64 `yaml:"secs_since_epoch"`
	Nanos int64 `yaml:"nanos_since_epoch"`
}

// NewTimestamp converts a time.Time to its wire shape.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Secs: t.Unix(), Nanos: int64(t.Nanosecond())}
}

// Time converts back to time.Time (UTC).
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Secs, ts.Nanos).UTC()
}

// header is the plaintext part of the container.
type header struct {
	SchemaVersion     int       `yaml:"schema_version"`
	VerificationToken Binary    `yaml:"verification_token"`
	KDFSalt           Binary    `yaml:"kdf_salt"`
	IV                Binary    `yaml:"iv"`
	LastUpdate        Timestamp `yaml:"last_update"`
	Entries           Binary    `yaml:"entries"`
}

// wire shapes of the decrypted payload

type wireStore struct {
	Entries []wireEntry `yaml:"entries"`
}

type wireEntry struct {
	ID         string      `yaml:"id"`
	Name       string      `yaml:"name"`
	Tags       []string    `yaml:"tags,omitempty"`
	Fields     []wireField `yaml:"fields,omitempty"`
	FirstAdded Timestamp   `yaml:"first_added"`
	LastUpdate Timestamp   `yaml:"last_update"`
}

type wireField struct {
	Name  string    `yaml:"name"`
	Value wireValue `yaml:"value"`
}

// wireValue is the kind-tagged union of field value variants.
type wireValue struct {
	Kind   string `yaml:"kind"`
	Text   string `yaml:"text,omitempty"`
	Secret string `yaml:"secret,omitempty"`
	Issuer string `yaml:"issuer,omitempty"`
	Digits int    `yaml:"digits,omitempty"`
	Period int    `yaml:"period,omitempty"` // seconds
	Algo   string `yaml:"algorithm,omitempty"`
}

func toWireValue(v model.Value) (wireValue, error) {
	switch v := v.(type) {
	case model.Basic:
		return wireValue{Kind: "basic", Text: v.Text}, nil
	case model.Protected:
		return wireValue{Kind: "protected", Text: v.Text}, nil
	case model.TOTP:
		return wireValue{
			Kind:   "totp",
			Secret: v.Secret,
			Issuer: v.Issuer,
			Digits: v.Params.Digits,
			Period: int(v.Params.Period / time.Second),
			Algo:   string(v.Params.Algorithm),
		}, nil
	default:
		return wireValue{}, fmt.Errorf("unknown value kind %T: %w", v, errs.ErrParse)
	}
}

func fromWireValue(w wireValue) (model.Value, error) {
	switch w.Kind {
	case "basic":
		return model.Basic{Text: w.Text}, nil
	case "protected":
		return model.Protected{Text: w.Text}, nil
	case "totp":
		return model.TOTP{
			Secret: w.Secret,
			Issuer: w.Issuer,
			Params: totp.Params{
				Digits:    w.Digits,
				Period:    time.Duration(w.Period) * time.Second,
				Algorithm: totp.Algorithm(w.Algo),
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown value kind %q: %w", w.Kind, errs.ErrParse)
	}
}

func toWireEntries(s *model.Store) ([]wireEntry, error) {
	out := make([]wireEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		we := wireEntry{
			ID:         e.ID.String(),
			Name:       e.Name,
			Tags:       e.Tags,
			FirstAdded: NewTimestamp(e.FirstAdded),
			LastUpdate: NewTimestamp(e.LastUpdate),
		}
		for _, f := range e.Fields {
			wv, err := toWireValue(f.Value)
			if err != nil {
				return nil, fmt.Errorf("entry %q, field %q: %w", e.Name, f.Name, err)
			}
			we.Fields = append(we.Fields, wireField{Name: f.Name, Value: wv})
		}
		out = append(out, we)
	}
	return out, nil
}

func fromWireEntries(ws []wireEntry) ([]model.Entry, error) {
	out := make([]model.Entry, 0, len(ws))
	for _, we := range ws {
		if we.Name == "" {
			return nil, fmt.Errorf("entry with empty name: %w", errs.ErrParse)
		}
		id := uuid.Nil
		if we.ID != "" {
			var err error
			if id, err = uuid.FromString(we.ID); err != nil {
				return nil, fmt.Errorf("entry %q: bad id: %w", we.Name, errs.ErrParse)
			}
		}
		if id.IsNil() {
			// pre-ID formats and hand-written imports get one assigned
			var err error
			if id, err = uuid.NewV4(); err != nil {
				return nil, err
			}
		}
		e := model.Entry{
			ID:         id,
			Name:       we.Name,
			Tags:       we.Tags,
			FirstAdded: we.FirstAdded.Time(),
			LastUpdate: we.LastUpdate.Time(),
		}
		for _, wf := range we.Fields {
			if wf.Name == "" {
				return nil, fmt.Errorf("entry %q: field with empty name: %w", we.Name, errs.ErrParse)
			}
			v, err := fromWireValue(wf.Value)
			if err != nil {
				return nil, fmt.Errorf("entry %q, field %q: %w", we.Name, wf.Name, err)
			}
			e.Fields = append(e.Fields, model.Field{Name: wf.Name, Value: v})
		}
		out = append(out, e)
	}
	return out, nil
}

// Encode serializes and encrypts the store. The payload nonce (header IV)
// and the verification token are regenerated on every call, so no two
// encodings share a nonce.
func Encode(s *model.Store, k Keys) ([]byte, error) {
	entries, err := toWireEntries(s)
	if err != nil {
		return nil, err
	}
	payload, err := yaml.Marshal(wireStore{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	iv, err := crypto.Rand(crypto.NonceLen)
	if err != nil {
		return nil, err
	}
	ct, err := crypto.Seal(k.Key, iv, payload)
	if err != nil {
		return nil, err
	}
	token, err := crypto.NewToken(k.Key)
	if err != nil {
		return nil, err
	}

	h := header{
		SchemaVersion:     SchemaVersion,
		VerificationToken: token,
		KDFSalt:           k.Salt,
		IV:                iv,
		LastUpdate:        NewTimestamp(s.LastUpdate),
		Entries:           ct,
	}
	return yaml.Marshal(h)
}

// Version reads the schema_version header without touching anything
// encrypted.
func Version(data []byte) (int, error) {
	var probe struct {
		SchemaVersion int `yaml:"schema_version"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("unreadable container: %w", errs.ErrParse)
	}
	if probe.SchemaVersion == 0 {
		return 0, fmt.Errorf("missing schema_version: %w", errs.ErrParse)
	}
	return probe.SchemaVersion, nil
}

// Decode verifies the passphrase against the header token, decrypts the
// payload and rebuilds the store. Wrong passphrase is errs.ErrAuth; any
// structural mismatch after successful decryption is errs.ErrParse. Data at
// an older schema version is rejected with errs.ErrUnsupportedVersion; the
// migration engine owns those.
func Decode(data, passphrase []byte) (*model.Store, Keys, error) {
	var h header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, Keys{}, fmt.Errorf("unmarshal container: %w", errs.ErrParse)
	}
	if h.SchemaVersion != SchemaVersion {
		return nil, Keys{}, fmt.Errorf("schema version %d: %w", h.SchemaVersion, errs.ErrUnsupportedVersion)
	}
	if len(h.KDFSalt) == 0 || len(h.IV) == 0 || len(h.VerificationToken) == 0 {
		return nil, Keys{}, fmt.Errorf("incomplete header: %w", errs.ErrParse)
	}

	k := KeysFrom(passphrase, h.KDFSalt)
	if err := crypto.CheckToken(k.Key, h.VerificationToken); err != nil {
		return nil, Keys{}, err
	}

	payload, err := crypto.Open(k.Key, h.IV, h.Entries)
	if err != nil {
		return nil, Keys{}, err
	}

	var ws wireStore
	if err := yaml.Unmarshal(payload, &ws); err != nil {
		return nil, Keys{}, fmt.Errorf("unmarshal payload: %w", errs.ErrParse)
	}
	entries, err := fromWireEntries(ws.Entries)
	if err != nil {
		return nil, Keys{}, err
	}

	return &model.Store{Entries: entries, LastUpdate: h.LastUpdate.Time()}, k, nil
}
