package migrate

import (
	"fmt"

	"github.com/gofrs/uuid/v5"
	"gopkg.in/yaml.v3"

	"github.com/passlock/passlock/internal/codec"
	"github.com/passlock/passlock/internal/crypto"
	"github.com/passlock/passlock/internal/errs"
	"github.com/passlock/passlock/internal/model"
)

// Legacy containers (v1 and v2) keep entry structure in the clear and
// encrypt only protected field values, each as a self-contained nonce||ct
// blob. v2 differs from v1 only in key derivation: it carries a kdf_salt and
// uses Argon2id instead of a bare SHA-256 of the passphrase.
type legacyContainer struct {
	SchemaVersion     int             `yaml:"schema_version"`
	VerificationToken codec.Binary    `yaml:"verification_token"`
	KDFSalt           codec.Binary    `yaml:"kdf_salt,omitempty"`
	LastUpdate        codec.Timestamp `yaml:"last_update"`
	Entries           []legacyEntry   `yaml:"entries"`
}

type legacyEntry struct {
	Name       string          `yaml:"name"`
	Tags       []string        `yaml:"tags,omitempty"`
	Fields     []legacyField   `yaml:"fields,omitempty"`
	FirstAdded codec.Timestamp `yaml:"first_added"`
	LastUpdate codec.Timestamp `yaml:"last_update"`
}

type legacyField struct {
	Name  string      `yaml:"name"`
	Value legacyValue `yaml:"value"`
}

type legacyValue struct {
	Kind string       `yaml:"kind"`
	Text string       `yaml:"text,omitempty"`
	Data codec.Binary `yaml:"data,omitempty"`
}

func parseLegacy(data []byte, want int) (*legacyContainer, error) {
	var c legacyContainer
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrParse)
	}
	if c.SchemaVersion != want {
		return nil, fmt.Errorf("expected schema version %d, got %d: %w", want, c.SchemaVersion, errs.ErrParse)
	}
	if len(c.VerificationToken) == 0 {
		return nil, fmt.Errorf("missing verification_token: %w", errs.ErrParse)
	}
	return &c, nil
}

func (c *legacyContainer) marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal container: %w", err)
	}
	return out, nil
}

// reseal re-encrypts every protected field value from oldKey to newKey.
// Cleartext never outlives the loop iteration that produced it.
func (c *legacyContainer) reseal(oldKey, newKey []byte) error {
	for i := range c.Entries {
		for j := range c.Entries[i].Fields {
			v := &c.Entries[i].Fields[j].Value
			if v.Kind != "protected" {
				continue
			}
			pt, err := crypto.OpenBlob(oldKey, v.Data)
			if err != nil {
				return err
			}
			if v.Data, err = crypto.SealBlob(newKey, pt); err != nil {
				return err
			}
		}
	}
	return nil
}

// toStore decrypts all protected values and lifts the container into the
// in-memory model. Legacy files carry no entry IDs, so fresh ones are
// generated here.
func (c *legacyContainer) toStore(key []byte) (*model.Store, error) {
	s := &model.Store{
		Entries:    make([]model.Entry, 0, len(c.Entries)),
		LastUpdate: c.LastUpdate.Time(),
	}
	for _, le := range c.Entries {
		if le.Name == "" {
			return nil, fmt.Errorf("entry with empty name: %w", errs.ErrParse)
		}
		id, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		e := model.Entry{
			ID:         id,
			Name:       le.Name,
			Tags:       le.Tags,
			FirstAdded: le.FirstAdded.Time(),
			LastUpdate: le.LastUpdate.Time(),
		}
		for _, lf := range le.Fields {
			if lf.Name == "" {
				return nil, fmt.Errorf("field with empty name in entry %q: %w", le.Name, errs.ErrParse)
			}
			var val model.Value
			switch lf.Value.Kind {
			case "basic":
				val = model.Basic{Text: lf.Value.Text}
			case "protected":
				pt, err := crypto.OpenBlob(key, lf.Value.Data)
				if err != nil {
					return nil, err
				}
				val = model.Protected{Text: string(pt)}
			default:
				return nil, fmt.Errorf("unknown value kind %q: %w", lf.Value.Kind, errs.ErrParse)
			}
			e.Fields = append(e.Fields, model.Field{Name: lf.Name, Value: val})
		}
		s.Entries = append(s.Entries, e)
	}
	return s, nil
}
