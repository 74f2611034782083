// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Error kinds surfaced by the core. The CLI layer matches on these with
// errors.Is to give actionable feedback; none of them are fatal.
var (
	// ErrAuth indicates the verification token did not check out: the
	// supplied passphrase is wrong, or the header was tampered with.
	ErrAuth = errors.New("wrong passphrase")

	// ErrParse indicates a structurally malformed payload after successful
	// decryption (missing field, unknown value kind, bad base64).
	ErrParse = errors.New("malformed store data")

	// ErrUnsupportedVersion indicates a schema version not covered by any
	// migration path.
	ErrUnsupportedVersion = errors.New("unsupported schema version")

	// ErrValidation indicates rejected user input (e.g. empty entry name).
	ErrValidation = errors.New("validation failed")

	// ErrIO indicates a filesystem failure on read or write.
	ErrIO = errors.New("file access failed")
)
