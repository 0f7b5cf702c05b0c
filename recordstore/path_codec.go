package recordstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// MaxKeyLength is the longest key accepted, matching common filesystem name limits.
const MaxKeyLength = 255

// ValidateKey returns an ErrParameter error if key cannot name a record.
// Keys are non-empty, at most MaxKeyLength bytes, free of path separators,
// NUL and line breaks, and must not start with '.', which is reserved for
// store-internal files such as the control file.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return errors.Wrap(ErrParameter, "empty key")
	case len(key) > MaxKeyLength:
		return errors.Wrapf(ErrParameter, "key longer than %d bytes", MaxKeyLength)
	case strings.HasPrefix(key, "."):
		return errors.Wrapf(ErrParameter, "key %q uses the reserved '.' prefix", key)
	case strings.ContainsAny(key, "/\x00\r\n") || strings.ContainsRune(key, os.PathSeparator):
		return errors.Wrapf(ErrParameter, "key %q contains invalid characters", key)
	}
	return nil
}

// KeyValid returns true if key can name a record.
func KeyValid(key string) bool {
	return ValidateKey(key) == nil
}

// CanonicalPath maps key to its file inside root. Distinct valid keys always
// map to distinct paths.
func CanonicalPath(root, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(root, key), nil
}
