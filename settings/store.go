// Package settings loads and saves application settings through classify.
// A Manager converts one Go value to a JSON or YAML document and keeps it in
// a Store: the local file system here, or one of the backends under
// providers.
package settings

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Store when nothing is saved under a name.
var ErrNotFound = errors.New("settings not found")

// Store persists the encoded settings documents of a Manager. Names are
// slash separated relative paths such as "app/config.json".
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	// Delete removes the document. Deleting a missing document is not an
	// error.
	Delete(ctx context.Context, name string) error
}

// Kinder is implemented by stores that report a short kind for logs and
// metrics, such as "file" or "s3".
type Kinder interface {
	Kind() string
}

func storeKind(s Store) string {
	if k, ok := s.(Kinder); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", s)
}

// NewNotFoundError wraps ErrNotFound with the missing name.
func NewNotFoundError(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}
