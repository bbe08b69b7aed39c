package history

import "errors"

var ErrNotFound = errors.New("not found")

// Store is the key-value surface the catalog runs on. Keys iterate in
// lexicographic order, which the catalog exploits by prefixing keys
// with a sortable timestamp.
type Store interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	ForEach(fn func(key string, value []byte) error) error
	Delete(key string) error
	Close() error
}
