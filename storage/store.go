package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
)

// Store represents a path-addressed object store. Keys are slash-separated
// relative paths such as "blog/index.json".
type Store interface {
	// Get should return ErrNotFound if the key is not in the store.
	Get(ctx context.Context, key string) (value []byte, err error)

	// Put stores value at key, overwriting any previous object. The content type
	// is recorded by backends that support object metadata.
	Put(ctx context.Context, key string, value []byte, contentType string) (err error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) (err error)

	// List returns the keys starting with prefix, in lexical order.
	List(ctx context.Context, prefix string) (keys []string, err error)
}

var (
	// ErrNotFound indicates a key is not in the store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidKey is returned for keys that are empty, absolute or that would
	// escape the store root.
	ErrInvalidKey = errors.New("invalid key")
)

// ValidKey reports whether key is usable as an object path.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return path.Clean(key) == key
}

func checkKey(key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	return nil
}

type VersionedStore interface {
	// Put should return ErrStalePut if the current version is not the version
	// passed as argument minus one. The client should have to prove that they've
	// seen the most current version before trying to update it.
	Put(ctx context.Context, version uint64, key string, value []byte) (err error)

	// Get should return ErrNotFound if the key is not in the store.
	Get(ctx context.Context, key string) (version uint64, value []byte, err error)
}

var (
	// ErrStalePut indicates that some client has not see the latest version of the
	// key-value pair being put. The client should get the current version, decide
	// if it still wants to do the put, and in that case do the put with the
	// correct version.
	ErrStalePut = errors.New("stale put")
)

// VersionedWrapper is a VersionedStore implementation wraping a given Store
// implementation. It serializes all calls to the underlying Store, so it only
// guards writers sharing the same process (or the same bolt file).
type VersionedWrapper struct {
	sync.Mutex
	delegate Store
}

func NewVersionedWrapper(delegate Store) *VersionedWrapper {
	return &VersionedWrapper{delegate: delegate}
}

// Put stores the given value at the given key, provided the passed version
// number is the current version number plus one.
func (s *VersionedWrapper) Put(ctx context.Context, version uint64, key string, value []byte) error {
	s.Lock()
	defer s.Unlock()
	curr, err := s.delegate.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if len(curr) >= 8 {
		expectedVersion := binary.BigEndian.Uint64(curr[0:8]) + 1
		if version < expectedVersion {
			return ErrStalePut
		}
	}
	val := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(val, version)
	copy(val[8:], value)
	return s.delegate.Put(ctx, key, val, "application/octet-stream")
}

// Get retrieves the value associated with a key and its version number.
func (s *VersionedWrapper) Get(ctx context.Context, key string) (version uint64, value []byte, err error) {
	s.Lock()
	defer s.Unlock()
	value, err = s.delegate.Get(ctx, key)
	if err != nil {
		return 0, nil, err
	}
	if len(value) < 8 {
		return 0, nil, fmt.Errorf("%q: versioned value too short (%d bytes)", key, len(value))
	}
	return binary.BigEndian.Uint64(value[:8]), value[8:], nil
}
