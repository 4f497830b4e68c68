package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type inMemoryObject struct {
	value       []byte
	contentType string
}

// InMemoryStore is a Store implementation powered by a map, to be used for
// testing or caches.
type InMemoryStore struct {
	sync.Mutex
	m map[string]inMemoryObject
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		m: make(map[string]inMemoryObject),
	}
}

func (s *InMemoryStore) Put(_ context.Context, key string, value []byte, contentType string) (err error) {
	if err := checkKey(key); err != nil {
		return err
	}
	s.Lock()
	s.m[key] = inMemoryObject{value: dup(value), contentType: contentType}
	s.Unlock()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (value []byte, err error) {
	s.Lock()
	o, ok := s.m[key]
	s.Unlock()
	if !ok {
		return nil, fmt.Errorf("%.40q: %w", key, ErrNotFound)
	}
	return dup(o.value), nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) (err error) {
	s.Lock()
	delete(s.m, key)
	s.Unlock()
	return nil
}

func (s *InMemoryStore) List(_ context.Context, prefix string) (keys []string, err error) {
	s.Lock()
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.Unlock()
	sort.Strings(keys)
	return keys, nil
}

// ContentType returns the content type the object at key was stored with.
func (s *InMemoryStore) ContentType(key string) (contentType string, ok bool) {
	s.Lock()
	defer s.Unlock()
	o, ok := s.m[key]
	return o.contentType, ok
}

func dup(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
