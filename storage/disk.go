package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiskStore implements Store. Objects are files under dir, at the path given by
// their key. Content types are not recorded.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) Put(_ context.Context, key string, value []byte, _ string) (err error) {
	if err := checkKey(key); err != nil {
		return err
	}
	valpath := s.pathFor(key)
	err = os.WriteFile(valpath, value, 0600)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("could not write %q: %w", valpath, err)
	}
	if err = os.MkdirAll(filepath.Dir(valpath), 0700); err != nil {
		return fmt.Errorf("could not make dir for %q: %w", valpath, err)
	}
	return os.WriteFile(valpath, value, 0600)
}

func (s *DiskStore) Get(_ context.Context, key string) (value []byte, err error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	value, err = os.ReadFile(s.pathFor(key))
	if os.IsNotExist(err) {
		err = fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	return
}

func (s *DiskStore) Delete(_ context.Context, key string) (err error) {
	if err := checkKey(key); err != nil {
		return err
	}
	err = os.Remove(s.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove %q: %w", key, err)
	}
	return nil
}

func (s *DiskStore) List(_ context.Context, prefix string) (keys []string, err error) {
	err = filepath.WalkDir(s.dir, func(pathname string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && pathname == s.dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, pathname)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not list %q: %w", s.dir, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *DiskStore) pathFor(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}
