package blog

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	log "github.com/sirupsen/logrus"
)

// Index is the ordered list of post summaries. New posts are appended;
// updates keep their position.
type Index struct {
	Posts []PostSummary

	// Revision the index was loaded at, when the repository tracks revisions.
	revision uint64
}

// Find returns the position of the post with the given id.
func (idx *Index) Find(id string) (int, bool) {
	for i, p := range idx.Posts {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Upsert replaces the post with the same id in place, or appends s. It reports
// whether an existing post was replaced.
func (idx *Index) Upsert(s PostSummary) (replaced bool) {
	if i, ok := idx.Find(s.ID); ok {
		idx.Posts[i] = s
		return true
	}
	idx.Posts = append(idx.Posts, s)
	return false
}

// Remove drops the post with the given id and returns it. Removing an id that
// is not in the index leaves it untouched.
func (idx *Index) Remove(id string) (removed PostSummary, ok bool) {
	i, ok := idx.Find(id)
	if !ok {
		return PostSummary{}, false
	}
	removed = idx.Posts[i]
	idx.Posts = append(idx.Posts[:i:i], idx.Posts[i+1:]...)
	return removed, true
}

// IndexRepository loads and saves the index document at a fixed key.
type IndexRepository struct {
	store     storage.Store
	key       string
	revisions storage.VersionedStore
}

type IndexOption func(*IndexRepository)

// WithRevisions makes Save fail with ErrIndexConflict when the index was
// saved by someone else after it was loaded. Without it the last save wins.
func WithRevisions(value storage.VersionedStore) IndexOption {
	return func(r *IndexRepository) {
		r.revisions = value
	}
}

func NewIndexRepository(store storage.Store, key string, opts ...IndexOption) *IndexRepository {
	r := &IndexRepository{
		store: store,
		key:   key,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Key returns the location of the index document.
func (r *IndexRepository) Key() string {
	return r.key
}

// Load fetches and parses the index document. A missing document is an empty
// index.
//
// With revisions, the document must match the fingerprint recorded with the
// revision. A mismatch means a save is between its revision write and its
// document write, so Load waits and retries, and gives up with
// ErrIndexConflict.
func (r *IndexRepository) Load(ctx context.Context) (*Index, error) {
	if r.revisions == nil {
		data, err := r.fetch(ctx)
		if err != nil {
			return nil, err
		}
		return r.parse(data)
	}
	for attempt := 1; ; attempt++ {
		revision, sum, err := r.revisions.Get(ctx, r.key)
		if errors.Is(err, storage.ErrNotFound) {
			revision, sum = 0, nil
		} else if err != nil {
			return nil, fmt.Errorf("%w: revision of %q: %v", ErrIndexUnavailable, r.key, err)
		}
		data, err := r.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if matches(sum, data) {
			idx, err := r.parse(data)
			if err != nil {
				return nil, err
			}
			idx.revision = revision
			return idx, nil
		}
		logger := log.WithFields(log.Fields{
			"key":      r.key,
			"revision": revision,
			"attempt":  attempt,
		})
		if attempt == loadAttempts {
			logger.Warn("Index document does not match its revision")
			return nil, fmt.Errorf("%q at revision %d: document does not match the revision: %w", r.key, revision, ErrIndexConflict)
		}
		logger.Debug("Index document does not match its revision, retrying")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %q: %v", ErrIndexUnavailable, r.key, ctx.Err())
		case <-time.After(time.Duration(attempt) * loadRetryDelay):
		}
	}
}

const (
	loadAttempts   = 5
	loadRetryDelay = 10 * time.Millisecond
)

// matches reports whether data is the document fingerprinted by sum. Without a
// fingerprint any document matches: it predates revision tracking.
func matches(sum, data []byte) bool {
	if sum == nil {
		return true
	}
	got := sha1.Sum(data)
	return bytes.Equal(sum, got[:])
}

// fetch returns the raw index document, nil if there is none.
func (r *IndexRepository) fetch(ctx context.Context) ([]byte, error) {
	data, err := r.store.Get(ctx, r.key)
	if errors.Is(err, storage.ErrNotFound) {
		log.WithField("key", r.key).Info("No index document, starting from an empty index")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrIndexUnavailable, r.key, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (r *IndexRepository) parse(data []byte) (*Index, error) {
	idx := &Index{}
	if data == nil {
		return idx, nil
	}
	if err := json.Unmarshal(data, &idx.Posts); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrIndexCorrupt, r.key, err)
	}
	return idx, nil
}

// Save overwrites the index document with idx. With revisions, the revision
// and the fingerprint of the new document are written first, so a concurrent
// save fails, and loads wait until the document is written.
func (r *IndexRepository) Save(ctx context.Context, idx *Index) error {
	data, err := encodeIndex(idx.Posts)
	if err != nil {
		return err
	}
	next := idx.revision + 1
	if r.revisions != nil {
		sum := sha1.Sum(data)
		err := r.revisions.Put(ctx, next, r.key, sum[:])
		if errors.Is(err, storage.ErrStalePut) {
			return fmt.Errorf("%q at revision %d: %w", r.key, idx.revision, ErrIndexConflict)
		}
		if err != nil {
			return fmt.Errorf("%w: revision of %q: %v", ErrStorageWrite, r.key, err)
		}
	}
	if err := r.store.Put(ctx, r.key, data, "application/json"); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrStorageWrite, r.key, err)
	}
	idx.revision = next
	log.WithFields(log.Fields{
		"key":   r.key,
		"posts": len(idx.Posts),
	}).Debug("Saved index")
	return nil
}

func encodeIndex(posts []PostSummary) ([]byte, error) {
	if posts == nil {
		posts = []PostSummary{}
	}
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(posts); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
