package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/blog"
	"github.com/JonasunderscoreJones/rss.jonasjones.dev/server"
	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secret   = "s3cr3t"
	indexKey = "blog/index.json"
)

// countingStore records mutations made through it.
type countingStore struct {
	storage.Store
	mu      sync.Mutex
	puts    []string
	deletes []string
}

func (s *countingStore) Put(ctx context.Context, key string, value []byte, contentType string) error {
	s.mu.Lock()
	s.puts = append(s.puts, key)
	s.mu.Unlock()
	return s.Store.Put(ctx, key, value, contentType)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, key)
	s.mu.Unlock()
	return s.Store.Delete(ctx, key)
}

func (s *countingStore) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts) + len(s.deletes)
}

// failingPuts fails every put, as a full or read-only bucket would.
type failingPuts struct {
	storage.Store
}

func (failingPuts) Put(context.Context, string, []byte, string) error {
	return errors.New("bucket is read-only")
}

type fixture struct {
	store  *countingStore
	memory *storage.InMemoryStore
	server *server.Server
}

func newFixture(t *testing.T, posts ...blog.PostSummary) *fixture {
	memory := storage.NewInMemoryStore()
	if posts != nil {
		idx := &blog.Index{Posts: posts}
		require.Nil(t, blog.NewIndexRepository(memory, indexKey).Save(context.Background(), idx))
	}
	f := &fixture{
		store:  &countingStore{Store: memory},
		memory: memory,
	}
	f.server = newServer(t, func(c *server.Config) { c.Store = f.store })
	return f
}

func newServer(t *testing.T, configure func(*server.Config)) *server.Server {
	cfg := server.Config{
		AuthKey:     secret,
		IndexKey:    indexKey,
		PostsPrefix: "blog/posts",
		Channel: blog.Channel{
			Link:        "https://blog.example.com",
			Title:       "Example",
			Description: "An example blog",
		},
		Writes: true,
		CORS:   true,
		Now: func() time.Time {
			return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		},
	}
	configure(&cfg)
	s, err := server.New(cfg)
	require.Nil(t, err)
	return s
}

func summary(id, date string) blog.PostSummary {
	return blog.PostSummary{ID: id, Date: date, Title: "Title of " + id, Author: "Jonas", Description: "About " + id}
}

func postForm(id, date string) url.Values {
	return url.Values{
		"id":          {id},
		"title":       {"Title of " + id},
		"author":      {"Jonas"},
		"date":        {date},
		"description": {"About " + id},
		"content":     {"# " + id + "\n"},
	}
}

func do(h http.Handler, method, target string, form url.Values, key string) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	r := httptest.NewRequest(method, target, body)
	if form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if key != "" {
		r.Header.Set(server.AuthHeader, key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func feedTitles(t *testing.T, body []byte) []string {
	var doc struct {
		Items []struct {
			Title string `xml:"title"`
		} `xml:"channel>item"`
	}
	require.Nil(t, xml.Unmarshal(body, &doc), "feed:\n%s", body)
	var titles []string
	for _, item := range doc.Items {
		titles = append(titles, item.Title)
	}
	return titles
}

func (f *fixture) index(t *testing.T) []blog.PostSummary {
	idx, err := blog.NewIndexRepository(f.memory, indexKey).Load(context.Background())
	require.Nil(t, err)
	return idx.Posts
}

func ids(posts []blog.PostSummary) []string {
	var out []string
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestPreflight(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"/blog", "/blog/new_post", "/blog/delete_post", "/anything/else"} {
		t.Run(target, func(t *testing.T) {
			w := do(f.server, http.MethodOptions, target, nil, "")
			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, x-Custom-Auth-Key", w.Header().Get("Access-Control-Allow-Headers"))
			assert.Empty(t, w.Body.Bytes())
		})
	}
	assert.Zero(t, f.store.mutations())
}

func TestFeed(t *testing.T) {
	t.Run("lists posts newest first", func(t *testing.T) {
		f := newFixture(t, summary("a", "2023-01-01"), summary("b", "2023-01-02"))
		w := do(f.server, http.MethodGet, "/blog", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/rss+xml", w.Header().Get("Content-Type"))
		assert.Equal(t, []string{"Title of b", "Title of a"}, feedTitles(t, w.Body.Bytes()))
	})
	t.Run("missing index gives an empty feed", func(t *testing.T) {
		f := newFixture(t)
		w := do(f.server, http.MethodGet, "/blog", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, feedTitles(t, w.Body.Bytes()))
	})
	t.Run("head has headers only", func(t *testing.T) {
		f := newFixture(t, summary("a", "2023-01-01"))
		w := do(f.server, http.MethodHead, "/blog", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/rss+xml", w.Header().Get("Content-Type"))
		assert.Empty(t, w.Body.Bytes())
	})
	t.Run("corrupt index is an upstream failure", func(t *testing.T) {
		f := newFixture(t)
		require.Nil(t, f.memory.Put(context.Background(), indexKey, []byte("not json"), ""))
		w := do(f.server, http.MethodGet, "/blog", nil, "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
	t.Run("bad date in the index fails the feed", func(t *testing.T) {
		f := newFixture(t, summary("a", "someday"))
		w := do(f.server, http.MethodGet, "/blog", nil, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
	t.Run("feed is read through the CDN while writes go to origin", func(t *testing.T) {
		cdn := storage.NewInMemoryStore()
		origin := storage.NewInMemoryStore()
		s := newServer(t, func(c *server.Config) { c.Store = storage.NewSplit(cdn, origin) })
		w := do(s, http.MethodPost, "/blog/new_post", postForm("a", "2023-01-01"), secret)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = do(s, http.MethodGet, "/blog", nil, "")
		assert.Empty(t, feedTitles(t, w.Body.Bytes()))

		// The CDN catches up.
		data, err := origin.Get(context.Background(), indexKey)
		require.Nil(t, err)
		require.Nil(t, cdn.Put(context.Background(), indexKey, data, "application/json"))
		w = do(s, http.MethodGet, "/blog", nil, "")
		assert.Equal(t, []string{"Title of a"}, feedTitles(t, w.Body.Bytes()))

		// Writes load the index from origin, not from the stale CDN copy.
		require.Nil(t, cdn.Put(context.Background(), indexKey, []byte("[]"), "application/json"))
		w = do(s, http.MethodPost, "/blog/new_post", postForm("b", "2023-01-02"), secret)
		require.Equal(t, http.StatusOK, w.Code)
		idx, err := blog.NewIndexRepository(origin, indexKey).Load(context.Background())
		require.Nil(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(idx.Posts))
	})
}

func TestNewPost(t *testing.T) {
	t.Run("creating a post appends it and shows it first in the feed", func(t *testing.T) {
		f := newFixture(t, summary("a", "2023-01-01"), summary("b", "2023-01-02"))
		w := do(f.server, http.MethodPost, "/blog/new_post", postForm("c", "2023-06-01"), secret)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), "created")
		assert.Equal(t, []string{"a", "b", "c"}, ids(f.index(t)))

		content, err := f.memory.Get(context.Background(), "blog/posts/2023/06/01/c.md")
		require.Nil(t, err)
		assert.True(t, strings.HasPrefix(string(content), "[title]: Title of c\n"))
		contentType, _ := f.memory.ContentType("blog/posts/2023/06/01/c.md")
		assert.Equal(t, "text/markdown", contentType)

		w = do(f.server, http.MethodGet, "/blog", nil, "")
		assert.Equal(t, []string{"Title of c", "Title of b", "Title of a"}, feedTitles(t, w.Body.Bytes()))
	})
	t.Run("content is written before the index", func(t *testing.T) {
		f := newFixture(t)
		w := do(f.server, http.MethodPost, "/blog/new_post", postForm("c", "2023-06-01"), secret)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"blog/posts/2023/06/01/c.md", indexKey}, f.store.puts)
	})
	t.Run("resubmitting an id updates it in place", func(t *testing.T) {
		f := newFixture(t, summary("a", "2023-01-01"), summary("b", "2023-01-02"), summary("c", "2023-01-03"))
		form := postForm("b", "2023-01-02")
		form.Set("title", "Better title")
		w := do(f.server, http.MethodPost, "/blog/new_post", form, secret)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "updated")
		posts := f.index(t)
		assert.Equal(t, []string{"a", "b", "c"}, ids(posts))
		assert.Equal(t, "Better title", posts[1].Title)
	})
	t.Run("updating a post keeps its other index fields", func(t *testing.T) {
		tagged := summary("a", "2023-01-01")
		tagged.Extra = map[string]json.RawMessage{"tags": json.RawMessage(`["go"]`)}
		f := newFixture(t, tagged)
		form := postForm("a", "2023-01-01")
		form.Set("title", "Better title")
		w := do(f.server, http.MethodPost, "/blog/new_post", form, secret)
		require.Equal(t, http.StatusOK, w.Code)
		posts := f.index(t)
		require.Len(t, posts, 1)
		assert.Equal(t, "Better title", posts[0].Title)
		assert.JSONEq(t, `["go"]`, string(posts[0].Extra["tags"]))
	})
	t.Run("changing the date moves the content object", func(t *testing.T) {
		f := newFixture(t)
		require.Equal(t, http.StatusOK, do(f.server, http.MethodPost, "/blog/new_post", postForm("a", "2023-01-01"), secret).Code)
		require.Equal(t, http.StatusOK, do(f.server, http.MethodPost, "/blog/new_post", postForm("a", "2023-02-01"), secret).Code)
		keys, err := f.memory.List(context.Background(), "blog/posts/")
		require.Nil(t, err)
		assert.Equal(t, []string{"blog/posts/2023/02/01/a.md"}, keys)
	})
	t.Run("multipart forms are accepted", func(t *testing.T) {
		f := newFixture(t)
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		for name, values := range postForm("m", "2023-03-05") {
			require.Nil(t, mw.WriteField(name, values[0]))
		}
		require.Nil(t, mw.Close())
		r := httptest.NewRequest(http.MethodPost, "/blog/new_post", &body)
		r.Header.Set("Content-Type", mw.FormDataContentType())
		r.Header.Set(server.AuthHeader, secret)
		w := httptest.NewRecorder()
		f.server.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []string{"m"}, ids(f.index(t)))
	})
	t.Run("missing or wrong secret is unauthorized and writes nothing", func(t *testing.T) {
		f := newFixture(t, summary("a", "2023-01-01"))
		before := f.store.mutations()
		for _, key := range []string{"", "wrong", secret + " "} {
			w := do(f.server, http.MethodPost, "/blog/new_post", postForm("c", "2023-06-01"), key)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		}
		assert.Equal(t, before, f.store.mutations())
	})
	t.Run("missing id is a bad request and writes nothing", func(t *testing.T) {
		f := newFixture(t)
		form := postForm("c", "2023-06-01")
		form.Del("id")
		w := do(f.server, http.MethodPost, "/blog/new_post", form, secret)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, f.store.mutations())
	})
	t.Run("unparsable date is a bad request", func(t *testing.T) {
		f := newFixture(t)
		w := do(f.server, http.MethodPost, "/blog/new_post", postForm("c", "June"), secret)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, f.store.mutations())
	})
	t.Run("id with a slash is a bad request", func(t *testing.T) {
		f := newFixture(t)
		w := do(f.server, http.MethodPost, "/blog/new_post", postForm("../index", "2023-06-01"), secret)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, f.store.mutations())
	})
	t.Run("storage failure is an internal error with details", func(t *testing.T) {
		s := newServer(t, func(c *server.Config) { c.Store = failingPuts{storage.NewInMemoryStore()} })
		w := do(s, http.MethodPost, "/blog/new_post", postForm("c", "2023-06-01"), secret)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "bucket is read-only")
	})
	t.Run("other methods are not allowed", func(t *testing.T) {
		f := newFixture(t)
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			w := do(f.server, method, "/blog/new_post", nil, secret)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		}
	})
	t.Run("concurrent saves conflict when revisions are tracked", func(t *testing.T) {
		memory := storage.NewInMemoryStore()
		revisions := storage.NewVersionedWrapper(storage.NewInMemoryStore())
		// Another writer saves between our load and our save.
		other := blog.NewIndexRepository(memory, indexKey, blog.WithRevisions(revisions))
		require.Nil(t, other.Save(context.Background(), &blog.Index{}))
		stale := &racingStore{Store: memory, before: func() {
			idx, err := other.Load(context.Background())
			require.Nil(t, err)
			idx.Upsert(summary("z", "2023-01-01"))
			require.Nil(t, other.Save(context.Background(), idx))
		}}
		s := newServer(t, func(c *server.Config) {
			c.Store = stale
			c.Revisions = revisions
		})
		w := do(s, http.MethodPost, "/blog/new_post", postForm("c", "2023-06-01"), secret)
		assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	})
}

// racingStore runs before once, right before the first content write.
type racingStore struct {
	storage.Store
	once   sync.Once
	before func()
}

func (s *racingStore) Put(ctx context.Context, key string, value []byte, contentType string) error {
	if key != indexKey {
		s.once.Do(s.before)
	}
	return s.Store.Put(ctx, key, value, contentType)
}

func TestDeletePost(t *testing.T) {
	t.Run("removes the index entry and the content", func(t *testing.T) {
		f := newFixture(t)
		for _, form := range []url.Values{postForm("a", "2023-01-01"), postForm("b", "2023-01-02")} {
			require.Equal(t, http.StatusOK, do(f.server, http.MethodPost, "/blog/new_post", form, secret).Code)
		}
		w := do(f.server, http.MethodDelete, "/blog/delete_post", url.Values{"id": {"a"}}, secret)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []string{"b"}, ids(f.index(t)))
		_, err := f.memory.Get(context.Background(), "blog/posts/2023/01/01/a.md")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("unknown id leaves the index alone", func(t *testing.T) {
		f := newFixture(t, summary("a", "2023-01-01"))
		w := do(f.server, http.MethodDelete, "/blog/delete_post", url.Values{"id": {"zzz"}}, secret)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"a"}, ids(f.index(t)))
		assert.Zero(t, f.store.mutations())
	})
	t.Run("deleted then recreated posts go to the end", func(t *testing.T) {
		f := newFixture(t, summary("a", "2023-01-01"), summary("b", "2023-01-02"))
		require.Equal(t, http.StatusOK, do(f.server, http.MethodDelete, "/blog/delete_post", url.Values{"id": {"a"}}, secret).Code)
		require.Equal(t, http.StatusOK, do(f.server, http.MethodPost, "/blog/new_post", postForm("a", "2023-01-01"), secret).Code)
		assert.Equal(t, []string{"b", "a"}, ids(f.index(t)))
	})
	t.Run("content delete failures do not stop the index update", func(t *testing.T) {
		memory := storage.NewInMemoryStore()
		require.Nil(t, blog.NewIndexRepository(memory, indexKey).Save(context.Background(), &blog.Index{Posts: []blog.PostSummary{summary("a", "2023-01-01")}}))
		s := newServer(t, func(c *server.Config) { c.Store = failingDeletes{memory} })
		w := do(s, http.MethodDelete, "/blog/delete_post", url.Values{"id": {"a"}}, secret)
		assert.Equal(t, http.StatusOK, w.Code)
		idx, err := blog.NewIndexRepository(memory, indexKey).Load(context.Background())
		require.Nil(t, err)
		assert.Empty(t, idx.Posts)
	})
	t.Run("missing or wrong secret is unauthorized and writes nothing", func(t *testing.T) {
		f := newFixture(t, summary("a", "2023-01-01"))
		before := f.store.mutations()
		for _, key := range []string{"", "nope"} {
			w := do(f.server, http.MethodDelete, "/blog/delete_post", url.Values{"id": {"a"}}, key)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		}
		assert.Equal(t, before, f.store.mutations())
		assert.Equal(t, []string{"a"}, ids(f.index(t)))
	})
	t.Run("missing id is a bad request", func(t *testing.T) {
		f := newFixture(t, summary("a", "2023-01-01"))
		w := do(f.server, http.MethodDelete, "/blog/delete_post", url.Values{}, secret)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("other methods are not allowed", func(t *testing.T) {
		f := newFixture(t)
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			w := do(f.server, method, "/blog/delete_post", url.Values{"id": {"a"}}, secret)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		}
	})
}

type failingDeletes struct {
	storage.Store
}

func (failingDeletes) Delete(context.Context, string) error {
	return errors.New("delete refused")
}

func TestRouting(t *testing.T) {
	t.Run("unknown paths are not found", func(t *testing.T) {
		f := newFixture(t)
		for _, target := range []string{"/", "/blog/", "/blog/posts", "/feed"} {
			w := do(f.server, http.MethodGet, target, nil, "")
			assert.Equal(t, http.StatusNotFound, w.Code, target)
			assert.Equal(t, "Not Found", w.Body.String())
		}
	})
	t.Run("feed path only answers reads", func(t *testing.T) {
		f := newFixture(t)
		w := do(f.server, http.MethodPost, "/blog", nil, secret)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
	t.Run("without writes the mutating paths do not exist", func(t *testing.T) {
		s := newServer(t, func(c *server.Config) {
			c.Store = storage.NewInMemoryStore()
			c.Writes = false
		})
		w := do(s, http.MethodPost, "/blog/new_post", postForm("a", "2023-01-01"), secret)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
	t.Run("without CORS preflights are not answered", func(t *testing.T) {
		s := newServer(t, func(c *server.Config) {
			c.Store = storage.NewInMemoryStore()
			c.CORS = false
		})
		w := do(s, http.MethodOptions, "/anything", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
	t.Run("writes require an auth key", func(t *testing.T) {
		_, err := server.New(server.Config{Store: storage.NewInMemoryStore(), Writes: true})
		assert.NotNil(t, err)
	})
}

func TestMetricsHandler(t *testing.T) {
	f := newFixture(t)
	do(f.server, http.MethodGet, "/blog", nil, "")
	srv := httptest.NewServer(server.MetricsHandler())
	defer srv.Close()
	response, err := http.Get(srv.URL)
	require.Nil(t, err)
	defer response.Body.Close()
	body, err := ioutil.ReadAll(response.Body)
	require.Nil(t, err)
	assert.Contains(t, string(body), "blog_requests_total")
}
