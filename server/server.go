// Package server routes HTTP requests to the blog: the RSS feed on GET /blog,
// and the authenticated post creation and deletion endpoints.
package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/blog"
	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

// AuthHeader carries the shared secret on mutating requests.
const AuthHeader = "X-Custom-Auth-Key"

const (
	feedPath   = "/blog"
	newPath    = "/blog/new_post"
	deletePath = "/blog/delete_post"
)

// Config is everything a Server needs. Nothing is read from the environment
// once the server is built.
type Config struct {
	// Store holds the index document and the content objects. When it is a
	// storage.Split, the feed is read through its reader while the write
	// endpoints always load the index from the origin.
	Store storage.Store

	// Revisions, if set, makes concurrent index saves fail with 409 instead of
	// silently overwriting each other.
	Revisions storage.VersionedStore

	// AuthKey is compared with the X-Custom-Auth-Key header. Required when
	// Writes is set.
	AuthKey string

	IndexKey    string
	PostsPrefix string
	Channel     blog.Channel

	// Writes enables /blog/new_post and /blog/delete_post.
	Writes bool
	// CORS enables preflight answers and the allow-origin header.
	CORS bool

	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	cfg       Config
	feedIndex *blog.IndexRepository
	index     *blog.IndexRepository
	content   *blog.ContentStore
	router    chi.Router
}

func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("no store configured")
	}
	if cfg.Writes && cfg.AuthKey == "" {
		return nil, errors.New("writes enabled without an auth key")
	}
	if cfg.IndexKey == "" {
		cfg.IndexKey = "blog/index.json"
	}
	if cfg.PostsPrefix == "" {
		cfg.PostsPrefix = "blog/posts"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	var opts []blog.IndexOption
	if cfg.Revisions != nil {
		opts = append(opts, blog.WithRevisions(cfg.Revisions))
	}
	origin := storage.OriginOf(cfg.Store)
	s := &Server{
		cfg:       cfg,
		feedIndex: blog.NewIndexRepository(cfg.Store, cfg.IndexKey),
		index:     blog.NewIndexRepository(origin, cfg.IndexKey, opts...),
		content:   blog.NewContentStore(origin, cfg.PostsPrefix),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(instrument, logRequests)
	if s.cfg.CORS {
		r.Use(cors)
	}
	r.NotFound(handle(func(*http.Request) response {
		return text(http.StatusNotFound, "Not Found")
	}))
	r.MethodNotAllowed(handle(func(*http.Request) response {
		return text(http.StatusNotFound, "Not Found")
	}))
	r.HandleFunc(feedPath, handle(s.feed))
	if s.cfg.Writes {
		r.HandleFunc(newPath, handle(s.onlyMethod(http.MethodPost, s.authorized(s.newPost))))
		r.HandleFunc(deletePath, handle(s.onlyMethod(http.MethodDelete, s.authorized(s.deletePost))))
	}
	return r
}

type response struct {
	status      int
	contentType string
	body        []byte
}

func text(status int, format string, args ...interface{}) response {
	return response{
		status:      status,
		contentType: "text/plain; charset=utf-8",
		body:        []byte(fmt.Sprintf(format, args...)),
	}
}

type handlerFunc func(*http.Request) response

func handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := h(r)
		if res.contentType != "" {
			w.Header().Set("Content-Type", res.contentType)
		}
		w.WriteHeader(res.status)
		if res.body == nil || r.Method == http.MethodHead {
			return
		}
		if _, err := w.Write(res.body); err != nil {
			log.WithFields(log.Fields{
				"err":  err,
				"path": r.URL.Path,
			}).Error("Failed writing response")
		}
	}
}

func (s *Server) onlyMethod(method string, next handlerFunc) handlerFunc {
	return func(r *http.Request) response {
		if r.Method != method {
			return text(http.StatusMethodNotAllowed, "Method Not Allowed")
		}
		return next(r)
	}
}

func (s *Server) authorized(next handlerFunc) handlerFunc {
	return func(r *http.Request) response {
		got := r.Header.Get(AuthHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AuthKey)) != 1 {
			log.WithFields(log.Fields{
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			}).Warn("Rejected unauthorized request")
			return text(http.StatusUnauthorized, "Unauthorized")
		}
		return next(r)
	}
}

func (s *Server) feed(r *http.Request) response {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return text(http.StatusNotFound, "Not Found")
	}
	idx, err := s.feedIndex.Load(r.Context())
	if err != nil {
		log.WithField("err", err).Error("Could not load index for the feed")
		return text(http.StatusBadGateway, "Could not load index: %v", err)
	}
	data, err := blog.RenderFeed(idx.Posts, s.cfg.Channel, s.cfg.Now())
	if err != nil {
		log.WithField("err", err).Error("Could not render feed")
		return text(http.StatusInternalServerError, "Could not render feed: %v", err)
	}
	return response{
		status:      http.StatusOK,
		contentType: "application/rss+xml",
		body:        data,
	}
}

// newPost writes the content object first and the index last, so that the
// index never lists a post whose content was not stored.
func (s *Server) newPost(r *http.Request) response {
	form, err := parseForm(r)
	if err != nil {
		return failure(err)
	}
	p, err := blog.PostFromForm(form)
	if err != nil {
		return failure(err)
	}
	logger := log.WithFields(log.Fields{
		"id":   p.ID,
		"date": p.Date,
	})
	ctx := r.Context()
	idx, err := s.index.Load(ctx)
	if err != nil {
		logger.WithField("err", err).Error("Could not load index")
		return failure(err)
	}
	var previous *blog.PostSummary
	if i, ok := idx.Find(p.ID); ok {
		prev := idx.Posts[i]
		previous = &prev
	}
	if err := s.content.WriteContent(ctx, p); err != nil {
		logger.WithField("err", err).Error("Could not write content")
		return failure(err)
	}
	if previous != nil {
		p.Extra = previous.Extra
	}
	replaced := idx.Upsert(p.PostSummary)
	if err := s.index.Save(ctx, idx); err != nil {
		logger.WithField("err", err).Error("Could not save index, content and index diverge")
		return failure(err)
	}
	if previous != nil {
		s.dropMovedContent(r, *previous, p.PostSummary)
	}
	if replaced {
		logger.Info("Updated post")
		return text(http.StatusOK, "Post %q updated successfully", p.ID)
	}
	logger.Info("Created post")
	return text(http.StatusOK, "Post %q created successfully", p.ID)
}

// dropMovedContent removes the content object of an updated post when its new
// date moved it to another partition.
func (s *Server) dropMovedContent(r *http.Request, before, after blog.PostSummary) {
	oldKey, err := s.content.Path(before.ID, before.Date)
	if err != nil {
		return
	}
	newKey, err := s.content.Path(after.ID, after.Date)
	if err != nil || oldKey == newKey {
		return
	}
	if err := s.content.DeleteContent(r.Context(), before.ID, before.Date); err != nil {
		log.WithFields(log.Fields{
			"err": err,
			"key": oldKey,
		}).Warn("Could not delete content at the previous date")
	}
}

// deletePost removes the index entry and its content object. Failing to
// delete the content object does not stop the index update.
func (s *Server) deletePost(r *http.Request) response {
	form, err := parseForm(r)
	if err != nil {
		return failure(err)
	}
	id := form.Get("id")
	if err := blog.CheckID(id); err != nil {
		return failure(err)
	}
	logger := log.WithField("id", id)
	ctx := r.Context()
	idx, err := s.index.Load(ctx)
	if err != nil {
		logger.WithField("err", err).Error("Could not load index")
		return failure(err)
	}
	removed, ok := idx.Remove(id)
	date := form.Get("date")
	if ok {
		date = removed.Date
	}
	if date != "" {
		if err := s.content.DeleteContent(ctx, id, date); err != nil {
			logger.WithField("err", err).Warn("Could not delete content")
		}
	}
	if !ok {
		logger.Info("Post not in index, nothing to remove")
		return text(http.StatusOK, "Post %q not in index", id)
	}
	if err := s.index.Save(ctx, idx); err != nil {
		logger.WithField("err", err).Error("Could not save index, content and index diverge")
		return failure(err)
	}
	logger.Info("Deleted post")
	return text(http.StatusOK, "Post %q deleted successfully", id)
}

func failure(err error) response {
	switch {
	case errors.Is(err, blog.ErrMalformedRequest), errors.Is(err, blog.ErrInvalidDate):
		return text(http.StatusBadRequest, "Bad Request: %v", err)
	case errors.Is(err, blog.ErrIndexConflict):
		return text(http.StatusConflict, "Conflict: %v", err)
	default:
		return text(http.StatusInternalServerError, "Internal Server Error: %v", err)
	}
}
