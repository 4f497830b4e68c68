package storage

import (
	"errors"
	"fmt"
	"io/ioutil"
	"mime"
	"net/http"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Handler serves store over HTTP with the protocol RemoteStore speaks:
//
//	GET /{key}           the object, 404 if missing
//	PUT /{key}           store the request body, Content-Type is recorded
//	DELETE /{key}        remove the object
//	GET /?prefix={p}     newline-separated list of keys starting with p
//
// Errors are reported as 500 with the error text in the body.
func Handler(store Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		logger := log.WithFields(log.Fields{
			"op":  r.Method,
			"key": key,
		})
		status, contentType, body := func() (int, string, []byte) {
			if key == "" && r.Method == http.MethodGet {
				keys, err := store.List(r.Context(), r.URL.Query().Get("prefix"))
				if err != nil {
					logger.WithField("err", err).Error()
					return http.StatusInternalServerError, "", []byte(err.Error())
				}
				var b strings.Builder
				for _, k := range keys {
					b.WriteString(k)
					b.WriteByte('\n')
				}
				return http.StatusOK, "text/plain; charset=utf-8", []byte(b.String())
			}
			if !ValidKey(key) {
				return http.StatusBadRequest, "", []byte(fmt.Sprintf("%q: not a valid object path", r.URL.Path))
			}
			switch r.Method {
			case http.MethodGet:
				value, err := store.Get(r.Context(), key)
				if errors.Is(err, ErrNotFound) {
					logger.WithField("err", err).Debug("Not found")
					return http.StatusNotFound, "", nil
				}
				if err != nil {
					logger.WithField("err", err).Error()
					return http.StatusInternalServerError, "", []byte(fmt.Sprintf("%q: %v", key, err))
				}
				logger.Debug("Success")
				return http.StatusOK, contentTypeFor(key), value
			case http.MethodPut:
				value, err := ioutil.ReadAll(r.Body)
				if err != nil {
					logger.WithField("err", err).Error()
					return http.StatusInternalServerError, "", []byte(fmt.Sprintf("%q: %v", key, err))
				}
				if err := store.Put(r.Context(), key, value, r.Header.Get("Content-Type")); err != nil {
					logger.WithField("err", err).Error()
					return http.StatusInternalServerError, "", []byte(fmt.Sprintf("%q: %v", key, err))
				}
				logger.Debug("Success")
				return http.StatusOK, "", nil
			case http.MethodDelete:
				if err := store.Delete(r.Context(), key); err != nil {
					logger.WithField("err", err).Error()
					return http.StatusInternalServerError, "", []byte(fmt.Sprintf("%q: %v", key, err))
				}
				logger.Debug("Success")
				return http.StatusOK, "", nil
			default:
				logger.Warn("Bad request")
				return http.StatusMethodNotAllowed, "", []byte(fmt.Sprintf("%q: invalid method, expecting GET, PUT or DELETE", r.Method))
			}
		}()
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		if body != nil {
			if _, err := w.Write(body); err != nil {
				logger.WithField("err", err).Error("Failed writing response")
			}
		}
	})
}

func contentTypeFor(key string) string {
	switch ext := path.Ext(key); ext {
	case ".md":
		return "text/markdown; charset=utf-8"
	case "":
		return "application/octet-stream"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
