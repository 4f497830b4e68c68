package server

import (
	"fmt"
	"io/ioutil"
	"mime"
	"net/http"
	"net/url"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/blog"
)

const maxFormBytes = 10 << 20

// parseForm reads url-encoded or multipart form fields from the body of any
// method, DELETE included, which http.Request.ParseForm leaves alone. Query
// parameters fill in fields the body does not carry.
func parseForm(r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	form := url.Values{}
	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		var err error
		mediaType, _, err = mime.ParseMediaType(ct)
		if err != nil {
			return nil, fmt.Errorf("%w: content type %q: %v", blog.ErrMalformedRequest, ct, err)
		}
	}
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", blog.ErrMalformedRequest, err)
		}
		for k, v := range r.MultipartForm.Value {
			form[k] = v
		}
	case "", "application/x-www-form-urlencoded":
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", blog.ErrMalformedRequest, err)
		}
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", blog.ErrMalformedRequest, err)
		}
		form = values
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", blog.ErrMalformedRequest, mediaType)
	}
	for k, v := range r.URL.Query() {
		if _, ok := form[k]; !ok {
			form[k] = v
		}
	}
	return form, nil
}
