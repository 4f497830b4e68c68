package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
)

// RemoteStore implements Store. It requires to connect to a blobserver, or,
// for Get only, to any HTTP server exposing objects at "{base}/{key}" such as
// a CDN in front of the origin bucket.
type RemoteStore struct {
	base   string
	client *http.Client
}

// NewRemoteStore returns a store talking to base, which is either a URL or a
// bare host:port (in which case plain HTTP is assumed).
func NewRemoteStore(base string) *RemoteStore {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &RemoteStore{
		base:   strings.TrimSuffix(base, "/"),
		client: http.DefaultClient,
	}
}

func (r *RemoteStore) Put(ctx context.Context, key string, value []byte, contentType string) (err error) {
	if err := checkKey(key); err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, r.pathFor(key), bytes.NewReader(value))
	if err != nil {
		return err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	_, err = r.do(request)
	return err
}

func (r *RemoteStore) Get(ctx context.Context, key string) (value []byte, err error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, r.pathFor(key), nil)
	if err != nil {
		return nil, err
	}
	value, err = r.do(request)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	return value, err
}

func (r *RemoteStore) Delete(ctx context.Context, key string) (err error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.pathFor(key), nil)
	if err != nil {
		return err
	}
	_, err = r.do(request)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (r *RemoteStore) List(ctx context.Context, prefix string) (keys []string, err error) {
	u := r.base + "/?" + url.Values{"prefix": {prefix}}.Encode()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	body, err := r.do(request)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			keys = append(keys, line)
		}
	}
	return keys, scanner.Err()
}

func (r *RemoteStore) do(request *http.Request) ([]byte, error) {
	response, err := r.client.Do(request)
	if response != nil && response.Body != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}
	if err != nil {
		return nil, err
	}
	if response.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(ioutil.Discard, response.Body)
		return nil, ErrNotFound
	}
	body, err := ioutil.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: %s: %s", request.Method, request.URL.Path, response.Status, bytes.TrimSpace(body))
	}
	return body, nil
}

func (r *RemoteStore) pathFor(key string) string {
	return r.base + "/" + key
}
