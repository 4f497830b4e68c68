package blog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	log "github.com/sirupsen/logrus"
)

const contentType = "text/markdown"

// ContentStore keeps the markdown document of each post at
// "{prefix}/{YYYY}/{MM}/{DD}/{id}.md".
type ContentStore struct {
	store  storage.Store
	prefix string
}

func NewContentStore(store storage.Store, prefix string) *ContentStore {
	return &ContentStore{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Prefix returns the key prefix all content objects share, with a trailing
// slash.
func (c *ContentStore) Prefix() string {
	return c.prefix + "/"
}

// Path returns the key of the content object for a post.
func (c *ContentStore) Path(id, date string) (string, error) {
	if err := CheckID(id); err != nil {
		return "", err
	}
	d, err := FormatDateForPath(date)
	if err != nil {
		return "", err
	}
	return path.Join(c.prefix, d.Year, d.Month, d.Day, id+".md"), nil
}

// WriteContent stores the document of p, overwriting any previous version.
func (c *ContentStore) WriteContent(ctx context.Context, p Post) error {
	key, err := c.Path(p.ID, p.Date)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, key, EncodeContent(p), contentType); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrStorageWrite, key, err)
	}
	log.WithField("key", key).Debug("Wrote content")
	return nil
}

// DeleteContent removes the document of the post with the given id and date.
// A missing document is not an error.
func (c *ContentStore) DeleteContent(ctx context.Context, id, date string) error {
	key, err := c.Path(id, date)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %q: %v", ErrStorageWrite, key, err)
	}
	log.WithField("key", key).Debug("Deleted content")
	return nil
}

// ReadContent fetches and decodes the document stored at key.
func (c *ContentStore) ReadContent(ctx context.Context, key string) (Post, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return Post{}, err
	}
	p := DecodeContent(data)
	p.ID = strings.TrimSuffix(path.Base(key), ".md")
	return p, nil
}

// List returns the keys of all content objects.
func (c *ContentStore) List(ctx context.Context) ([]string, error) {
	keys, err := c.store.List(ctx, c.Prefix())
	if err != nil {
		return nil, err
	}
	var md []string
	for _, k := range keys {
		if strings.HasSuffix(k, ".md") {
			md = append(md, k)
		}
	}
	return md, nil
}

var headerNames = []string{"title", "author", "date", "description"}

// EncodeContent renders the header lines of p followed by a blank line and the
// markdown body.
func EncodeContent(p Post) []byte {
	var b bytes.Buffer
	for _, name := range headerNames {
		value := *p.field(name)
		value = strings.Join(strings.Fields(value), " ")
		fmt.Fprintf(&b, "[%s]: %s\n", name, value)
	}
	b.WriteByte('\n')
	b.WriteString(p.Content)
	return b.Bytes()
}

// DecodeContent is the inverse of EncodeContent. Header lines that are absent
// leave the corresponding field blank; the id is not part of the document.
func DecodeContent(data []byte) Post {
	var p Post
	rest := data
	r := bufio.NewReader(bytes.NewReader(data))
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		name, value, ok := parseHeader(trimmed)
		if !ok {
			if trimmed == "" && line != "" {
				rest = rest[len(line):]
			}
			break
		}
		if f := p.field(name); f != nil && name != "id" {
			*f = value
		}
		rest = rest[len(line):]
		if err != nil {
			break
		}
	}
	p.Content = string(rest)
	return p
}

func parseHeader(line string) (name, value string, ok bool) {
	if !strings.HasPrefix(line, "[") {
		return "", "", false
	}
	end := strings.Index(line, "]: ")
	if end < 0 {
		if strings.HasSuffix(line, "]:") {
			return line[1 : len(line)-2], "", true
		}
		return "", "", false
	}
	return line[1:end], line[end+3:], true
}
