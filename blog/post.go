package blog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// PostSummary is the index record of a post.
type PostSummary struct {
	ID          string
	Date        string
	Title       string
	Author      string
	Description string

	// Extra holds fields other tools stored in the index, so that rewriting
	// the index does not drop them.
	Extra map[string]json.RawMessage
}

var summaryFields = []string{"id", "date", "title", "author", "description"}

func (s *PostSummary) field(name string) *string {
	switch name {
	case "id":
		return &s.ID
	case "date":
		return &s.Date
	case "title":
		return &s.Title
	case "author":
		return &s.Author
	case "description":
		return &s.Description
	}
	return nil
}

func (s PostSummary) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	write := func(name string, value []byte) {
		if b.Len() > 1 {
			b.WriteByte(',')
		}
		b.Write(marshalString(name))
		b.WriteByte(':')
		b.Write(value)
	}
	for _, name := range summaryFields {
		write(name, marshalString(*s.field(name)))
	}
	extra := make([]string, 0, len(s.Extra))
	for name := range s.Extra {
		if s.field(name) == nil {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		write(name, s.Extra[name])
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (s *PostSummary) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*s = PostSummary{}
	for name, raw := range fields {
		if p := s.field(name); p != nil {
			if err := unmarshalScalar(raw, p); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]json.RawMessage)
		}
		s.Extra[name] = raw
	}
	return nil
}

func marshalString(s string) []byte {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	// Strings always encode.
	_ = enc.Encode(s)
	return bytes.TrimSuffix(b.Bytes(), []byte("\n"))
}

// Numbers and booleans are kept in their textual form; ids are sometimes
// written as numbers by hand.
func unmarshalScalar(raw json.RawMessage, p *string) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
		*p = ""
	case string:
		*p = v
	case float64, bool:
		*p = strings.TrimSpace(string(raw))
	default:
		return fmt.Errorf("unexpected %T", v)
	}
	return nil
}

// Post is a summary together with its markdown body.
type Post struct {
	PostSummary
	Content string
}

var requiredFormFields = []string{"id", "title", "author", "date", "description", "content"}

// PostFromForm builds a post out of the fields of a creation request. All of
// id, title, author, date, description and content must be present; id,
// title, author and date must not be blank.
func PostFromForm(form url.Values) (Post, error) {
	for _, name := range requiredFormFields {
		if _, ok := form[name]; !ok {
			return Post{}, fmt.Errorf("missing field %q: %w", name, ErrMalformedRequest)
		}
	}
	p := Post{
		PostSummary: PostSummary{
			ID:          strings.TrimSpace(form.Get("id")),
			Date:        strings.TrimSpace(form.Get("date")),
			Title:       form.Get("title"),
			Author:      form.Get("author"),
			Description: form.Get("description"),
		},
		Content: form.Get("content"),
	}
	for name, value := range map[string]string{"title": p.Title, "author": p.Author} {
		if strings.TrimSpace(value) == "" {
			return Post{}, fmt.Errorf("blank field %q: %w", name, ErrMalformedRequest)
		}
	}
	if err := CheckID(p.ID); err != nil {
		return Post{}, err
	}
	if _, err := ParseDate(p.Date); err != nil {
		return Post{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	return p, nil
}

// CheckID returns ErrMalformedRequest unless id can be used as the last
// segment of a content path.
func CheckID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("blank field %q: %w", "id", ErrMalformedRequest)
	case id == "." || id == "..", strings.ContainsAny(id, "/\\"):
		return fmt.Errorf("id %q is not a single path segment: %w", id, ErrMalformedRequest)
	}
	return nil
}
