package blog_test

import (
	"errors"
	"net/url"
	"testing"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/blog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validForm() url.Values {
	return url.Values{
		"id":          {"hello"},
		"title":       {"Hello"},
		"author":      {"Jonas"},
		"date":        {"2023-03-05"},
		"description": {"A greeting"},
		"content":     {"# Hello\n"},
	}
}

func TestPostFromForm(t *testing.T) {
	t.Run("complete form", func(t *testing.T) {
		p, err := blog.PostFromForm(validForm())
		require.Nil(t, err)
		assert.Equal(t, "hello", p.ID)
		assert.Equal(t, "2023-03-05", p.Date)
		assert.Equal(t, "Hello", p.Title)
		assert.Equal(t, "Jonas", p.Author)
		assert.Equal(t, "A greeting", p.Description)
		assert.Equal(t, "# Hello\n", p.Content)
	})
	t.Run("every field is required", func(t *testing.T) {
		for _, name := range []string{"id", "title", "author", "date", "description", "content"} {
			form := validForm()
			form.Del(name)
			_, err := blog.PostFromForm(form)
			assert.True(t, errors.Is(err, blog.ErrMalformedRequest), "without %q got %v", name, err)
		}
	})
	t.Run("empty description and content are accepted", func(t *testing.T) {
		form := validForm()
		form.Set("description", "")
		form.Set("content", "")
		_, err := blog.PostFromForm(form)
		assert.Nil(t, err)
	})
	t.Run("blank id is rejected", func(t *testing.T) {
		form := validForm()
		form.Set("id", "  ")
		_, err := blog.PostFromForm(form)
		assert.True(t, errors.Is(err, blog.ErrMalformedRequest))
	})
	t.Run("unparsable date is rejected", func(t *testing.T) {
		form := validForm()
		form.Set("date", "tomorrow")
		_, err := blog.PostFromForm(form)
		assert.True(t, errors.Is(err, blog.ErrMalformedRequest))
		assert.True(t, errors.Is(err, blog.ErrInvalidDate))
	})
}
