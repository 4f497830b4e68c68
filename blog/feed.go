package blog

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"
)

// DefaultFeedItems is the number of most recently appended posts in the feed.
const DefaultFeedItems = 50

// Channel describes the feed as a whole.
type Channel struct {
	// Link is the base URL of the blog; permalinks are built on it.
	Link        string
	Title       string
	Description string
	Language    string
	Generator   string
	MaxItems    int
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language,omitempty"`
	PubDate       string    `xml:"pubDate"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Generator     string    `xml:"generator,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       cdata   `xml:"title"`
	Link        string  `xml:"link"`
	GUID        rssGUID `xml:"guid"`
	Author      cdata   `xml:"author"`
	PubDate     string  `xml:"pubDate"`
	Description cdata   `xml:"description"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// encoding/xml splits "]]>" across two sections, so the text never ends the
// section early.
type cdata struct {
	Text string `xml:",cdata"`
}

// RenderFeed renders the last MaxItems posts of the index, most recently
// appended first, as an RSS 2.0 document. Selection is by position in the
// index, not by date. A post whose date does not parse fails the whole feed.
func RenderFeed(posts []PostSummary, ch Channel, now time.Time) ([]byte, error) {
	limit := ch.MaxItems
	if limit <= 0 {
		limit = DefaultFeedItems
	}
	selected := posts
	if len(selected) > limit {
		selected = selected[len(selected)-limit:]
	}
	items := make([]rssItem, 0, len(selected))
	for i := len(selected) - 1; i >= 0; i-- {
		item, err := renderItem(selected[i], ch.Link)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	stamp := now.UTC().Format(pubDateLayout)
	doc := rssDocument{
		Version: "2.0",
		Channel: rssChannel{
			Title:         ch.Title,
			Link:          ch.Link,
			Description:   ch.Description,
			Language:      ch.Language,
			PubDate:       stamp,
			LastBuildDate: stamp,
			Generator:     ch.Generator,
			Items:         items,
		},
	}
	var b bytes.Buffer
	b.WriteString(xml.Header)
	enc := xml.NewEncoder(&b)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("could not encode feed: %w", err)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func renderItem(p PostSummary, baseURL string) (rssItem, error) {
	published, err := ParseDate(p.Date)
	if err != nil {
		return rssItem{}, fmt.Errorf("post %q: %w", p.ID, err)
	}
	link, err := Permalink(baseURL, p.Date, p.ID)
	if err != nil {
		return rssItem{}, fmt.Errorf("post %q: %w", p.ID, err)
	}
	return rssItem{
		Title:       cdata{p.Title},
		Link:        link,
		GUID:        rssGUID{IsPermaLink: "true", Value: link},
		Author:      cdata{p.Author},
		PubDate:     published.Format(pubDateLayout),
		Description: cdata{p.Description},
	}, nil
}
