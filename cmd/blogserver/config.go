package main

import (
	"fmt"
	"os"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	"github.com/rogpeppe/rjson"
)

type config struct {
	Listen        string `json:"listen"`
	MetricsListen string `json:"metrics_listen"`
	Debug         bool   `json:"debug"`
	LogPath       string `json:"log_path"`

	// Name of the environment variable holding the shared secret.
	AuthKeyEnv string `json:"auth_key_env"`

	// Base URL of the blog, used for the channel link and the permalinks.
	Domain string `json:"domain"`
	Feed   struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Language    string `json:"language"`
		Generator   string `json:"generator"`
		MaxItems    int    `json:"max_items"`
	} `json:"feed"`

	IndexKey    string `json:"index_key"`
	PostsPrefix string `json:"posts_prefix"`

	ReadOnly bool `json:"read_only"`
	NoCORS   bool `json:"no_cors"`

	// Either "origin" or "cdn". With "cdn", the feed reads the index from CDN.
	ReadFrom string `json:"read_from"`
	CDN      string `json:"cdn"`

	Store     storage.Config `json:"store"`
	Revisions storage.Config `json:"revisions"`
}

func loadConfig(pathname string) (*config, error) {
	f, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	var c *config
	err = rjson.NewDecoder(f).Decode(&c)
	return c, err
}

func (c *config) applyDefaultsForMissingProperties() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.AuthKeyEnv == "" {
		c.AuthKeyEnv = "BLOG_AUTH_KEY"
	}
	if c.Domain == "" {
		c.Domain = "https://blog.jonasjones.dev"
	}
	if c.Feed.Title == "" {
		c.Feed.Title = "Your Blog Title"
	}
	if c.Feed.Description == "" {
		c.Feed.Description = "Your blog description"
	}
	if c.Feed.Language == "" {
		c.Feed.Language = "en-us"
	}
	if c.Feed.Generator == "" {
		c.Feed.Generator = "blogserver"
	}
	if c.IndexKey == "" {
		c.IndexKey = "blog/index.json"
	}
	if c.PostsPrefix == "" {
		c.PostsPrefix = "blog/posts"
	}
	if c.ReadFrom == "" {
		c.ReadFrom = "origin"
	}
	if c.Store.Type == "" {
		c.Store.Type = "disk"
		c.Store.Path = "$HOME/lib/blog/data"
	}
}

func (c *config) validate() error {
	switch c.ReadFrom {
	case "origin":
	case "cdn":
		if c.CDN == "" {
			return fmt.Errorf("read_from is %q but no cdn is configured", c.ReadFrom)
		}
	default:
		return fmt.Errorf("read_from: want %q or %q, got %q", "origin", "cdn", c.ReadFrom)
	}
	return nil
}
