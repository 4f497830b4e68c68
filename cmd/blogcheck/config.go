package main

import (
	"os"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	"github.com/rogpeppe/rjson"
)

// config is the subset of the blogserver configuration blogcheck needs.
type config struct {
	Debug       bool           `json:"debug"`
	IndexKey    string         `json:"index_key"`
	PostsPrefix string         `json:"posts_prefix"`
	Store       storage.Config `json:"store"`
	Revisions   storage.Config `json:"revisions"`
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
	if c.IndexKey == "" {
		c.IndexKey = "blog/index.json"
	}
	if c.PostsPrefix == "" {
		c.PostsPrefix = "blog/posts"
	}
	if c.Store.Type == "" {
		c.Store.Type = "disk"
		c.Store.Path = "$HOME/lib/blog/data"
	}
}
