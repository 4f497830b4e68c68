package main

import (
	"os"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	"github.com/rogpeppe/rjson"
)

type config struct {
	BlobServer string         `json:"blob_server"`
	Debug      bool           `json:"debug"`
	Store      storage.Config `json:"store"`
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
	if c.BlobServer == "" {
		c.BlobServer = "localhost:3003"
	}
	if c.Store.Type == "" {
		c.Store.Type = "disk"
		c.Store.Path = "$HOME/lib/blog/data"
	}
}
