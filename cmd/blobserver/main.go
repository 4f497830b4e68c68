package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultConfigFile := os.ExpandEnv("$HOME/lib/blog/blobserver.config")
	configFile := flag.String("config", defaultConfigFile, "location of configuration file")
	flag.Parse()

	opts, err := loadConfig(*configFile)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Could not load configuration")
	}
	opts.applyDefaultsForMissingProperties()

	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if err := agent.Listen(agent.Options{
		ShutdownCleanup: true,
	}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
	} else {
		defer agent.Close()
	}

	store, closer, err := storage.Open(opts.Store)
	if err != nil {
		log.WithField("err", err).Fatal("Could not open store")
	}
	defer func() {
		if err := closer(); err != nil {
			log.WithField("err", err).Warn("Could not close store")
		}
	}()
	log.WithFields(log.Fields{
		"type": opts.Store.Type,
		"path": opts.Store.Path,
		"addr": opts.BlobServer,
	}).Info("Serving store")

	if err := http.ListenAndServe(opts.BlobServer, storage.Handler(store)); err != nil {
		log.WithField("err", err).Error("Could not listen and serve")
	}
}
