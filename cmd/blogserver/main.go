package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	golog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/blog"
	"github.com/JonasunderscoreJones/rss.jonasjones.dev/server"
	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultConfigFile := os.ExpandEnv("$HOME/lib/blog/blogserver.config")
	configFile := flag.String("config", defaultConfigFile, "location of configuration file")
	flag.Parse()

	config, err := loadConfig(*configFile)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Could not load configuration")
	}
	config.applyDefaultsForMissingProperties()
	if err := config.validate(); err != nil {
		log.WithField("err", err).Fatal("Invalid configuration")
	}

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	cleanup := redirectLogging(config)
	defer cleanup()

	if err := agent.Listen(agent.Options{
		ShutdownCleanup: true,
	}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
	} else {
		defer agent.Close()
	}

	origin, closeOrigin, err := storage.Open(config.Store)
	if err != nil {
		log.WithField("err", err).Fatal("Could not open object store")
	}
	defer func() {
		if err := closeOrigin(); err != nil {
			log.WithField("err", err).Warn("Could not close object store")
		}
	}()
	var store storage.Store = origin
	if config.ReadFrom == "cdn" {
		store = storage.NewSplit(storage.NewRemoteStore(config.CDN), origin)
		log.WithField("cdn", config.CDN).Info("Feed reads go through the CDN")
	}

	revisions, closeRevisions, err := storage.OpenVersioned(config.Revisions)
	if err != nil {
		log.WithField("err", err).Fatal("Could not open revision store")
	}
	defer func() {
		if err := closeRevisions(); err != nil {
			log.WithField("err", err).Warn("Could not close revision store")
		}
	}()

	authKey := os.Getenv(config.AuthKeyEnv)
	if authKey == "" && !config.ReadOnly {
		log.WithField("env", config.AuthKeyEnv).Fatal("No shared secret in the environment, set it or configure read_only")
	}

	srv, err := server.New(server.Config{
		Store:       store,
		Revisions:   revisions,
		AuthKey:     authKey,
		IndexKey:    config.IndexKey,
		PostsPrefix: config.PostsPrefix,
		Channel: blog.Channel{
			Link:        config.Domain,
			Title:       config.Feed.Title,
			Description: config.Feed.Description,
			Language:    config.Feed.Language,
			Generator:   config.Feed.Generator,
			MaxItems:    config.Feed.MaxItems,
		},
		Writes: !config.ReadOnly,
		CORS:   !config.NoCORS,
	})
	if err != nil {
		log.WithField("err", err).Fatal("Could not build server")
	}

	if config.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", server.MetricsHandler())
			if err := http.ListenAndServe(config.MetricsListen, mux); err != nil {
				log.WithField("err", err).Error("Metrics listener stopped")
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown makes ListenAndServe return, and lets the deferred clean-up
	// functions run.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.WithField("signal", sig).Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.WithField("err", err).Warn("Could not shut down the server cleanly")
		}
	}()

	log.WithFields(log.Fields{
		"addr":      config.Listen,
		"store":     config.Store.Type,
		"revisions": config.Revisions.Type,
		"writes":    !config.ReadOnly,
	}).Info("Listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithField("err", err).Error("Could not listen and serve")
	}
}

func redirectLogging(c *config) (cleanup func()) {
	golog.SetOutput(log.StandardLogger().Writer())
	if c.LogPath == "" {
		return func() {}
	}
	pathname := os.ExpandEnv(c.LogPath)
	logger := log.WithField("pathname", pathname)
	f, err := os.OpenFile(pathname, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		logger.WithField("err", err).Fatal("Could not open log file")
	}
	logger.Info("Lines after this one will logged to a file")
	log.SetOutput(f)
	return func() {
		if err := f.Close(); err != nil {
			// Can't use the logger here!
			_, _ = fmt.Fprintf(os.Stderr, "Could not close log file cleanly %q: %v", pathname, err)
		}
	}
}
