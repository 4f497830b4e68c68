package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JonasunderscoreJones/rss.jonasjones.dev/blog"
	"github.com/JonasunderscoreJones/rss.jonasjones.dev/storage"
	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultConfigFile := os.ExpandEnv("$HOME/lib/blog/blogserver.config")
	configFile := flag.String("config", defaultConfigFile, "location of the blogserver configuration file")
	repair := flag.Bool("repair", false, "add orphaned content objects back to the index")
	timeout := flag.Duration("timeout", time.Minute, "give up after this long")
	flag.Parse()

	config, err := loadConfig(*configFile)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Could not load configuration")
	}
	config.applyDefaultsForMissingProperties()
	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	stopAgent := startAgent()
	defer stopAgent()

	store, closeStore, err := storage.Open(config.Store)
	if err != nil {
		log.WithField("err", err).Fatal("Could not open object store")
	}
	defer func() {
		_ = closeStore()
	}()
	revisions, closeRevisions, err := storage.OpenVersioned(config.Revisions)
	if err != nil {
		log.WithField("err", err).Fatal("Could not open revision store")
	}
	defer func() {
		_ = closeRevisions()
	}()

	var opts []blog.IndexOption
	if revisions != nil {
		opts = append(opts, blog.WithRevisions(revisions))
	}
	index := blog.NewIndexRepository(store, config.IndexKey, opts...)
	content := blog.NewContentStore(store, config.PostsPrefix)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	consistent := run(ctx, os.Stdout, index, content, *repair)
	if !consistent {
		cancel()
		_ = closeRevisions()
		_ = closeStore()
		stopAgent()
		os.Exit(1)
	}
}

// startAgent starts the gops agent. A failure to start is logged and
// otherwise ignored.
func startAgent() (stop func()) {
	if err := agent.Listen(agent.Options{
		ShutdownCleanup: true,
	}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
		return func() {}
	}
	return agent.Close
}

// run prints the check report to w, repairs if asked to, and reports whether
// the store is consistent at the end.
func run(ctx context.Context, w io.Writer, index *blog.IndexRepository, content *blog.ContentStore, repair bool) bool {
	report, err := blog.Check(ctx, index, content)
	if err != nil {
		log.WithField("err", err).Error("Check incomplete")
	}
	printReport(w, report)
	if !repair || len(report.Orphans) == 0 {
		return err == nil && report.Consistent()
	}
	added, err := blog.Repair(ctx, index, content, report)
	if err != nil {
		log.WithField("err", err).Error("Repair incomplete")
	}
	for _, id := range added {
		_, _ = fmt.Fprintf(w, "restored\t%s\n", id)
	}
	report, err = blog.Check(ctx, index, content)
	if err != nil {
		log.WithField("err", err).Error("Check after repair incomplete")
		return false
	}
	return report.Consistent()
}

func printReport(w io.Writer, r blog.Report) {
	for _, key := range r.Orphans {
		_, _ = fmt.Fprintf(w, "orphan\t%s\n", key)
	}
	for _, p := range r.Missing {
		_, _ = fmt.Fprintf(w, "missing\t%s\t%s\n", p.ID, p.Date)
	}
	for _, id := range r.Duplicates {
		_, _ = fmt.Fprintf(w, "duplicate\t%s\n", id)
	}
	if r.Consistent() {
		_, _ = fmt.Fprintln(w, "ok")
	}
}
