package blog

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Report lists the disagreements between the index and the content objects.
type Report struct {
	// Orphans are content keys no index entry points to.
	Orphans []string
	// Missing are index entries whose content object does not exist.
	Missing []PostSummary
	// Duplicates are ids listed more than once in the index.
	Duplicates []string
}

func (r Report) Consistent() bool {
	return len(r.Orphans) == 0 && len(r.Missing) == 0 && len(r.Duplicates) == 0
}

// Check cross-checks the index against the content objects. Entries whose
// content path cannot be derived are reported in the returned error and
// otherwise skipped.
func Check(ctx context.Context, index *IndexRepository, content *ContentStore) (Report, error) {
	var report Report
	idx, err := index.Load(ctx)
	if err != nil {
		return report, err
	}
	keys, err := content.List(ctx)
	if err != nil {
		return report, fmt.Errorf("listing content: %w", err)
	}
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}
	var errs error
	expected := make(map[string]bool, len(idx.Posts))
	seen := make(map[string]int, len(idx.Posts))
	for _, p := range idx.Posts {
		seen[p.ID]++
		if seen[p.ID] == 2 {
			report.Duplicates = append(report.Duplicates, p.ID)
		}
		key, err := content.Path(p.ID, p.Date)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("post %q: %w", p.ID, err))
			continue
		}
		expected[key] = true
		if !present[key] {
			report.Missing = append(report.Missing, p)
		}
	}
	for _, k := range keys {
		if !expected[k] {
			report.Orphans = append(report.Orphans, k)
		}
	}
	sort.Strings(report.Duplicates)
	return report, errs
}

// Repair appends the orphaned content objects of report to the index, using
// their header lines as summary. Orphans whose id is already indexed (under
// another date) are left alone. It returns the ids added.
func Repair(ctx context.Context, index *IndexRepository, content *ContentStore, report Report) (added []string, err error) {
	if len(report.Orphans) == 0 {
		return nil, nil
	}
	idx, err := index.Load(ctx)
	if err != nil {
		return nil, err
	}
	var errs error
	for _, key := range report.Orphans {
		logger := log.WithField("key", key)
		p, err := content.ReadContent(ctx, key)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%q: %w", key, err))
			continue
		}
		if p.Date == "" {
			p.Date = dateFromKey(content.Prefix(), key)
		}
		if want, err := content.Path(p.ID, p.Date); err != nil || want != key {
			errs = multierror.Append(errs, fmt.Errorf("%q: header date %q does not match its path", key, p.Date))
			continue
		}
		if _, ok := idx.Find(p.ID); ok {
			logger.WithField("id", p.ID).Warn("Orphan shadowed by an indexed post with the same id")
			continue
		}
		idx.Upsert(p.PostSummary)
		added = append(added, p.ID)
		logger.WithField("id", p.ID).Info("Restored index entry")
	}
	if len(added) > 0 {
		if err := index.Save(ctx, idx); err != nil {
			return nil, multierror.Append(errs, err)
		}
	}
	return added, errs
}

// dateFromKey recovers "YYYY-MM-DD" from "{prefix}YYYY/MM/DD/{id}.md".
func dateFromKey(prefix, key string) string {
	parts := strings.Split(path.Dir(strings.TrimPrefix(key, prefix)), "/")
	if len(parts) != 3 {
		return ""
	}
	return strings.Join(parts, "-")
}
