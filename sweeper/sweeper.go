// Package sweeper deletes stored files that no article references, such as
// leftovers from an interrupted submission or a failed cascade.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"articlehub/blobstore"
	"articlehub/metrics"
	"articlehub/types"
)

// DefaultGrace protects blobs that may belong to a submission still in flight.
const DefaultGrace = time.Hour

// References reports which blob keys are in use.
type References interface {
	ReferencedKeys(ctx context.Context) (map[string]struct{}, error)
}

// Result summarizes one pass.
type Result struct {
	Scanned int
	Orphans []string
	Deleted int
}

type Sweeper struct {
	refs  References
	blobs blobstore.Store
	grace time.Duration
	log   *slog.Logger
	now   func() time.Time
}

func New(refs References, blobs blobstore.Store, grace time.Duration, log *slog.Logger) *Sweeper {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Sweeper{refs: refs, blobs: blobs, grace: grace, log: log, now: time.Now}
}

// Run removes unreferenced blobs older than the grace period. Blobs are listed
// before references are read, so a row committed during the pass still
// protects its files. With dryRun set, orphans are reported but kept.
func (s *Sweeper) Run(ctx context.Context, dryRun bool) (Result, error) {
	var objects []blobstore.Object
	for _, ns := range blobstore.Namespaces {
		listed, err := s.blobs.List(ctx, ns)
		if err != nil {
			return Result{}, fmt.Errorf("failed to list %s: %w", ns, err)
		}
		objects = append(objects, listed...)
	}

	refs, err := s.refs.ReferencedKeys(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load references: %w", err)
	}

	res := Result{Scanned: len(objects)}
	cutoff := s.now().Add(-s.grace)
	for _, obj := range objects {
		if _, used := refs[obj.Key]; used || obj.Modified.After(cutoff) {
			continue
		}
		res.Orphans = append(res.Orphans, obj.Key)
		if dryRun {
			continue
		}

		err := s.blobs.Delete(ctx, obj.Key)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			s.log.WarnContext(ctx, "failed to delete orphan", "key", obj.Key, "error", err)
			continue
		}
		res.Deleted++
		metrics.SweptBlobs.WithLabelValues(namespaceOf(obj.Key)).Inc()
	}

	s.log.InfoContext(ctx, "sweep finished",
		"scanned", res.Scanned, "orphans", len(res.Orphans), "deleted", res.Deleted, "dry_run", dryRun)
	return res, nil
}

func namespaceOf(key string) string {
	for _, ns := range blobstore.Namespaces {
		if len(key) > len(ns) && key[:len(ns)] == string(ns) && key[len(ns)] == '/' {
			return string(ns)
		}
	}
	return "unknown"
}
