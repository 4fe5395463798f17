package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"time"

	"photo-discovery/internal/classify"
	"photo-discovery/internal/discovery"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/media"
	"photo-discovery/internal/workers"

	"github.com/spf13/cobra"
)

const (
	// maxThumbnailWorkers caps decoders running at once.
	maxThumbnailWorkers = 8
	// maxPruneWorkers caps concurrent database prunes.
	maxPruneWorkers = 16
)

type thumbsOptions struct {
	pageSize  int
	recursive bool
	jobs      int
}

// thumbsSummary counts what a thumbs run did.
type thumbsSummary struct {
	images    atomic.Int64
	produced  atomic.Int64
	invalid   atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	pruned    atomic.Int64
	cancelled bool
}

func newThumbsCommand(root *rootOptions) *cobra.Command {
	opts := &thumbsOptions{}

	cmd := &cobra.Command{
		Use:   "thumbs <dir>",
		Short: "Produce thumbnails and metadata for a folder",
		Long: `Page through a folder and fill the artifact caches with a validation
result, a thumbnail and metadata for every image. With --db the artifacts are
written through to SQLite and reused by later runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThumbs(cmd, root, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.pageSize, "page-size", "n", 0, "entries per page (default from config)")
	flags.BoolVarP(&opts.recursive, "recursive", "r", false, "descend into subfolders")
	flags.IntVarP(&opts.jobs, "jobs", "j", 0, "parallel decoders (default from CPU count)")
	return cmd
}

func runThumbs(cmd *cobra.Command, root *rootOptions, opts *thumbsOptions, dir string) error {
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("page-size") {
		cfg.PageSize = opts.pageSize
	}
	if cmd.Flags().Changed("recursive") {
		cfg.Recursive = opts.recursive
	}
	cfg.Filter = discovery.FilterImages
	cfg.Watch = false
	if err := cfg.Validate(); err != nil {
		return err
	}

	jobs := opts.jobs
	if jobs <= 0 {
		jobs = workers.ForCPU(maxThumbnailWorkers)
	}

	ctx, stop := withSignals(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	start := time.Now()
	a.session.Initialize(filepath.Clean(dir))
	logging.Info("Producing artifacts for %s with %d workers", dir, jobs)

	var summary thumbsSummary
	for {
		batch, err := a.session.NextBatch(ctx, cfg.PageSize)
		if err != nil {
			return err
		}
		summary.skipped.Add(int64(len(batch.Skipped)))

		if err := a.produceAll(ctx, batch.Entries, jobs, &summary); err != nil {
			if !errors.Is(err, context.Canceled) || ctx.Err() == nil {
				return err
			}
		}
		if err := a.pruneAll(ctx, batch.Entries, &summary); err != nil && ctx.Err() == nil {
			return err
		}
		if ctx.Err() != nil || batch.Cancelled {
			summary.cancelled = true
			break
		}
		if batch.IsLastBatch {
			break
		}
	}

	if a.store != nil && !summary.cancelled {
		if err := a.store.SetLastPruneRun(ctx, time.Now()); err != nil {
			logging.Warn("Failed to record prune time: %v", err)
		}
	}

	summary.print(cmd.OutOrStdout(), time.Since(start))
	return nil
}

// produceAll runs produce for every image in entries on at most jobs goroutines.
func (a *app) produceAll(ctx context.Context, entries []classify.FileEntry, jobs int, summary *thumbsSummary) error {
	g, gctx := workers.Group(ctx, jobs)
	for _, entry := range entries {
		if !entry.IsImage {
			continue
		}
		g.Go(func() error {
			return a.produce(gctx, entry, summary)
		})
	}
	return g.Wait()
}

// produce fills the caches for one image. Failures of a single file are
// counted and logged; only cancellation is returned.
func (a *app) produce(ctx context.Context, entry classify.FileEntry, summary *thumbsSummary) error {
	summary.images.Add(1)

	v, err := a.validation.GetOrCompute(ctx, entry, media.Validate)
	if err != nil {
		return a.fileFailed(ctx, entry, "validate", err, summary)
	}
	if !v.Valid {
		summary.invalid.Add(1)
		logging.Debug("Not an image: %s: %s", entry.Path, v.Reason)
		return nil
	}

	if _, err := a.thumbnails.GetOrCompute(ctx, entry, a.generator.Generate); err != nil {
		return a.fileFailed(ctx, entry, "thumbnail", err, summary)
	}
	if _, err := a.metadata.GetOrCompute(ctx, entry, media.ExtractMetadata); err != nil {
		return a.fileFailed(ctx, entry, "metadata", err, summary)
	}
	summary.produced.Add(1)
	return nil
}

// pruneAll deletes stored artifacts of earlier versions of every image in
// entries. Database round trips overlap, so it runs wider than produceAll.
func (a *app) pruneAll(ctx context.Context, entries []classify.FileEntry, summary *thumbsSummary) error {
	if a.store == nil {
		return nil
	}
	g, gctx := workers.Group(ctx, workers.ForIO(maxPruneWorkers))
	for _, entry := range entries {
		if !entry.IsImage {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n, err := a.store.PruneStale(gctx, entry.Path, entry.Fingerprint)
			if err != nil {
				logging.Warn("Failed to prune stale artifacts for %s: %v", entry.Path, err)
				return nil
			}
			summary.pruned.Add(n)
			return nil
		})
	}
	return g.Wait()
}

func (a *app) fileFailed(ctx context.Context, entry classify.FileEntry, step string, err error, summary *thumbsSummary) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	summary.failed.Add(1)
	logging.Warn("Failed to %s %s: %v", step, entry.Path, err)
	return nil
}

func (s *thumbsSummary) print(out io.Writer, elapsed time.Duration) {
	fmt.Fprintf(out, "images:     %d\n", s.images.Load())
	fmt.Fprintf(out, "thumbnails: %d\n", s.produced.Load())
	fmt.Fprintf(out, "invalid:    %d\n", s.invalid.Load())
	fmt.Fprintf(out, "failed:     %d\n", s.failed.Load())
	fmt.Fprintf(out, "skipped:    %d\n", s.skipped.Load())
	fmt.Fprintf(out, "pruned:     %d\n", s.pruned.Load())
	if s.cancelled {
		fmt.Fprintln(out, "cancelled before the folder was finished")
	}
	fmt.Fprintf(out, "elapsed:    %v\n", elapsed.Round(time.Millisecond))
}
