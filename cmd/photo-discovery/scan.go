package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"photo-discovery/internal/config"
	"photo-discovery/internal/discovery"
	"photo-discovery/internal/session"
	"photo-discovery/internal/watcher"

	"github.com/spf13/cobra"
)

// watchDebounce lets a burst of changes settle before relisting.
const watchDebounce = 250 * time.Millisecond

type scanOptions struct {
	pageSize  int
	recursive bool
	all       bool
	order     string
	watch     bool
	token     string
}

func newScanCommand(root *rootOptions) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "List a folder page by page",
		Long: `List the images in a folder in pages. Each page ends with a continuation
token that --token accepts to pick up after it, even in a later run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, root, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.pageSize, "page-size", "n", 0, "entries per page (default from config)")
	flags.BoolVarP(&opts.recursive, "recursive", "r", false, "descend into subfolders")
	flags.BoolVarP(&opts.all, "all", "a", false, "list every entry, not only images")
	flags.StringVar(&opts.order, "order", "", `entry order: "path" or "mtime"`)
	flags.BoolVarP(&opts.watch, "watch", "w", false, "relist whenever the folder changes")
	flags.StringVar(&opts.token, "token", "", "resume after this continuation token")
	return cmd
}

func (o *scanOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("page-size") {
		cfg.PageSize = o.pageSize
	}
	if flags.Changed("recursive") {
		cfg.Recursive = o.recursive
	}
	if flags.Changed("all") && o.all {
		cfg.Filter = discovery.FilterAll
	}
	if flags.Changed("order") {
		cfg.Order = discovery.Order(o.order)
	}
	if flags.Changed("watch") {
		cfg.Watch = o.watch
	}
	return cfg.Validate()
}

func runScan(cmd *cobra.Command, root *rootOptions, opts *scanOptions, dir string) error {
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := withSignals(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	dir = filepath.Clean(dir)
	if opts.token != "" {
		h, err := a.session.Resume(opts.token)
		if err != nil {
			return err
		}
		if h.Root != dir {
			return fmt.Errorf("%w: token belongs to %s", session.ErrInvalidToken, h.Root)
		}
	} else {
		a.session.Initialize(dir)
	}

	out := cmd.OutOrStdout()
	if err := listAll(ctx, a, out); err != nil {
		return err
	}
	if !cfg.Watch {
		return nil
	}
	return watchFolder(ctx, a, out, dir)
}

// listAll prints batches until the session is exhausted or ctx is done.
func listAll(ctx context.Context, a *app, out io.Writer) error {
	for {
		batch, err := a.session.NextBatch(ctx, a.cfg.PageSize)
		if err != nil {
			return err
		}
		printBatch(out, batch)
		if ctx.Err() != nil {
			if st := a.session.Status(); st.HasMore {
				fmt.Fprintf(out, "# interrupted after %d batches (%d entries), resume with the last token\n",
					st.BatchesDelivered, st.EntriesDelivered)
			}
			return nil
		}
		if batch.IsLastBatch {
			if !batch.Cancelled {
				st := a.session.Status()
				fmt.Fprintf(out, "# delivered %d entries in %d batches\n", st.EntriesDelivered, st.BatchesDelivered)
				printScanStats(out, a.engine.LastStats())
			}
			return nil
		}
	}
}

func printScanStats(out io.Writer, st discovery.Stats) {
	fmt.Fprintf(out, "# scanned %d directories: %d images, %d other, %d skipped in %v\n",
		st.DirectoriesRead, st.Images, st.NonImages+st.Directories, st.Skipped, st.Elapsed.Round(time.Millisecond))
	if st.CriticalPauses > 0 {
		fmt.Fprintf(out, "# paused %d times under critical memory\n", st.CriticalPauses)
	}
}

func printBatch(out io.Writer, b session.Batch) {
	fmt.Fprintf(out, "# batch %d (generation %d): %d entries", b.BatchIndex, b.Generation, len(b.Entries))
	switch {
	case b.Cancelled:
		fmt.Fprint(out, ", cancelled")
	case b.TimedOut:
		fmt.Fprint(out, ", timed out")
	case b.IsLastBatch:
		fmt.Fprint(out, ", last")
	}
	fmt.Fprintln(out)

	for _, e := range b.Entries {
		if e.IsDirectory {
			fmt.Fprintf(out, "%s%c\n", e.Path, filepath.Separator)
			continue
		}
		fmt.Fprintln(out, e.Path)
	}
	for _, s := range b.Skipped {
		fmt.Fprintf(out, "! %s (%s)\n", s.Path, s.Reason)
	}
	if !b.IsLastBatch && b.ContinuationToken != "" {
		fmt.Fprintf(out, "# token %s\n", b.ContinuationToken)
	}
}

// watchFolder relists dir after every change until ctx is done. Artifacts of
// changed files are forgotten before the session restarts.
func watchFolder(ctx context.Context, a *app, out io.Writer, dir string) error {
	w, err := watcher.New(dir, watcher.Options{Recursive: a.cfg.Recursive, SkipHidden: a.cfg.SkipHidden})
	if err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	w.OnChange(func(ev watcher.Event) {
		a.forgetListings(ev.Path, ev.IsDir)
		if !ev.IsDir {
			a.forget(ctx, ev.Path)
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}

		timer := time.NewTimer(watchDebounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		select {
		case <-changed:
		default:
		}

		h := a.session.Reset(dir)
		fmt.Fprintf(out, "# %s changed, relisting (generation %d)\n", dir, h.Generation)
		if err := listAll(ctx, a, out); err != nil {
			return err
		}
	}
}
