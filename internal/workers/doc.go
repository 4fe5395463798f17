/*
Package workers sizes worker pools for artifact production in containerized
environments.

Go 1.19+ sets GOMAXPROCS from the container CPU limit, while runtime.NumCPU
still reports the host's CPUs. The helpers here scale GOMAXPROCS by the kind
of work:

	workers.ForCPU(8)  // decoding and encoding thumbnails
	workers.ForIO(16)  // pruning stale artifacts from the database

Every helper honours the ARTIFACT_WORKERS environment variable, capped by
the limit passed in.

Group wraps an errgroup with that limit applied:

	g, ctx := workers.Group(ctx, workers.ForCPU(8))
	for _, e := range entries {
		g.Go(func() error { return produce(ctx, e) })
	}
	err := g.Wait()
*/
package workers
