package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"mend/internal/logging"
	"mend/internal/tasks"
)

// BatchResult aggregates one batch run.
type BatchResult struct {
	Results  []EpisodeResult
	Passed   int
	Failed   int
	Aborted  int
	Duration time.Duration
}

// RunBatch runs every task as its own episode, at most Config.Parallelism at
// a time. Results are positionally aligned with the input. The context
// carries the batch deadline; episodes observe it between attempts.
func (e *Engine) RunBatch(ctx context.Context, batch []tasks.Task) BatchResult {
	parallelism := e.Config.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	start := time.Now()
	results := make([]EpisodeResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, task := range batch {
		g.Go(func() error {
			results[i] = e.RunEpisode(gctx, task)
			return nil
		})
	}
	// Workers never return errors; fatal collaborator failures stay inside
	// their own episode result.
	_ = g.Wait()

	out := BatchResult{Results: results, Duration: time.Since(start)}
	for _, r := range results {
		switch {
		case r.Passed:
			out.Passed++
		case r.Err != "":
			out.Aborted++
		default:
			out.Failed++
		}
	}
	logging.Orchestrator("Batch complete: tasks=%d passed=%d failed=%d aborted=%d duration=%s",
		len(batch), out.Passed, out.Failed, out.Aborted, out.Duration.Round(time.Millisecond))
	return out
}
