package builders

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"limeal.fr/mcboot/pkg/utils"
)

var logger = slog.Default()

func InitLogger(sl *slog.Logger) {
	logger = sl
}

// BinaryFetcher downloads best-effort items.
type BinaryFetcher interface {
	FetchBinaryQuiet(ctx context.Context, url, dest string) bool
}

// SyncReport counts the outcome of one synchronization.
type SyncReport struct {
	Total   int
	Fetched int
	Skipped int
	Failed  int
}

type job struct {
	url  string
	dest string
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// tracker maps completed items into a progress range. Reports are serialized
// and never go backwards whatever order workers finish in.
type tracker struct {
	mu    sync.Mutex
	pr    *utils.ProgressRange
	every int
	done  int
	total int
	last  int
	// onStep is called under the lock with the number of completed items.
	onStep func(done, total int)
}

func newTracker(pr *utils.ProgressRange, total, every int) *tracker {
	if every <= 0 {
		every = 1
	}
	return &tracker{pr: pr, total: total, every: every, last: -1}
}

func (t *tracker) step() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	if t.done%t.every != 0 && t.done != t.total {
		return
	}
	if t.onStep != nil {
		t.onStep(t.done, t.total)
	}
	if t.pr == nil || t.pr.Report == nil || t.total == 0 {
		return
	}
	p := t.pr.Low + (t.pr.High-t.pr.Low)*t.done/t.total
	if p > t.last {
		t.last = p
		t.pr.Report(p)
	}
}

// runJobs fetches every missing destination with at most workers concurrent
// transfers. Failures are counted, only cancellation stops the batch.
func runJobs(ctx context.Context, f BinaryFetcher, jobs []job, workers int, t *tracker) (SyncReport, error) {
	var (
		mu     sync.Mutex
		report = SyncReport{Total: len(jobs)}
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(workers))
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			switch {
			case utils.FileExists(j.dest):
				count(&report.Skipped)
			case f.FetchBinaryQuiet(gctx, j.url, j.dest):
				count(&report.Fetched)
			default:
				count(&report.Failed)
			}
			t.step()
			return nil
		})
	}
	err := g.Wait()
	return report, err
}
