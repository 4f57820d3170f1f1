package coverage

import (
	"context"
	"sort"
	"sync"
)

// Job is one per-target step of report generation, such as a profile merge.
type Job func(ctx context.Context) error

// RunPool runs jobs on at most maxWorkers goroutines and returns the sorted
// indices of the jobs that were skipped: those that failed and those never
// started because ctx was cancelled first.
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []int {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var (
		mu      sync.Mutex
		skipped []int
		wg      sync.WaitGroup
	)
	skip := func(i int) {
		mu.Lock()
		skipped = append(skipped, i)
		mu.Unlock()
	}
	sem := make(chan struct{}, maxWorkers)

	for i, job := range jobs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			skip(i)
			continue
		}
		if ctx.Err() != nil {
			<-sem
			skip(i)
			continue
		}
		wg.Add(1)
		go func(i int, j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := j(ctx); err != nil {
				skip(i)
			}
		}(i, job)
	}
	wg.Wait()
	sort.Ints(skipped)
	return skipped
}
