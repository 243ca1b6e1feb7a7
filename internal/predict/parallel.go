package predict

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Predictor runs schedulers on a pool of workers over shared resources.
type Predictor struct {
	res    *Resources
	p      Params
	logger *zap.Logger
}

// NewPredictor returns a predictor for the given resources and parameters.
func NewPredictor(res *Resources, p Params) *Predictor {
	return &Predictor{res: res, p: p, logger: zap.NewNop()}
}

// SetLogger sets the logger passed to every scheduler.
func (pr *Predictor) SetLogger(logger *zap.Logger) {
	pr.logger = logger
}

// Predict runs one job on the calling goroutine with a fresh scheduler.
func (pr *Predictor) Predict(ctx context.Context, job *Job) *Result {
	s := NewScheduler(pr.res, pr.p)
	s.SetLogger(pr.logger)
	return s.Run(ctx, job)
}

// ParallelPredict predicts jobs using a pool of workers, each with its own
// scheduler and workspace. Results are sent to the returned channel in
// arrival order (not sequence order). Use OrderedCollect to consume results
// in sequence-number order. If workers is 0, runtime.NumCPU() is used.
func (pr *Predictor) ParallelPredict(ctx context.Context, jobs <-chan *Job, workers int) <-chan *Result {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan *Result, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			s := NewScheduler(pr.res, pr.p)
			s.SetLogger(pr.logger)
			for job := range jobs {
				results <- s.Run(ctx, job)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan *Result, fn func(*Result) error) error {
	pending := make(map[int]*Result)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
