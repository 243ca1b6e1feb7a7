package predict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-gemoma/internal/reference"
)

// State is the state of a scheduler.
type State int

const (
	Idle State = iota
	Running
	Completed
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed out"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result is the outcome of predicting one transcript.
type Result struct {
	Seq         int
	Transcript  *reference.Transcript
	State       State
	Err         error
	Stats       Stats
	Predictions []*Prediction
}

// Status returns the summary status of the result.
func (r *Result) Status() string {
	switch {
	case r.State == TimedOut:
		return "timeout"
	case r.Err != nil:
		return "error: " + r.Err.Error()
	case len(r.Predictions) == 0:
		return "no prediction"
	}
	return "ok"
}

// Scheduler predicts transcripts one at a time under a per-transcript
// timeout. Each analysis runs on its own goroutine; a scheduler must not be
// used concurrently.
type Scheduler struct {
	res    *Resources
	p      Params
	ws     *Workspace
	state  State
	logger *zap.Logger
}

// NewScheduler returns an idle scheduler.
func NewScheduler(res *Resources, p Params) *Scheduler {
	return &Scheduler{
		res:    res,
		p:      p,
		ws:     NewWorkspace(res.Costs),
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for timeout and failure warnings.
func (s *Scheduler) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// State returns the state after the last Run.
func (s *Scheduler) State() State {
	return s.state
}

type outcome struct {
	predictions []*Prediction
	stats       Stats
	err         error
}

// Run predicts the transcript of job. It returns when the analysis ends,
// the timeout expires or ctx is cancelled. A worker that does not unwind
// within the grace period after a timeout is abandoned together with its
// workspace.
func (s *Scheduler) Run(ctx context.Context, job *Job) *Result {
	s.state = Running
	res := &Result{Seq: job.Seq, Transcript: job.Transcript}
	start := time.Now()

	wctx, cancel := context.WithTimeout(ctx, s.p.Timeout)
	defer cancel()
	done := make(chan outcome, 1)
	ws := s.ws
	ws.reset()
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				o = outcome{err: fmt.Errorf("panic: %v", r)}
			}
			done <- o
		}()
		a := newAnalysis(wctx, ws, s.res, s.p, job.Transcript)
		o.predictions, o.err = a.run(job)
		o.stats = a.stats
		o.stats.Alignments = ws.alignments
	}()

	var o outcome
	select {
	case o = <-done:
	case <-wctx.Done():
		cancel()
		select {
		case o = <-done:
		case <-time.After(s.p.Grace):
			s.ws = NewWorkspace(s.res.Costs)
			o = outcome{err: wctx.Err()}
		}
	}
	res.Stats = o.stats
	res.Stats.Hits = job.Lines
	res.Stats.Elapsed = time.Since(start)

	switch {
	case o.err == nil:
		s.state = Completed
		res.Predictions = o.predictions
	case errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.state = TimedOut
		res.Err = ErrTimeout
		s.ws = NewWorkspace(s.res.Costs)
		s.logger.Warn("transcript timed out",
			zap.String("transcript", job.Transcript.ID),
			zap.Duration("timeout", s.p.Timeout))
	default:
		s.state = Failed
		res.Err = o.err
		s.logger.Warn("transcript failed",
			zap.String("transcript", job.Transcript.ID),
			zap.Error(o.err))
	}
	res.State = s.state
	return res
}
