// Package scheduler decides when pending graph changes warrant a rebuild.
//
// The policy is lazy and latency driven: nothing happens below a minimum
// number of pending changes; past it, one diagnostic sample search is timed
// and compared with the best latency seen so far.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Reason explains a Decision.
type Reason int

const (
	// ReasonBelowMinimum means fewer than MinPending changes are pending.
	ReasonBelowMinimum Reason = iota
	// ReasonDeferred means the last sample was healthy and CheckInterval more
	// changes have not accumulated yet.
	ReasonDeferred
	// ReasonNoBaseline means no search latency was observed yet.
	ReasonNoBaseline
	// ReasonDegraded means the sample exceeded DegradationFactor x baseline.
	ReasonDegraded
	// ReasonHealthy means the sample stayed within the degradation bound.
	ReasonHealthy
)

func (r Reason) String() string {
	switch r {
	case ReasonBelowMinimum:
		return "below_minimum"
	case ReasonDeferred:
		return "deferred"
	case ReasonNoBaseline:
		return "no_baseline"
	case ReasonDegraded:
		return "degraded"
	case ReasonHealthy:
		return "healthy"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Rebuild bool
	Reason  Reason
	// Sample is the measured sample latency, zero when no sample ran.
	Sample time.Duration
}

// Options configures a Scheduler.
type Options struct {
	// MinPending is the number of pending changes below which no rebuild
	// is considered.
	MinPending int

	// DegradationFactor is the sample/baseline latency ratio that triggers a
	// rebuild.
	DegradationFactor float64

	// CheckInterval is the number of further changes after a healthy sample
	// before the next sample.
	CheckInterval int
}

// DefaultOptions contains the default configuration for a Scheduler.
var DefaultOptions = Options{
	MinPending:        2000,
	DegradationFactor: 2.0,
	CheckInterval:     256,
}

// Scheduler tracks the latency baseline and the sample cadence.
// Observe is safe for concurrent use with every other method.
type Scheduler struct {
	opts Options

	baseline atomic.Int64 // nanoseconds; 0 = unset

	mu        sync.Mutex
	nextCheck int
}

// New creates a scheduler.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MinPending < 0 {
		opts.MinPending = 0
	}
	if !(opts.DegradationFactor > 1) {
		opts.DegradationFactor = DefaultOptions.DegradationFactor
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultOptions.CheckInterval
	}
	return &Scheduler{opts: opts}
}

// Options returns the effective configuration.
func (s *Scheduler) Options() Options { return s.opts }

// Baseline returns the current latency baseline and whether one is set.
func (s *Scheduler) Baseline() (time.Duration, bool) {
	b := s.baseline.Load()
	return time.Duration(b), b > 0
}

// Observe records a search latency. The first observation sets the baseline;
// later ones lower it when they are under half of it.
func (s *Scheduler) Observe(d time.Duration) {
	if d <= 0 {
		d = 1
	}
	for {
		cur := s.baseline.Load()
		if cur > 0 && int64(d) >= cur/2 {
			return
		}
		if s.baseline.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

// Evaluate decides whether pending changes warrant a rebuild. sample runs one
// diagnostic search and returns its latency; it is called at most once and
// only when a baseline exists.
func (s *Scheduler) Evaluate(pending int, sample func() time.Duration) Decision {
	if pending < s.opts.MinPending {
		return Decision{Reason: ReasonBelowMinimum}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pending < s.nextCheck {
		return Decision{Reason: ReasonDeferred}
	}

	baseline, ok := s.Baseline()
	if !ok {
		return Decision{Rebuild: true, Reason: ReasonNoBaseline}
	}

	latency := sample()
	limit := float64(baseline) * s.opts.DegradationFactor
	if float64(latency) > limit {
		return Decision{Rebuild: true, Reason: ReasonDegraded, Sample: latency}
	}

	s.nextCheck = pending + s.opts.CheckInterval
	return Decision{Reason: ReasonHealthy, Sample: latency}
}

// Reset clears the sample cadence after a rebuild. The baseline is kept.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCheck = 0
}

// ResetBaseline forgets the latency baseline.
func (s *Scheduler) ResetBaseline() {
	s.baseline.Store(0)
}
