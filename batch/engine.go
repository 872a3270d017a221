package batch

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultYield = 100 * time.Millisecond

// engine holds what the refresh and enrollment engines share
type engine struct {
	reporter Reporter
	clock    clockwork.Clock
	logger   zerolog.Logger
	yield    time.Duration
	rng      *rand.Rand
}

// Option configures a Refresher or an Enroller
type Option func(*engine)

func WithReporter(r Reporter) Option {
	return func(e *engine) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithClock sets the clock used for elapsed time and the progress yield (primarily for testing)
func WithClock(c clockwork.Clock) Option {
	return func(e *engine) {
		e.clock = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *engine) {
		e.logger = l
	}
}

// WithYield sets the pause after each throttled progress emission. Zero disables it.
func WithYield(d time.Duration) Option {
	return func(e *engine) {
		e.yield = max(d, 0)
	}
}

// WithRand sets the random source used for enrollment sampling
func WithRand(r *rand.Rand) Option {
	return func(e *engine) {
		e.rng = r
	}
}

func newEngine(opts []Option) engine {
	e := engine{
		reporter: NopReporter,
		clock:    clockwork.NewRealClock(),
		logger:   log.Logger,
		yield:    defaultYield,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// emit hands a snapshot to the reporter and then yields so the rest of the
// process gets a turn between external calls.
func (e *engine) emit(ctx context.Context, run *Run, final bool) {
	e.reporter.Report(ctx, run.snapshot(e.clock.Now(), final))
	if e.yield <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-e.clock.After(e.yield):
	}
}

func (e *engine) pick(n int) int {
	if e.rng != nil {
		return e.rng.IntN(n)
	}
	return rand.IntN(n)
}

func (e *engine) elapsed(run *Run) time.Duration {
	return e.clock.Since(run.StartTime)
}
