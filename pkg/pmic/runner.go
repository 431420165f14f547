package pmic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pmicdash/pmicdash/pkg/clock"
)

// DefaultTickInterval is how often telemetry is simulated.
const DefaultTickInterval = 2 * time.Second

// TelemetrySink receives every sample drawn by a Runner, e.g. to forward it
// to a message broker.
type TelemetrySink interface {
	Publish(ctx context.Context, sample Sample, state State) error
}

// RunnerConfig configures the telemetry loop.
type RunnerConfig struct {
	// Interval between ticks. Default: 2 seconds.
	Interval time.Duration

	// Sink is optional.
	Sink TelemetrySink

	// Clock is the clock to use for ticks. If nil, uses real time.
	Clock clock.Clock
}

// Runner drives Model.Tick on a fixed interval. Ticks never overlap: each
// completes before the next is received.
type Runner struct {
	model  *Model
	config RunnerConfig
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a telemetry runner for model.
func NewRunner(model *Model, config RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultTickInterval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Runner{
		model:  model,
		config: config,
		clock:  clk,
		logger: logger.With(slog.String("component", "telemetry-runner")),
	}
}

// Start begins ticking in the background. Calling Start on a running
// Runner has no effect.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.started = true

	// Create the ticker before the goroutine so no tick is lost between
	// Start returning and the loop being scheduled.
	ticker := r.clock.NewTicker(r.config.Interval)

	r.wg.Add(1)
	go r.loop(ctx, ticker)

	r.logger.Debug("telemetry runner started", slog.Duration("interval", r.config.Interval))
}

// Stop halts the loop and waits for an in-progress tick to finish. After
// Stop returns, Start can be called again.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}

	r.cancel()
	r.wg.Wait()
	r.started = false

	r.logger.Debug("telemetry runner stopped")
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *Runner) loop(ctx context.Context, ticker clock.Ticker) {
	defer r.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	sample, _, ok := r.model.Tick()
	if !ok || r.config.Sink == nil {
		return
	}
	if err := r.config.Sink.Publish(ctx, sample, r.model.State()); err != nil {
		r.logger.Warn("failed to publish telemetry", slog.String("error", err.Error()))
	}
}
