package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// CycleRunner runs one scan cycle. It never fails; a bad cycle is reported
// through the result.
type CycleRunner interface {
	RunCycle(ctx context.Context) domain.ScanResult
}

// Rand is the randomness source for the loop jitter.
type Rand interface {
	Float64() float64
}

// ScanLoop repeats scan cycles with a jittered pause between them so the
// request pattern is not perfectly periodic.
type ScanLoop struct {
	runner   CycleRunner
	interval time.Duration
	jitter   time.Duration
	rng      Rand
	wait     func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewScanLoop creates a ScanLoop. Each pause is interval plus a uniform draw
// in [-jitter, +jitter], never below one second. rng may be nil to disable
// jitter.
func NewScanLoop(runner CycleRunner, interval, jitter time.Duration, rng Rand, logger *slog.Logger) *ScanLoop {
	return &ScanLoop{
		runner:   runner,
		interval: interval,
		jitter:   jitter,
		rng:      rng,
		wait:     waitCtx,
		logger:   logger.With(slog.String("component", "scan_loop")),
	}
}

// RunLoop runs a cycle immediately and then keeps cycling until ctx is
// cancelled.
func (l *ScanLoop) RunLoop(ctx context.Context) error {
	for {
		run := l.runner.RunCycle(ctx)
		if run.Degraded() {
			l.logger.WarnContext(ctx, "scan cycle degraded",
				slog.String("run_id", run.ID),
				slog.String("error", run.Error),
			)
		}

		pause := l.nextPause()
		l.logger.DebugContext(ctx, "next scan scheduled", slog.Duration("in", pause))
		if err := l.wait(ctx, pause); err != nil {
			l.logger.InfoContext(ctx, "scan loop stopped")
			return err
		}
	}
}

func (l *ScanLoop) nextPause() time.Duration {
	d := l.interval
	if l.jitter > 0 && l.rng != nil {
		d += time.Duration((l.rng.Float64()*2 - 1) * float64(l.jitter))
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

func waitCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
