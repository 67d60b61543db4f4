package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Runner drives one bot per configured protocol
type Runner struct {
	bots   []*Bot
	logger *zap.Logger
}

func NewRunner(logger *zap.Logger, bots ...*Bot) *Runner {
	return &Runner{bots: bots, logger: logger}
}

// RunOnce runs every bot in order. A failing protocol does not stop the
// others; the failures are returned together.
func (r *Runner) RunOnce(ctx context.Context) error {
	var errs []error
	for _, b := range r.bots {
		start := time.Now()
		r.logger.Info("Running bot", zap.String("protocol", b.Name()))
		if err := b.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("Bot run failed", zap.String("protocol", b.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		r.logger.Info("Finished bot",
			zap.String("protocol", b.Name()),
			zap.Duration("elapsed", time.Since(start)))
	}
	return errors.Join(errs...)
}

// Loop runs once when delay is zero, otherwise repeats every delay until
// ctx is done
func (r *Runner) Loop(ctx context.Context, delay time.Duration) error {
	for {
		err := r.RunOnce(ctx)
		if delay <= 0 {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Info("Waiting before restarting", zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
