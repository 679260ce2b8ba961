package authsession

import (
	"context"
	"errors"
	"time"
)

// Sweep deletes expired refresh sessions and expired reset tokens. Both
// passes run even if the first fails; the errors are joined.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if e == nil || e.refresh == nil {
		return SweepResult{}, ErrEngineNotReady
	}

	var result SweepResult
	var errs []error

	n, err := e.refresh.DeleteExpired(ctx, e.now())
	if err != nil {
		errs = append(errs, err)
	}
	result.RefreshSessions = n

	n, err = e.resets.PruneExpired(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	result.ResetTokens = n

	e.metrics.Add(MetricSweepRemoved, uint64(result.RefreshSessions+result.ResetTokens))
	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

// StartSweeper runs Sweep every interval until ctx ends or StopSweeper is
// called. A non-positive interval uses Sweeper.Interval from the config;
// if that is zero too, nothing is started. Calling it while a sweeper is
// running replaces the running one.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = e.config.Sweeper.Interval
	}
	if interval <= 0 {
		return
	}

	// Stop and install under one lock.
	e.sweeperMu.Lock()
	defer e.sweeperMu.Unlock()
	e.stopSweeperLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.sweeperStop = cancel
	e.sweeperDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				result, err := e.Sweep(ctx)
				if err != nil && ctx.Err() == nil {
					e.logger.WarnContext(ctx, "authsession: sweep failed", "error", err)
					continue
				}
				if result.RefreshSessions+result.ResetTokens > 0 {
					e.logger.DebugContext(ctx, "authsession: sweep removed expired records",
						"refresh_sessions", result.RefreshSessions,
						"reset_tokens", result.ResetTokens,
					)
				}
			}
		}
	}()
}

// StopSweeper stops the background sweeper and waits for it to exit.
func (e *Engine) StopSweeper() {
	if e == nil {
		return
	}
	e.sweeperMu.Lock()
	defer e.sweeperMu.Unlock()
	e.stopSweeperLocked()
}

// stopSweeperLocked cancels the running sweeper and waits for it. The
// sweeper goroutine never takes sweeperMu, so waiting under it is safe.
func (e *Engine) stopSweeperLocked() {
	if e.sweeperStop == nil {
		return
	}
	e.sweeperStop()
	<-e.sweeperDone
	e.sweeperStop, e.sweeperDone = nil, nil
}
