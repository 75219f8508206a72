package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Completer moves finished appointments to the completed state.
type Completer interface {
	CompletePastAppointments(ctx context.Context) (int, error)
}

// StatusWorker runs the completer on a cron schedule. Runs never overlap.
type StatusWorker struct {
	completer Completer
	cron      *cron.Cron
	timeout   time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewStatusWorker(completer Completer, schedule string, timeout time.Duration, logger *zap.Logger) (*StatusWorker, error) {
	w := &StatusWorker{
		completer: completer,
		timeout:   timeout,
		logger:    logger.Named("status-worker"),
	}

	w.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := w.cron.AddFunc(schedule, w.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Start runs once immediately and then follows the schedule until ctx is done.
func (w *StatusWorker) Start(ctx context.Context) {
	w.mu.Lock()
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.RunOnce(w.ctx)
	w.cron.Start()
}

// Stop cancels an in-flight run and waits for it to return.
func (w *StatusWorker) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	<-w.cron.Stop().Done()
}

func (w *StatusWorker) tick() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	w.RunOnce(ctx)
}

// RunOnce performs a single completion pass and returns how many appointments changed.
func (w *StatusWorker) RunOnce(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	n, err := w.completer.CompletePastAppointments(runCtx)
	if err != nil {
		w.logger.Error("status run failed", zap.Error(err))
		return 0
	}

	w.logger.Info("status run complete",
		zap.Int("completed", n),
		zap.Duration("duration", time.Since(start)),
	)
	return n
}
