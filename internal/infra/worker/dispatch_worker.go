package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/infra/http/middleware"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

var ErrRunInProgress = errors.New("dispatch run already in progress")

type Dispatcher interface {
	Execute(ctx context.Context) (*usecase.DispatchOutput, error)
}

// DispatchWorker runs the dispatcher on a cron schedule. Scheduled and manual
// runs share one lock so at most one run is active per process.
type DispatchWorker struct {
	dispatcher Dispatcher
	schedule   string
	mu         sync.Mutex
}

func NewDispatchWorker(d Dispatcher, schedule string) *DispatchWorker {
	return &DispatchWorker{
		dispatcher: d,
		schedule:   schedule,
	}
}

// Start blocks until ctx is done, then waits for a running dispatch to
// finish.
func (w *DispatchWorker) Start(ctx context.Context) error {
	logger := log.Ctx(ctx).With().Str("worker", "dispatch").Logger()
	cronLog := cron.PrintfLogger(&logger)

	c := cron.New(cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))

	_, err := c.AddFunc(w.schedule, func() {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			logger.Error().Err(err).Msg("scheduled dispatch failed")
		}
	})
	if err != nil {
		return err
	}

	logger.Info().Str("schedule", w.schedule).Msg("dispatch worker started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("dispatch worker stopped")
	return nil
}

func (w *DispatchWorker) RunOnce(ctx context.Context) (*usecase.DispatchOutput, error) {
	if !w.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer w.mu.Unlock()

	start := time.Now()
	out, err := w.dispatcher.Execute(ctx)
	if out != nil {
		middleware.RecordDispatch(out.Sent, out.Failed, out.Skipped, time.Since(start))
	}
	return out, err
}
