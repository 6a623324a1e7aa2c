package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-ticket-service/internal/service"
)

// Sweeper runs one escalation pass.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// EscalationWorker schedules escalation sweeps.
type EscalationWorker struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *zap.Logger
	timeout time.Duration
}

// NewEscalationWorker registers sweeper on schedule, a standard cron spec or
// a descriptor such as "@every 30s". Overlapping runs are skipped.
func NewEscalationWorker(sweeper Sweeper, schedule string, timeout time.Duration, logger *zap.Logger) (*EscalationWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	cronLogger := zapCronLogger{logger: logger.Named("cron")}
	w := &EscalationWorker{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(
				cron.Recover(cronLogger),
				cron.SkipIfStillRunning(cronLogger),
			),
		),
		sweeper: sweeper,
		logger:  logger,
		timeout: timeout,
	}
	if _, err := w.cron.AddFunc(schedule, w.run); err != nil {
		return nil, err
	}
	return w, nil
}

// Start begins scheduling in the background.
func (w *EscalationWorker) Start() {
	w.cron.Start()
	w.logger.Info("escalation worker started", zap.Int("jobs", len(w.cron.Entries())))
}

// Stop halts scheduling and waits for a running sweep or ctx.
func (w *EscalationWorker) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		w.logger.Warn("escalation worker stop timed out")
	}
}

func (w *EscalationWorker) run() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	result, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.logger.Error("escalation sweep failed", zap.Error(err))
		return
	}
	if result.Escalated > 0 || result.Failed > 0 {
		w.logger.Info("escalation sweep",
			zap.Int("scanned", result.Scanned),
			zap.Int("escalated", result.Escalated),
			zap.Int("failed", result.Failed))
	}
}

// zapCronLogger routes cron's scheduler, skip and panic messages to zap.
type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
