package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/marketledger/internal/jobs"
	"github.com/odyssey-erp/marketledger/internal/ledger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerEvent carries one ledger mutation to the worker.
	TaskLedgerEvent = "ledger:event"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NewLedgerEventTask constructs an Asynq task for evt.
func NewLedgerEventTask(evt ledger.Event) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerEvent, data), nil
}

// LedgerEventJob consumes ledger events off the queue.
type LedgerEventJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerEventJob wires dependencies for the event handler.
func NewLedgerEventJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerEventJob {
	return &LedgerEventJob{Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerEvent tasks.
func (j *LedgerEventJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger event: handler not configured")
	}
	var evt ledger.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	if evt.Kind == "" || evt.ProductID == 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerEvent)
	j.metrics().ObserveEvent(string(evt.Kind))
	j.logger().LogAttrs(ctx, slog.LevelInfo, "ledger event consumed",
		slog.String("event_id", evt.ID),
		slog.String("kind", string(evt.Kind)),
		slog.Uint64("product_id", evt.ProductID),
		slog.String("seller", string(evt.Seller)),
		slog.String("buyer", string(evt.Buyer)),
	)
	return tracker.End(nil)
}

func (j *LedgerEventJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerEvent))
	}
	return slog.Default().With(slog.String("job", TaskLedgerEvent))
}

func (j *LedgerEventJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
