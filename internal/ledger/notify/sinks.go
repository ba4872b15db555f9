package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/marketledger/internal/ledger"
)

// DefaultChannel is the redis channel events are published on.
const DefaultChannel = "marketledger.events"

// LogSink writes each event to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements Sink.
func (s LogSink) Deliver(ctx context.Context, evt ledger.Event) error {
	s.Logger.LogAttrs(ctx, slog.LevelInfo, "ledger event",
		slog.String("event_id", evt.ID),
		slog.String("kind", string(evt.Kind)),
		slog.Uint64("product_id", evt.ProductID),
		slog.Uint64("price", evt.Price),
		slog.String("seller", string(evt.Seller)),
		slog.String("buyer", string(evt.Buyer)),
	)
	return nil
}

// RedisSink publishes events as JSON on a redis channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink constructs a RedisSink. An empty channel selects DefaultChannel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// Deliver implements Sink.
func (s *RedisSink) Deliver(ctx context.Context, evt ledger.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}

// TaskEnqueuer submits an event to the background job queue.
type TaskEnqueuer interface {
	EnqueueLedgerEvent(ctx context.Context, evt ledger.Event) (*asynq.TaskInfo, error)
}

// TaskSink hands events to the asynq worker.
type TaskSink struct {
	Enqueuer TaskEnqueuer
}

// Deliver implements Sink.
func (s TaskSink) Deliver(ctx context.Context, evt ledger.Event) error {
	_, err := s.Enqueuer.EnqueueLedgerEvent(ctx, evt)
	return err
}

// MetricsSink counts events and settled value.
type MetricsSink struct {
	events  *prometheus.CounterVec
	settled prometheus.Counter
}

// NewMetricsSink registers the ledger event collectors on registerer.
func NewMetricsSink(registerer prometheus.Registerer) *MetricsSink {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketledger_events_total",
		Help: "Ledger events emitted, by kind.",
	}, []string{"kind"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketledger_settled_units_total",
		Help: "Currency units moved from buyers to sellers.",
	})
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(events, settled)
	return &MetricsSink{events: events, settled: settled}
}

// Deliver implements Sink.
func (s *MetricsSink) Deliver(_ context.Context, evt ledger.Event) error {
	s.events.WithLabelValues(string(evt.Kind)).Inc()
	if evt.Kind == ledger.EventSold {
		s.settled.Add(float64(evt.Price))
	}
	return nil
}
