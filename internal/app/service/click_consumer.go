package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/repository"
	infraPrometheus "github.com/sifan077/linkpulse/internal/infra/prometheus"
	"go.uber.org/zap"
)

// errDropEvent marks events that can never be stored and must not be redelivered.
var errDropEvent = errors.New("drop click event")

// pullSubscription is the part of *nats.Subscription the consumer uses.
type pullSubscription interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
	Unsubscribe() error
}

// ClickConsumer consumes click events from NATS JetStream
type ClickConsumer struct {
	js      nats.JetStreamContext
	logger  *zap.Logger
	store   repository.Store
	metrics *infraPrometheus.Metrics
	wg      sync.WaitGroup
}

// NewClickConsumer creates a new click event consumer
func NewClickConsumer(js nats.JetStreamContext, logger *zap.Logger, store repository.Store, metrics *infraPrometheus.Metrics) *ClickConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = infraPrometheus.NewMetrics(nil)
	}
	return &ClickConsumer{js: js, logger: logger, store: store, metrics: metrics}
}

// Start ensures the stream and durable consumer exist and consumes until ctx
// is done. Wait blocks until consuming has stopped.
func (c *ClickConsumer) Start(ctx context.Context) error {
	// Create stream if not exists
	_, err := c.js.StreamInfo(model.ClickStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.ClickStreamName,
			Subjects: []string{model.ClickStreamSubject},
			MaxBytes: model.ClickStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	// Create consumer if not exists
	_, err = c.js.ConsumerInfo(model.ClickStreamName, model.ClickConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.ClickStreamName, &nats.ConsumerConfig{
			Durable:   model.ClickConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ClickStreamSubject, model.ClickConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.run(ctx, sub)
	return nil
}

// Wait blocks until the consume loop has exited. It returns at once when the
// consumer was never started.
func (c *ClickConsumer) Wait() {
	c.wg.Wait()
}

func (c *ClickConsumer) run(ctx context.Context, sub pullSubscription) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx, sub)
	}()
}

func (c *ClickConsumer) consume(ctx context.Context, sub pullSubscription) {
	defer func() { _ = sub.Unsubscribe() }()

	for {
		if ctx.Err() != nil {
			c.logger.Info("click consumer stopped")
			return
		}

		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			switch err := c.handle(ctx, msg.Data); {
			case err == nil:
				_ = msg.Ack()
			case errors.Is(err, errDropEvent):
				_ = msg.Term()
			default:
				_ = msg.Nak()
			}
		}
	}
}

// handle stores one event. A failed click write is retried through
// redelivery; a failed counter increment is logged and the event is acked,
// so redelivery never duplicates the click.
func (c *ClickConsumer) handle(ctx context.Context, data []byte) error {
	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Error("failed to unmarshal click event", zap.Error(err))
		return errDropEvent
	}

	writeCtx, cancel := context.WithTimeout(ctx, clickWriteTimeout)
	defer cancel()

	visit := model.Visit{
		IP:        event.IP,
		UserAgent: event.UserAgent,
		Referrer:  event.Referrer,
		At:        event.Timestamp,
	}
	if _, err := c.store.CreateClick(writeCtx, newClick(event.LinkID, visit)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.logger.Debug("dropping click for deleted link", zap.String("link_code", event.LinkCode))
			return errDropEvent
		}
		c.metrics.ClickFailures.WithLabelValues("create_click").Inc()
		c.logger.Error("failed to store click event",
			zap.String("id", event.ID),
			zap.String("link_code", event.LinkCode),
			zap.Error(err))
		return err
	}
	c.metrics.ClicksRecorded.Inc()

	if err := c.store.IncrementClickCount(writeCtx, event.LinkID); err != nil {
		c.metrics.ClickFailures.WithLabelValues("increment").Inc()
		c.logger.Error("failed to increment click count",
			zap.String("id", event.ID),
			zap.String("link_id", event.LinkID),
			zap.Error(err))
	}

	c.logger.Debug("click event stored",
		zap.String("id", event.ID),
		zap.String("link_code", event.LinkCode),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}
