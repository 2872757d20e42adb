package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ming0627/bellyfed-new-sub015/component"
	"github.com/ming0627/bellyfed-new-sub015/errors"
)

// ConsumerConfig configures the batch event channel consumer.
type ConsumerConfig struct {
	StreamName    string        `json:"streamName"`
	Subjects      []string      `json:"subjects"`
	ConsumerName  string        `json:"consumerName"`
	MaxDeliver    int           `json:"maxDeliver"`
	AckWait       time.Duration `json:"ackWait"`
	MaxAckPending int           `json:"maxAckPending"`
}

// Validate checks required fields and applies defaults.
func (c *ConsumerConfig) Validate() error {
	if c.StreamName == "" {
		return errors.MissingField("streamName")
	}
	if c.ConsumerName == "" {
		return errors.MissingField("consumerName")
	}
	if len(c.Subjects) == 0 {
		return errors.MissingField("subjects")
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	if c.MaxAckPending <= 0 {
		c.MaxAckPending = 256
	}
	return nil
}

// Consumer is the batch event channel: a durable JetStream consumer that
// feeds inbound event records to the Ingestor. Delivery is at-least-once;
// transient failures are nak'd for redelivery, permanently invalid records
// are terminated so they stop recycling. Duplicate deliveries double-count,
// a documented limitation of the non-idempotent increment design.
type Consumer struct {
	cfg      ConsumerConfig
	deps     component.Dependencies
	ingestor *Ingestor
	logger   *slog.Logger

	mu      sync.Mutex
	state   component.State
	stream  jetstream.Stream
	consume jetstream.ConsumeContext
}

// NewConsumer creates the event channel consumer.
func NewConsumer(cfg ConsumerConfig, deps component.Dependencies, ingestor *Ingestor) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Consumer", "NewConsumer", "validate config")
	}
	if deps.NATSClient == nil {
		return nil, errors.NewInvalid("Consumer", "NewConsumer", "NATS client is required")
	}
	return &Consumer{
		cfg:      cfg,
		deps:     deps,
		ingestor: ingestor,
		logger:   deps.GetLoggerWithComponent("consumer"),
		state:    component.StateCreated,
	}, nil
}

// Name implements component.LifecycleComponent.
func (c *Consumer) Name() string { return "event-consumer" }

// Initialize creates the stream if it does not exist.
func (c *Consumer) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != component.StateCreated {
		return errors.ErrAlreadyStarted
	}

	stream, err := c.deps.NATSClient.CreateStream(ctx, jetstream.StreamConfig{
		Name:      c.cfg.StreamName,
		Subjects:  c.cfg.Subjects,
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		c.state = component.StateFailed
		return errors.Wrap(err, "Consumer", "Initialize", "create stream")
	}

	c.stream = stream
	c.state = component.StateInitialized
	return nil
}

// Start creates the durable consumer and begins processing messages.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != component.StateInitialized {
		return errors.ErrNotStarted
	}

	consumer, err := c.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       c.cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.cfg.MaxDeliver,
		AckWait:       c.cfg.AckWait,
		MaxAckPending: c.cfg.MaxAckPending,
	})
	if err != nil {
		c.state = component.StateFailed
		return errors.Wrap(err, "Consumer", "Start", "create consumer")
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		c.state = component.StateFailed
		return errors.Wrap(err, "Consumer", "Start", "start consuming")
	}

	c.consume = consumeCtx
	c.state = component.StateStarted
	c.logger.Info("event consumer started",
		"stream", c.cfg.StreamName,
		"consumer", c.cfg.ConsumerName)
	return nil
}

// Stop drains the consumer, waiting up to timeout for in-flight messages.
func (c *Consumer) Stop(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != component.StateStarted {
		c.state = component.StateStopped
		return nil
	}

	done := make(chan struct{})
	go func() {
		c.consume.Drain()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		c.consume.Stop()
		c.logger.Warn("consumer drain timed out, stopped hard")
	}

	c.state = component.StateStopped
	c.logger.Info("event consumer stopped")
	return nil
}

// handleMessage processes one delivery. The message body is either a single
// event object or a batch envelope {"records": [...]}; batch partial
// failures nak the whole message only when at least one record failed for a
// retryable reason.
func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	data := msg.Data()

	var envelope struct {
		Records []BatchRecord `json:"records"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Records) > 0 {
		c.handleBatch(ctx, msg, envelope.Records)
		return
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.terminate(msg, fmt.Sprintf("unparseable event: %v", err))
		return
	}

	if err := c.ingestor.Process(ctx, ev); err != nil {
		if errors.IsInvalid(err) {
			c.terminate(msg, err.Error())
			return
		}
		c.logger.Warn("event processing failed, redelivering", "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Error("nak failed", "error", nakErr)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		c.logger.Error("ack failed", "error", err)
	}
}

func (c *Consumer) handleBatch(ctx context.Context, msg jetstream.Msg, records []BatchRecord) {
	failed := c.ingestor.ProcessBatch(ctx, records)
	if len(failed) == 0 {
		if err := msg.Ack(); err != nil {
			c.logger.Error("ack failed", "error", err)
		}
		return
	}

	// Invalid records never succeed on redelivery; only retryable failures
	// justify a nak (which redelivers the whole envelope and double-counts
	// the records that already succeeded).
	retryable := 0
	for _, f := range failed {
		c.logger.Warn("batch record failed", "recordId", f.ID, "reason", f.Error)
		if f.Retryable {
			retryable++
		}
	}
	if retryable > 0 {
		if err := msg.Nak(); err != nil {
			c.logger.Error("nak failed", "error", err)
		}
		return
	}
	c.terminate(msg, fmt.Sprintf("%d invalid records", len(failed)))
}

func (c *Consumer) terminate(msg jetstream.Msg, reason string) {
	c.logger.Warn("terminating message", "reason", reason)
	if err := msg.Term(); err != nil {
		c.logger.Error("term failed", "error", err)
	}
}
