package consumer

import (
	"ai_mem/backend/go/internal/models"
	"ai_mem/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MemoryCreator runs the pipeline for one request.
type MemoryCreator interface {
	Add(ctx context.Context, req *models.MemoryCreationRequest) *models.PipelineResult
}

// ResultPublisher forwards pipeline results downstream.
type ResultPublisher interface {
	Publish(ctx context.Context, userID string, res *models.PipelineResult) error
}

// Option configures a KafkaConsumer.
type Option func(*KafkaConsumer)

// WithDeduplicator skips messages that were already processed. A claim is
// released again when the offset cannot be committed, so the redelivery is
// processed instead of skipped.
func WithDeduplicator(d Deduplicator) Option {
	return func(c *KafkaConsumer) { c.dedupe = d }
}

// WithPublisher publishes every result after processing.
func WithPublisher(p ResultPublisher) Option {
	return func(c *KafkaConsumer) { c.publisher = p }
}

// WithRetryDelay sets the pause after a failed fetch.
func WithRetryDelay(d time.Duration) Option {
	return func(c *KafkaConsumer) { c.retryDelay = d }
}

const releaseTimeout = 5 * time.Second

// KafkaConsumer consumes memory creation requests from a Kafka topic and
// processes them with the memory service.
type KafkaConsumer struct {
	reader        MessageReader
	memoryService MemoryCreator
	logger        *logger.Logger
	dedupe        Deduplicator
	publisher     ResultPublisher
	retryDelay    time.Duration
}

// NewKafkaConsumer creates a new KafkaConsumer.
func NewKafkaConsumer(reader MessageReader, memoryService MemoryCreator, logger *logger.Logger, opts ...Option) *KafkaConsumer {
	c := &KafkaConsumer{
		reader:        reader,
		memoryService: memoryService,
		logger:        logger,
		retryDelay:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run fetches and processes messages until ctx is cancelled. Offsets are
// committed after a message is handled, including malformed ones. A message
// interrupted by cancellation is left uncommitted for redelivery.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.WithErr(err).Error("failed to fetch message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		claimed := c.handle(ctx, msg)

		if ctx.Err() != nil {
			if claimed {
				c.release(ctx, msg)
			}
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithErr(err).Error("failed to commit message")
			if claimed {
				c.release(ctx, msg)
			}
		}
	}
}

// handle processes one message and reports whether it holds a dedupe claim
// for it.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) (claimed bool) {
	log := c.logger.WithPayload(map[string]interface{}{
		"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset,
	})

	if c.dedupe != nil {
		first, err := c.dedupe.Claim(ctx, MessageKey(msg))
		if err != nil {
			log.WithErr(err).Warn("dedupe check failed, processing anyway")
		} else if !first {
			log.Info("skipping already processed message")
			return false
		}
		claimed = first
	}

	var req models.MemoryCreationRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		log.WithErr(err).Error("failed to unmarshal message")
		return claimed
	}
	if err := req.Validate(); err != nil {
		log.WithErr(err).Error("invalid memory creation request")
		return claimed
	}

	res := c.memoryService.Add(ctx, &req)

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, req.UserID, res); err != nil {
			log.WithUser(req.UserID).WithErr(err).Error("failed to publish result")
		}
	}
	return claimed
}

// release drops the claim of an uncommitted message. ctx is usually already
// cancelled here, so the delete runs on a detached deadline.
func (c *KafkaConsumer) release(ctx context.Context, msg kafka.Message) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := c.dedupe.Release(rctx, MessageKey(msg)); err != nil {
		c.logger.WithErr(err).Error("failed to release dedupe claim")
	}
}

// MessageKey identifies a message within its topic.
func MessageKey(msg kafka.Message) string {
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}
