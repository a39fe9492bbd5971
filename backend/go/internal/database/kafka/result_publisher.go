package kafka

import (
	"ai_mem/backend/go/internal/models"
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter 是 kafka.Writer 中发布结果所需的部分。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ResultPublisher 封装了向 Kafka 发送记忆创建结果的逻辑。
type ResultPublisher struct {
	writer MessageWriter
	topic  string
}

// NewResultPublisher 创建一个新的 ResultPublisher 实例。writer 不绑定主题，由消息自身指定。
func NewResultPublisher(writer MessageWriter, topic string) *ResultPublisher {
	return &ResultPublisher{writer: writer, topic: topic}
}

// resultEvent 是发布到结果主题的消息体。
type resultEvent struct {
	UserID string                 `json:"user_id"`
	Result *models.PipelineResult `json:"result"`
}

// Publish 将 PipelineResult 序列化为 JSON 并发送到 Kafka，以 userID 作为消息 key。
func (p *ResultPublisher) Publish(ctx context.Context, userID string, res *models.PipelineResult) error {
	jsonData, err := json.Marshal(resultEvent{UserID: userID, Result: res})
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline result: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(userID),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}
