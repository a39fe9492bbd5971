package kafka

import (
	"ai_mem/backend/go/internal/config"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaClient 持有 Kafka writer 和 reader 的单例实例。
type KafkaClient struct {
	Writer *kafka.Writer
	Reader *kafka.Reader
	Conn   *kafka.Conn // 用于管理的连接
	Config *config.KafkaConfig
}

// Subscription 描述 reader 订阅的主题与消费者组。
type Subscription struct {
	Topic   string
	GroupID string
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient 使用单例模式初始化并返回一个 KafkaClient 实例。
// 首次调用时，它会连接到 Kafka 并根据配置自动创建所有必需的主题。
//
// 参数:
//
//	cfg: Kafka 连接配置。
//	sub: reader 订阅的主题与消费者组。
//
// 返回值:
//
//	*KafkaClient: 客户端实例。
//	error: 连接或创建主题失败时返回错误。
func GetClient(cfg *config.KafkaConfig, sub Subscription) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("未配置 Kafka brokers")
			return
		}
		if sub.Topic == "" || sub.GroupID == "" {
			initErr = fmt.Errorf("未配置 Kafka 订阅主题或消费者组")
			return
		}

		// 1. 建立管理连接
		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("kafka 初始化连接失败: %w", err)
			return
		}

		// 2. 创建不存在的主题
		if err := EnsureTopics(conn, append([]string{sub.Topic}, cfg.Topics...)); err != nil {
			initErr = err
			conn.Close()
			return
		}

		// 3. 创建用于生产和消费的 Writer 和 Reader
		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		}

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     sub.GroupID,
			Topic:       sub.Topic,
			MinBytes:    1,
			MaxBytes:    10e6, // 10MB
			MaxWait:     500 * time.Millisecond,
			MaxAttempts: 10,
			Dialer: &kafka.Dialer{
				Timeout: 10 * time.Second,
			},
		})

		logrus.WithField("topic", sub.Topic).Info("成功初始化 Kafka 客户端")
		client = &KafkaClient{Writer: writer, Reader: reader, Conn: conn, Config: cfg}
	})

	return client, initErr
}

// EnsureTopics 创建 topics 中尚不存在的主题。
func EnsureTopics(conn *kafka.Conn, topics []string) error {
	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	existing := make([]string, 0, len(partitions))
	for _, p := range partitions {
		existing = append(existing, p.Topic)
	}

	missing := MissingTopics(existing, topics)
	if len(missing) == 0 {
		return nil
	}
	configs := make([]kafka.TopicConfig, 0, len(missing))
	for _, name := range missing {
		configs = append(configs, kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     1, // 使用默认值
			ReplicationFactor: 1, // 使用默认值
		})
	}
	if err := conn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	logrus.WithField("topics", missing).Info("成功创建 Kafka 主题")
	return nil
}

// MissingTopics 返回 wanted 中不在 existing 里的主题，去重并保持顺序。空字符串会被忽略。
func MissingTopics(existing, wanted []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		seen[t] = struct{}{}
	}
	var missing []string
	for _, t := range wanted {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		missing = append(missing, t)
	}
	return missing
}

// Close 安全地关闭单例的 Kafka 连接。
func (c *KafkaClient) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Writer != nil {
		if err := c.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭 Kafka writer 失败: %w", err))
		}
	}
	if c.Reader != nil {
		if err := c.Reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭 Kafka reader 失败: %w", err))
		}
	}
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭 Kafka 管理连接失败: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("关闭 Kafka 客户端时发生多个错误: %v", errs)
	}
	return nil
}

// HealthCheck 检查 Kafka 连接的健康状况。
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("kafka 客户端未初始化，无法进行健康检查")
	}
	_, err := c.Conn.Controller()
	return err
}

// GetControllerInfo 返回 Kafka 控制器的地址。
func (c *KafkaClient) GetControllerInfo() (string, error) {
	if c == nil || c.Conn == nil {
		return "", fmt.Errorf("kafka 客户端未初始化")
	}
	controller, err := c.Conn.Controller()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)), nil
}
