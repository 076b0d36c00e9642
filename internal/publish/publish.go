// 包 publish 将完成的分析结果投递到下游（Kafka），投递失败不影响分析本身。
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"go-peak-window/internal/model"
)

// Publisher 为结果投递契约。
type Publisher interface {
	Publish(ctx context.Context, key string, res model.AnalysisResult) error
	Close() error
}

// Nop 丢弃所有结果。
type Nop struct{}

func (Nop) Publish(context.Context, string, model.AnalysisResult) error { return nil }
func (Nop) Close() error                                               { return nil }

// Event 为写入 Kafka 的消息体。
type Event struct {
	Key         string               `json:"key"`
	Result      model.AnalysisResult `json:"result"`
	PublishedAt time.Time            `json:"published_at"`
}

// messageWriter 为 *kafka.Writer 的最小子集，测试中替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka 以缓存键为消息键写入同一主题，相同主体落在同一分区。
type Kafka struct {
	w   messageWriter
	now func() time.Time
}

// NewKafka 创建 Kafka 投递器。
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no brokers provided")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Compression:            kafka.Lz4,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{w: w, now: time.Now}, nil
}

// Publish 同步写入一条消息。
func (k *Kafka) Publish(ctx context.Context, key string, res model.AnalysisResult) error {
	msg, err := k.message(key, res)
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", key, err)
	}
	return nil
}

func (k *Kafka) message(key string, res model.AnalysisResult) (kafka.Message, error) {
	b, err := json.Marshal(Event{Key: key, Result: res, PublishedAt: k.now().UTC()})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   b,
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
	}, nil
}

func (k *Kafka) Close() error { return k.w.Close() }
