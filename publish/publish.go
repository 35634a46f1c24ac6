package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Record is one finalized signal result handed downstream.
type Record struct {
	Junction  string
	RunID     string
	Aggregate iface.SignalAggregate
	GreenTime time.Duration
}

// Publisher hands finalized aggregates to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
	Close()
}

// Nop drops every record.
type Nop struct{}

func (Nop) Publish(context.Context, Record) error { return nil }
func (Nop) Close()                                {}

type Config struct {
	Brokers          []string `yaml:"brokers"`
	Topic            string   `yaml:"topic"`
	SecurityProtocol string   `yaml:"securityProtocol"`
	SASLMechanism    string   `yaml:"saslMechanism"`
	SASLUsername     string   `yaml:"saslUsername"`
	SASLPassword     string   `yaml:"saslPassword"`
	Acks             string   `yaml:"acks"`
}

func (c Config) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// message is the JSON value of every Kafka record.
type message struct {
	Junction         string  `json:"junction,omitempty"`
	RunID            string  `json:"run_id"`
	SignalNumber     int     `json:"signal_number"`
	GreenTimeSeconds float64 `json:"green_time_seconds"`
	iface.SignalAggregate
}

// KafkaPublisher produces one message per aggregate, keyed by signal id so a
// signal's results stay ordered within a partition.
type KafkaPublisher struct {
	producer     *kafka.Producer
	topic        string
	deliveryChan chan kafka.Event

	messagesSent   atomic.Int64
	messagesAcked  atomic.Int64
	messagesFailed atomic.Int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewKafkaPublisher(cfg Config) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka publisher needs brokers and a topic")
	}
	producerConfig := &kafka.ConfigMap{
		"bootstrap.servers":   strings.Join(cfg.Brokers, ","),
		"enable.idempotence":  true,
		"request.timeout.ms":  30000,
		"delivery.timeout.ms": 120000,
	}
	if cfg.Acks != "" {
		_ = producerConfig.SetKey("acks", cfg.Acks)
	}
	if cfg.SecurityProtocol != "" {
		_ = producerConfig.SetKey("security.protocol", cfg.SecurityProtocol)
	}
	if cfg.SASLMechanism != "" {
		_ = producerConfig.SetKey("sasl.mechanism", cfg.SASLMechanism)
		_ = producerConfig.SetKey("sasl.username", cfg.SASLUsername)
		_ = producerConfig.SetKey("sasl.password", cfg.SASLPassword)
	}
	p, err := kafka.NewProducer(producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	kp := &KafkaPublisher{
		producer:     p,
		topic:        cfg.Topic,
		deliveryChan: make(chan kafka.Event, 64),
		ctx:          ctx,
		cancel:       cancel,
	}
	kp.wg.Add(1)
	go kp.handleDeliveryReports()
	logger.Log().Info("kafka publisher initialized", zap.String("topic", cfg.Topic), zap.Strings("brokers", cfg.Brokers))
	return kp, nil
}

func (kp *KafkaPublisher) handleDeliveryReports() {
	defer kp.wg.Done()
	for {
		select {
		case <-kp.ctx.Done():
			return
		case e := <-kp.deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				kp.messagesFailed.Add(1)
				logger.Log().Error("aggregate delivery failed", zap.ByteString("key", m.Key), zap.Error(m.TopicPartition.Error))
				continue
			}
			kp.messagesAcked.Add(1)
			logger.Log().Debug("aggregate delivered", zap.ByteString("key", m.Key),
				zap.Int32("partition", m.TopicPartition.Partition), zap.String("offset", m.TopicPartition.Offset.String()))
		}
	}
}

func (kp *KafkaPublisher) Publish(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := buildMessage(kp.topic, rec)
	if err != nil {
		return err
	}
	if err := kp.producer.Produce(msg, kp.deliveryChan); err != nil {
		kp.messagesFailed.Add(1)
		return fmt.Errorf("produce aggregate for signal %s: %w", rec.Aggregate.SignalID, err)
	}
	kp.messagesSent.Add(1)
	return nil
}

// Metrics returns the sent, acked and failed message counts.
func (kp *KafkaPublisher) Metrics() map[string]int64 {
	return map[string]int64{
		"messages_sent":   kp.messagesSent.Load(),
		"messages_acked":  kp.messagesAcked.Load(),
		"messages_failed": kp.messagesFailed.Load(),
	}
}

// Close flushes pending messages and shuts the producer down.
func (kp *KafkaPublisher) Close() {
	kp.once.Do(func() {
		if remaining := kp.producer.Flush(int((10 * time.Second).Milliseconds())); remaining > 0 {
			logger.Log().Warn("messages still queued after flush", zap.Int("remaining", remaining))
		}
		kp.cancel()
		kp.wg.Wait()
		kp.producer.Close()
		m := kp.Metrics()
		logger.Log().Info("kafka publisher closed",
			zap.Int64("sent", m["messages_sent"]), zap.Int64("acked", m["messages_acked"]), zap.Int64("failed", m["messages_failed"]))
	})
}

func buildMessage(topic string, rec Record) (*kafka.Message, error) {
	payload, err := json.Marshal(message{
		Junction:         rec.Junction,
		RunID:            rec.RunID,
		SignalNumber:     rec.Aggregate.SignalID.Number(),
		GreenTimeSeconds: rec.GreenTime.Seconds(),
		SignalAggregate:  rec.Aggregate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize aggregate: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(rec.Aggregate.SignalID),
		Value:          payload,
		Timestamp:      rec.Aggregate.FinalizedAt,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(uuid.NewString())},
			{Key: "run_id", Value: []byte(rec.RunID)},
			{Key: "junction", Value: []byte(rec.Junction)},
		},
	}, nil
}
