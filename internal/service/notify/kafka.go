package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"sharkcam/internal/config"
	"sharkcam/internal/dto"
	"sharkcam/internal/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaNotifier publishes detection reports to a Kafka topic, keyed by the
// detection ID. Delivery reports are consumed in the background and
// failures are logged.
type KafkaNotifier struct {
	producer  *kafka.Producer
	topic     string
	droneName string
	logger    *logger.Logger
	wg        sync.WaitGroup
}

// NewKafkaNotifier connects a producer using cfg.
func NewKafkaNotifier(cfg config.KafkaConfig, droneName string, logger *logger.Logger) (*KafkaNotifier, error) {
	producerConfig := &kafka.ConfigMap{
		"bootstrap.servers":  cfg.BootstrapServers,
		"security.protocol":  cfg.SecurityProtocol,
		"acks":               "all",
		"enable.idempotence": true,
		"request.timeout.ms": 30000,
	}
	if cfg.SASLMechanism != "" {
		producerConfig.SetKey("sasl.mechanism", cfg.SASLMechanism)
		producerConfig.SetKey("sasl.username", cfg.SASLUsername)
		producerConfig.SetKey("sasl.password", cfg.SASLPassword)
	}

	p, err := kafka.NewProducer(producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	n := &KafkaNotifier{
		producer:  p,
		topic:     cfg.Topic,
		droneName: droneName,
		logger:    logger,
	}

	n.wg.Add(1)
	go n.handleDeliveryReports()

	logger.Info("Kafka notifier initialized - Topic: %s, Servers: %s", cfg.Topic, cfg.BootstrapServers)
	return n, nil
}

// handleDeliveryReports runs until the producer is closed.
func (n *KafkaNotifier) handleDeliveryReports() {
	defer n.wg.Done()

	for e := range n.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				n.logger.Error("Kafka delivery failed: %v", ev.TopicPartition.Error)
			}
		case kafka.Error:
			n.logger.Warning("Kafka error: %v", ev)
		}
	}
}

// Notify enqueues the report; delivery is confirmed asynchronously.
func (n *KafkaNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The frame is left out; consumers fetch the clip instead.
	payload, err := json.Marshal(dto.NewSharkReport(n.droneName, event.Detection, nil))
	if err != nil {
		return fmt.Errorf("failed to serialize detection: %w", err)
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &n.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(event.Detection.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "drone_name", Value: []byte(n.droneName)},
		},
	}

	if err := n.producer.Produce(message, nil); err != nil {
		return fmt.Errorf("failed to produce detection %s: %w", event.Detection.ID, err)
	}
	return nil
}

// Close flushes outstanding messages for up to five seconds.
func (n *KafkaNotifier) Close() error {
	if remaining := n.producer.Flush(5000); remaining > 0 {
		n.logger.Warning("Kafka notifier closed with %d undelivered messages", remaining)
	}
	n.producer.Close()
	n.wg.Wait()
	return nil
}
