package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-docservices/internal/config"
	"ms-docservices/internal/logger"
	"ms-docservices/internal/models"
)

// Producer streams order lifecycle events. One writer serves all topics; the
// topic is set per message from config so the three event kinds stay separate.
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
	Logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

func (p *Producer) publish(topic string, order models.Order) error {
	msgBytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	err = p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(order.ID),
			Value: msgBytes,
		},
	)
	if err != nil {
		return fmt.Errorf("write to topic %s: %w", topic, err)
	}
	p.Logger.Info("KAFKA", fmt.Sprintf("published order %s to %s", order.ID, topic))
	return nil
}

func (p *Producer) PublishOrderCreated(order models.Order) error {
	return p.publish(p.Topics.OrderCreated, order)
}

func (p *Producer) PublishOrderStatusUpdated(order models.Order) error {
	return p.publish(p.Topics.OrderStatus, order)
}

func (p *Producer) PublishPaymentCompleted(order models.Order) error {
	return p.publish(p.Topics.PaymentCompleted, order)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// MockProducer logs events instead of writing to a broker. Used when Kafka is
// disabled or mocked in local development.
type MockProducer struct {
	Logger *logger.Logger
}

func NewMockProducer(log *logger.Logger) *MockProducer {
	return &MockProducer{Logger: log}
}

func (m *MockProducer) PublishOrderCreated(order models.Order) error {
	m.Logger.Info("KAFKA", fmt.Sprintf("[mock] order created: %s", order.ID))
	return nil
}

func (m *MockProducer) PublishOrderStatusUpdated(order models.Order) error {
	m.Logger.Info("KAFKA", fmt.Sprintf("[mock] order status updated: %s -> %s", order.ID, order.Status))
	return nil
}

func (m *MockProducer) PublishPaymentCompleted(order models.Order) error {
	m.Logger.Info("KAFKA", fmt.Sprintf("[mock] payment completed: %s", order.ID))
	return nil
}
