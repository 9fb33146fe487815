package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type ReconcileEventProducer struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewReconcileEventProducer(brokers []string, topic string, logger *zap.Logger) *ReconcileEventProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	logger.Info("Kafka producer initialized",
		zap.String("topic", topic),
		zap.Strings("brokers", brokers),
	)
	return &ReconcileEventProducer{writer: w, topic: topic, logger: logger}
}

func (p *ReconcileEventProducer) SendReconcileEvent(event models.ReconcileEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: data,
	}

	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.logger.Error("Failed to send reconcile event", zap.Error(err))
		return err
	}

	p.logger.Debug("Sent reconcile event",
		zap.String("type", event.Type),
		zap.Int64("order_id", event.OrderID),
	)
	return nil
}

func (p *ReconcileEventProducer) Close() {
	_ = p.writer.Close()
	p.logger.Info("Kafka producer closed")
}
