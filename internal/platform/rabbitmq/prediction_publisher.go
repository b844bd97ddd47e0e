package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"leafguard/internal/model"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// PredictionPublisher sends prediction events to a durable queue. The queue is
// declared on first publish and again after a failed declare.
type PredictionPublisher struct {
	openChannel func() (channel, error)
	queueName   string

	mu       sync.Mutex
	declared bool
}

func NewPredictionPublisher(conn *amqp.Connection, queueName string) *PredictionPublisher {
	return newPredictionPublisher(func() (channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}, queueName)
}

func newPredictionPublisher(open func() (channel, error), queueName string) *PredictionPublisher {
	return &PredictionPublisher{
		openChannel: open,
		queueName:   queueName,
	}
}

func (p *PredictionPublisher) Publish(ctx context.Context, event model.PredictionEvent) error {
	ch, err := p.openChannel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := p.ensureQueue(ch); err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	msg, err := eventPublishing(event)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, msg); err != nil {
		return fmt.Errorf("publish prediction event failed: %w", err)
	}
	return nil
}

func (p *PredictionPublisher) ensureQueue(ch channel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared {
		return nil
	}
	if _, err := ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}
	p.declared = true
	return nil
}

func eventPublishing(event model.PredictionEvent) (amqp.Publishing, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal prediction event failed: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    event.ID,
		Timestamp:    event.CreatedAt,
		Type:         "leafguard.prediction",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}, nil
}
