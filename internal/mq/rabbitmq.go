package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/userauth/apiserver/config"
)

const defaultContentType = "application/octet-stream"

// RabbitMQBackend publishes to and consumes from named queues on the default
// exchange. amqp channels are not safe for concurrent use, so publishing and
// queue declaration share one lock; each subscription gets its own channel.
type RabbitMQBackend struct {
	conn    *amqp.Connection
	cfg     config.RabbitMQConfig
	mu      sync.Mutex
	pubCh   *amqp.Channel
	queues  map[string]struct{}
	closing bool
}

// NewRabbitMQBackend dials cfg.URL and opens the publishing channel.
func NewRabbitMQBackend(cfg config.RabbitMQConfig) (*RabbitMQBackend, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQBackend{
		conn:   conn,
		cfg:    cfg,
		pubCh:  ch,
		queues: make(map[string]struct{}),
	}, nil
}

// Publish sends data to the queue named channel. The returned id is the AMQP
// message id.
func (r *RabbitMQBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	msg := amqp.Publishing{
		ContentType:  defaultContentType,
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         data,
	}
	if r.cfg.QueueDurable {
		msg.DeliveryMode = amqp.Persistent
	}
	for key, value := range attrs {
		if key == AttrContentType {
			msg.ContentType = value
			continue
		}
		if msg.Headers == nil {
			msg.Headers = amqp.Table{}
		}
		msg.Headers[key] = value
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return "", errors.New("rabbitmq backend closed")
	}
	if err := r.declareLocked(r.pubCh, channel); err != nil {
		return "", err
	}
	if err := r.pubCh.PublishWithContext(ctx, "", channel, false, false, msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return msg.MessageId, nil
}

// Subscribe consumes the queue named channel until ctx is done. A handler
// error requeues the delivery.
func (r *RabbitMQBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if r.cfg.PrefetchCount > 0 {
		if err := ch.Qos(r.cfg.PrefetchCount, 0, false); err != nil {
			return err
		}
	}

	r.mu.Lock()
	err = r.declareLocked(ch, channel)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	consumerTag := "authsrv-" + uuid.NewString()
	deliveries, err := ch.ConsumeWithContext(ctx, channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, deliveryMessage(delivery)); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes the publishing channel and the connection.
func (r *RabbitMQBackend) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return nil
	}
	r.closing = true
	_ = r.pubCh.Close()
	return r.conn.Close()
}

// declareLocked declares name once per backend. Callers hold r.mu.
func (r *RabbitMQBackend) declareLocked(ch *amqp.Channel, name string) error {
	if _, ok := r.queues[name]; ok {
		return nil
	}
	_, err := ch.QueueDeclare(name, r.cfg.QueueDurable, r.cfg.QueueAutoDelete, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	r.queues[name] = struct{}{}
	return nil
}

func deliveryMessage(d amqp.Delivery) Message {
	attrs := make(map[string]string, len(d.Headers)+1)
	for key, value := range d.Headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	if d.ContentType != "" {
		attrs[AttrContentType] = d.ContentType
	}
	return Message{
		ID:          d.MessageId,
		Data:        d.Body,
		Attributes:  attrs,
		PublishedAt: d.Timestamp,
	}
}
