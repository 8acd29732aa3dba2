package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/elonfeng/trendpulse/pkg/source"
)

const (
	DefaultExchange   = "trendpulse.items"
	DefaultRoutingKey = "item.created"
	DefaultQueueName  = "trendpulse.items.created"

	ActionCreate = "create"
)

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// RabbitMQ publishes newly stored items to a durable direct exchange.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
	now        func() time.Time
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = DefaultRoutingKey
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	fail := func(step string, err error) (*RabbitMQ, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fail("bind queue", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// MessageItem is the item as carried on the wire.
type MessageItem struct {
	ID int64 `json:"id"`
	source.Item
}

type ItemMessage struct {
	Action    string      `json:"action"`
	Item      MessageItem `json:"item"`
	Timestamp time.Time   `json:"timestamp"`
}

func encodeMessage(id int64, item source.Item, now time.Time) ([]byte, error) {
	return json.Marshal(ItemMessage{
		Action:    ActionCreate,
		Item:      MessageItem{ID: id, Item: item},
		Timestamp: now.UTC(),
	})
}

// Publish sends one "create" event for a stored item.
func (r *RabbitMQ) Publish(ctx context.Context, id int64, item source.Item) error {
	body, err := encodeMessage(id, item, r.now())
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    r.now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published item", "id", id, "url", item.URL)
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
