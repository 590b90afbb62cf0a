package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	ExchangeName = "ex.leads"
	QueueName    = "q.lead_notifications"
	DLQName      = "q.lead_notifications.dlq"
	DLXName      = "ex.leads.dlx"
	RoutingKey   = "k.lead_captured"
)

type RabbitMQ struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

// NewRabbitMQ dials the broker, retrying with exponential backoff for up to
// maxWait, and declares the notification topology.
func NewRabbitMQ(ctx context.Context, url string, maxWait time.Duration) (*RabbitMQ, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait

	var conn *amqp.Connection
	err := backoff.RetryNotify(func() error {
		c, err := amqp.Dial(url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Ctx(ctx).Warn().Err(err).Dur("retry_in", wait).Msg("rabbitmq not reachable yet")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := setupTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{Conn: conn, Ch: ch}, nil
}

// setupTopology declares the main exchange and queue plus a dead letter pair
// for notifications the worker could not deliver.
func setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DLXName, err)
	}
	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DLQName, err)
	}
	if err := ch.QueueBind(DLQName, RoutingKey, DLXName, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", DLQName, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": RoutingKey,
	}

	if err := ch.ExchangeDeclare(ExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", ExchangeName, err)
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare %s: %w", QueueName, err)
	}
	if err := ch.QueueBind(QueueName, RoutingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", QueueName, err)
	}

	return nil
}

func (r *RabbitMQ) Close() {
	if r.Ch != nil {
		r.Ch.Close()
	}
	if r.Conn != nil {
		r.Conn.Close()
	}
}
