package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/infra/http/middleware"
)

// LeadNotifier delivers a captured lead to one operator channel (email, CRM).
type LeadNotifier interface {
	Name() string
	NotifyLeadCaptured(ctx context.Context, payload LeadCapturedPayload) error
}

// Consumer is the subset of *amqp.Channel the worker needs.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type Worker struct {
	Channel   Consumer
	Notifiers []LeadNotifier
}

func NewWorker(ch Consumer, notifiers ...LeadNotifier) *Worker {
	return &Worker{
		Channel:   ch,
		Notifiers: notifiers,
	}
}

// Start consumes queueName until ctx is cancelled or the channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.Consume(
		queueName,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Ctx(ctx).Info().Str("queue", queueName).Msg("notification worker waiting for messages")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var payload LeadCapturedPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("invalid notification payload, dead-lettering")
		d.Nack(false, false)
		return
	}

	if err := w.Process(ctx, payload); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("lead_id", payload.LeadID).Msg("operator notification failed")
		d.Nack(false, false)
		return
	}

	d.Ack(false)
}

// Process fans a payload out to every notifier. A failing notifier does not
// stop the others.
func (w *Worker) Process(ctx context.Context, payload LeadCapturedPayload) error {
	var errs []error
	for _, n := range w.Notifiers {
		if err := n.NotifyLeadCaptured(ctx, payload); err != nil {
			middleware.RecordIntegrationError(n.Name())
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		log.Ctx(ctx).Info().Str("lead_id", payload.LeadID).Str("notifier", n.Name()).Msg("operator notified")
	}
	return errors.Join(errs...)
}
