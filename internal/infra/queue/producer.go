package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// LeadCapturedPayload is what the operator sees about a new lead.
type LeadCapturedPayload struct {
	LeadID  string `json:"lead_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Town    string `json:"town,omitempty"`
	Zipcode string `json:"zipcode,omitempty"`
	County  string `json:"county,omitempty"`

	Intent            string `json:"intent,omitempty"`
	Timeline          string `json:"timeline,omitempty"`
	PropertyType      string `json:"property_type,omitempty"`
	ValueRange        string `json:"value_range,omitempty"`
	PreApproval       string `json:"pre_approval,omitempty"`
	ContactPreference string `json:"contact_preference,omitempty"`
	DecisionFactor    string `json:"decision_factor,omitempty"`

	Score       int    `json:"score"`
	ServerScore int    `json:"server_score"`
	ClientScore *int   `json:"client_score,omitempty"`
	Temperature string `json:"temperature"`
	Priority    string `json:"priority"`
	Campaign    string `json:"campaign"`

	WelcomeEmailSent bool      `json:"welcome_email_sent"`
	CapturedAt       time.Time `json:"captured_at"`
}

// Publisher is the subset of *amqp.Channel the producer needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQProducer struct {
	Ch Publisher
}

func NewProducer(ch Publisher) *RabbitMQProducer {
	return &RabbitMQProducer{Ch: ch}
}

func (p *RabbitMQProducer) PublishLeadCaptured(ctx context.Context, payload LeadCapturedPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    payload.LeadID,
			Timestamp:    payload.CapturedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to rabbitmq: %w", err)
	}

	return nil
}
