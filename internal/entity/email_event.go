package entity

import (
	"context"
	"time"
)

type EventType string

const (
	EventDelivery         EventType = "Delivery"
	EventOpen             EventType = "Open"
	EventClick            EventType = "Click"
	EventBounce           EventType = "Bounce"
	EventComplaint        EventType = "Complaint"
	EventSend             EventType = "Send"
	EventReject           EventType = "Reject"
	EventDeliveryDelay    EventType = "DeliveryDelay"
	EventRenderingFailure EventType = "Rendering Failure"
)

const (
	BounceTypePermanent    = "Permanent"
	BounceTypeTransient    = "Transient"
	BounceTypeUndetermined = "Undetermined"
)

// EmailEvent is an append-only record of a provider notification.
type EmailEvent struct {
	ID               string    `json:"id"`
	ScheduledEmailID string    `json:"scheduled_email_id"`
	MessageID        string    `json:"message_id"`
	EventType        EventType `json:"event_type"`
	OccurredAt       time.Time `json:"occurred_at"`
	BounceType       string    `json:"bounce_type,omitempty"`
	BounceSubType    string    `json:"bounce_sub_type,omitempty"`
	ComplaintType    string    `json:"complaint_type,omitempty"`
	LinkURL          string    `json:"link_url,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	IPAddress        string    `json:"ip_address,omitempty"`
	RawPayload       []byte    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

func (e *EmailEvent) IsPermanentBounce() bool {
	return e.EventType == EventBounce && e.BounceType == BounceTypePermanent
}

type EmailEventRepositoryInterface interface {
	Create(ctx context.Context, event *EmailEvent) error
}
