package sns

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xavierca1/leaddrip/internal/entity"
)

var ErrNoMessageID = errors.New("ses event has no mail.messageId")

type sesTimestamped struct {
	Timestamp string `json:"timestamp"`
}

// sesEvent covers both SES event publishing (eventType) and the older
// feedback notifications (notificationType).
type sesEvent struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string `json:"messageId"`
		Timestamp string `json:"timestamp"`
	} `json:"mail"`
	Delivery *sesTimestamped `json:"delivery"`
	Bounce   *struct {
		BounceType    string `json:"bounceType"`
		BounceSubType string `json:"bounceSubType"`
		Timestamp     string `json:"timestamp"`
	} `json:"bounce"`
	Complaint *struct {
		ComplaintFeedbackType string `json:"complaintFeedbackType"`
		Timestamp             string `json:"timestamp"`
	} `json:"complaint"`
	Open *struct {
		Timestamp string `json:"timestamp"`
		UserAgent string `json:"userAgent"`
		IPAddress string `json:"ipAddress"`
	} `json:"open"`
	Click *struct {
		Timestamp string `json:"timestamp"`
		Link      string `json:"link"`
		UserAgent string `json:"userAgent"`
		IPAddress string `json:"ipAddress"`
	} `json:"click"`
	DeliveryDelay *sesTimestamped `json:"deliveryDelay"`
}

// ParseSESEvent turns an SES event body into an EmailEvent. The type is kept
// verbatim so unknown types can be acknowledged upstream. OccurredAt is zero
// when SES sent no usable timestamp.
func ParseSESEvent(raw []byte) (entity.EmailEvent, error) {
	var e sesEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return entity.EmailEvent{}, fmt.Errorf("decode ses event: %w", err)
	}

	eventType := e.EventType
	if eventType == "" {
		eventType = e.NotificationType
	}
	if e.Mail.MessageID == "" {
		return entity.EmailEvent{}, ErrNoMessageID
	}

	ev := entity.EmailEvent{
		MessageID:  e.Mail.MessageID,
		EventType:  entity.EventType(eventType),
		RawPayload: raw,
	}

	ts := ""
	switch {
	case e.Bounce != nil:
		ev.BounceType = e.Bounce.BounceType
		ev.BounceSubType = e.Bounce.BounceSubType
		ts = e.Bounce.Timestamp
	case e.Complaint != nil:
		ev.ComplaintType = e.Complaint.ComplaintFeedbackType
		ts = e.Complaint.Timestamp
	case e.Open != nil:
		ev.UserAgent = e.Open.UserAgent
		ev.IPAddress = e.Open.IPAddress
		ts = e.Open.Timestamp
	case e.Click != nil:
		ev.LinkURL = e.Click.Link
		ev.UserAgent = e.Click.UserAgent
		ev.IPAddress = e.Click.IPAddress
		ts = e.Click.Timestamp
	case e.Delivery != nil:
		ts = e.Delivery.Timestamp
	case e.DeliveryDelay != nil:
		ts = e.DeliveryDelay.Timestamp
	}
	if ts == "" {
		ts = e.Mail.Timestamp
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		ev.OccurredAt = t.UTC()
	}

	return ev, nil
}
