package entity

import (
	"context"
	"errors"
	"time"
)

var ErrEmailNotFound = errors.New("scheduled email not found")

type EmailStatus string

const (
	EmailStatusPending    EmailStatus = "pending"
	EmailStatusSending    EmailStatus = "sending"
	EmailStatusSent       EmailStatus = "sent"
	EmailStatusDelivered  EmailStatus = "delivered"
	EmailStatusOpened     EmailStatus = "opened"
	EmailStatusClicked    EmailStatus = "clicked"
	EmailStatusBounced    EmailStatus = "bounced"
	EmailStatusComplained EmailStatus = "complained"
	EmailStatusFailed     EmailStatus = "failed"
)

const DefaultMaxAttempts = 3

// Error messages written to last_error when pending rows are cancelled.
const (
	CancelReasonPermanentBounce = "cancelled: permanent bounce"
	CancelReasonComplaint       = "cancelled: spam complaint"
	CancelReasonUnsubscribed    = "cancelled: lead unsubscribed"
	CancelReasonLeadInactive    = "lead no longer active"
	FailReasonMissingAddress    = "report email requires address, town and zipcode"
)

// engagement ranks: a row only moves to a higher rank.
var engagementRank = map[EmailStatus]int{
	EmailStatusSent:      1,
	EmailStatusDelivered: 2,
	EmailStatusOpened:    3,
	EmailStatusClicked:   4,
}

// AdvanceSources lists the statuses a row may be in for an event to move it to
// next. It is empty for statuses no event can produce.
func AdvanceSources(next EmailStatus) []EmailStatus {
	switch next {
	case EmailStatusDelivered, EmailStatusOpened, EmailStatusClicked:
		var from []EmailStatus
		for _, s := range []EmailStatus{EmailStatusSent, EmailStatusDelivered, EmailStatusOpened} {
			if engagementRank[s] < engagementRank[next] {
				from = append(from, s)
			}
		}
		return from
	case EmailStatusBounced:
		return []EmailStatus{EmailStatusSending, EmailStatusSent, EmailStatusDelivered}
	case EmailStatusComplained:
		return []EmailStatus{EmailStatusSent, EmailStatusDelivered, EmailStatusOpened, EmailStatusClicked}
	}
	return nil
}

func (s EmailStatus) CanAdvanceTo(next EmailStatus) bool {
	for _, from := range AdvanceSources(next) {
		if from == s {
			return true
		}
	}
	return false
}

// IsDispatchable reports whether the dispatcher may pick the row up.
func (s EmailStatus) IsDispatchable() bool {
	return s == EmailStatusPending
}

type ScheduledEmail struct {
	ID             string      `json:"id"`
	LeadID         string      `json:"lead_id"`
	CampaignStepID string      `json:"campaign_step_id"`
	StepNumber     int         `json:"step_number"`
	TemplateID     string      `json:"template_id"`
	ScheduledFor   time.Time   `json:"scheduled_for"`
	Status         EmailStatus `json:"status"`
	Attempts       int         `json:"attempts"`
	MaxAttempts    int         `json:"max_attempts"`
	MessageID      string      `json:"message_id,omitempty"`
	SentAt         *time.Time  `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time  `json:"delivered_at,omitempty"`
	OpenedAt       *time.Time  `json:"opened_at,omitempty"`
	ClickedAt      *time.Time  `json:"clicked_at,omitempty"`
	FailedAt       *time.Time  `json:"failed_at,omitempty"`
	LastError      string      `json:"last_error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Due reports whether the dispatcher would select the row at now.
func (e *ScheduledEmail) Due(now time.Time) bool {
	return e.Status.IsDispatchable() && !e.ScheduledFor.After(now) && e.Attempts < e.MaxAttempts
}

// FailureStatus is the status a row takes after a failed send attempt.
func (e *ScheduledEmail) FailureStatus() EmailStatus {
	if e.Attempts >= e.MaxAttempts {
		return EmailStatusFailed
	}
	return EmailStatusPending
}

type ScheduledEmailRepositoryInterface interface {
	CreateBatch(ctx context.Context, emails []*ScheduledEmail) error
	FindByID(ctx context.Context, id string) (*ScheduledEmail, error)
	FindByMessageID(ctx context.Context, messageID string) (*ScheduledEmail, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledEmail, error)
	// Claim moves a row from pending to sending and increments attempts in a
	// single conditional write. It returns false when another writer got there
	// first.
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	MarkSent(ctx context.Context, id, messageID string, at time.Time) error
	// RecordFailure stores the error and moves a sending row to pending or,
	// once attempts are exhausted, to failed. It returns the resulting status.
	RecordFailure(ctx context.Context, id, reason string, at time.Time) (EmailStatus, error)
	// Cancel fails a pending or sending row with reason.
	Cancel(ctx context.Context, id, reason string, at time.Time) (bool, error)
	CancelPendingForLead(ctx context.Context, leadID, reason string, at time.Time) (int64, error)
	// AdvanceStatus applies an event driven transition guarded by
	// AdvanceSources(to). It returns false when the row was not eligible.
	AdvanceStatus(ctx context.Context, id string, to EmailStatus, at time.Time) (bool, error)
	// ReleaseStale returns rows stuck in sending since before olderThan to
	// pending, or to failed when no attempts remain.
	ReleaseStale(ctx context.Context, olderThan, at time.Time) (int64, error)
}
