package entity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrLeadNotFound  = errors.New("lead not found")
	ErrDuplicateLead = errors.New("an active lead with this email already exists")
)

type LeadStatus string

const (
	LeadStatusActive       LeadStatus = "active"
	LeadStatusUnsubscribed LeadStatus = "unsubscribed"
	LeadStatusBounced      LeadStatus = "bounced"
)

// CanTransitionTo reports whether a lead may move from s to next.
// Status only moves forward and never returns to active.
func (s LeadStatus) CanTransitionTo(next LeadStatus) bool {
	switch s {
	case LeadStatusActive:
		return next == LeadStatusBounced || next == LeadStatusUnsubscribed
	case LeadStatusBounced:
		return next == LeadStatusUnsubscribed
	default:
		return false
	}
}

// Qualification holds the normalized answers from the lead form.
type Qualification struct {
	Intent            string `json:"intent"`
	Timeline          string `json:"timeline,omitempty"`
	PropertyType      string `json:"property_type,omitempty"`
	ValueRange        string `json:"value_range,omitempty"`
	PreApproval       string `json:"pre_approval,omitempty"`
	ContactPreference string `json:"contact_preference,omitempty"`
	DecisionFactor    string `json:"decision_factor,omitempty"`
}

type Lead struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Town    string `json:"town,omitempty"`
	Zipcode string `json:"zipcode,omitempty"`
	County  string `json:"county,omitempty"`

	Qualification

	Score       int         `json:"score"`
	ServerScore int         `json:"server_score"`
	ClientScore *int        `json:"client_score,omitempty"`
	Temperature Temperature `json:"temperature"`
	Priority    Priority    `json:"priority"`

	CampaignID     string     `json:"campaign_id"`
	CurrentStep    int        `json:"current_step"`
	NextEmailAt    *time.Time `json:"next_email_at,omitempty"`
	Status         LeadStatus `json:"status"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (l *Lead) IsActive() bool {
	return l.Status == LeadStatusActive
}

// HasReportAddress reports whether the lead gave enough of an address
// for the property report sent on day zero.
func (l *Lead) HasReportAddress() bool {
	return strings.TrimSpace(l.Address) != "" &&
		strings.TrimSpace(l.Town) != "" &&
		strings.TrimSpace(l.Zipcode) != ""
}

func (l *Lead) FirstName() string {
	name := strings.TrimSpace(l.Name)
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

type LeadRepositoryInterface interface {
	FindActiveByEmail(ctx context.Context, email string) (*Lead, error)
	FindByID(ctx context.Context, id string) (*Lead, error)
	Create(ctx context.Context, lead *Lead) error
	Delete(ctx context.Context, id string) error
	// AdvanceStep moves current_step forward (never backward) and sets
	// next_email_at, only while the lead is active.
	AdvanceStep(ctx context.Context, id string, step int, nextEmailAt *time.Time) error
	// UpdateStatus sets the lead to status "to" when its current status is one
	// of "from". It returns false when no row matched.
	UpdateStatus(ctx context.Context, id string, to LeadStatus, from []LeadStatus, at time.Time) (bool, error)
}
