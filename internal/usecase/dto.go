package usecase

import "github.com/xavierca1/leaddrip/internal/entity"

type CaptureLeadInput struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Town    string `json:"town,omitempty"`
	Zipcode string `json:"zipcode,omitempty"`
	County  string `json:"county,omitempty"`

	Intent            string `json:"intent,omitempty"`
	Timeline          string `json:"timeline,omitempty"`
	PropertyType      string `json:"property_type,omitempty"`
	ValueRange        string `json:"value_range,omitempty"`
	BudgetRange       string `json:"budget_range,omitempty"`
	PreApproval       string `json:"pre_approval,omitempty"`
	ContactPreference string `json:"contact_preference,omitempty"`
	DecisionFactor    string `json:"decision_factor,omitempty"`

	// Precomputed by the form. Kept for audit, never trusted blindly.
	Score       *int   `json:"score,omitempty"`
	Temperature string `json:"temperature,omitempty"`
}

func (in CaptureLeadInput) Qualification() entity.Qualification {
	value := in.ValueRange
	if value == "" {
		value = in.BudgetRange
	}
	return entity.Qualification{
		Intent:            in.Intent,
		Timeline:          in.Timeline,
		PropertyType:      in.PropertyType,
		ValueRange:        value,
		PreApproval:       in.PreApproval,
		ContactPreference: in.ContactPreference,
		DecisionFactor:    in.DecisionFactor,
	}.Normalize()
}

type CaptureLeadOutput struct {
	Success          bool   `json:"success"`
	LeadID           string `json:"lead_id,omitempty"`
	Campaign         string `json:"campaign,omitempty"`
	Score            int    `json:"score,omitempty"`
	Temperature      string `json:"temperature,omitempty"`
	EmailsScheduled  int    `json:"emails_scheduled"`
	WelcomeEmailSent bool   `json:"welcome_email_sent"`
	Duplicate        bool   `json:"duplicate,omitempty"`
	Error            string `json:"error,omitempty"`
}

type DispatchOutput struct {
	RunID     string   `json:"run_id"`
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Released  int64    `json:"released"`
	Errors    []string `json:"errors"`
}

type ProcessEmailEventOutput struct {
	Matched       bool               `json:"matched"`
	StatusChanged bool               `json:"status_changed"`
	Status        entity.EmailStatus `json:"status,omitempty"`
	LeadStatus    entity.LeadStatus  `json:"lead_status,omitempty"`
	Cancelled     int64              `json:"cancelled"`
}

type UnsubscribeInput struct {
	Token string `schema:"token"`
}

const (
	UnsubscribeResultDone    = "unsubscribed"
	UnsubscribeResultAlready = "already_unsubscribed"
)

type UnsubscribeOutput struct {
	Result    string
	LeadID    string
	Email     string
	Message   string
	Cancelled int64
}
