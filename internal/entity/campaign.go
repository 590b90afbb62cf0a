package entity

import (
	"context"
	"errors"
	"sort"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrStepNotFound     = errors.New("campaign step not found")
)

type Campaign struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Intent string `json:"intent"`
	Active bool   `json:"active"`
}

// CampaignStep is one timed send in a campaign. SendHour is a local hour in
// the business timezone.
type CampaignStep struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	StepNumber int    `json:"step_number"`
	TemplateID string `json:"template_id"`
	DelayDays  int    `json:"delay_days"`
	SendHour   int    `json:"send_hour"`
}

func SortSteps(steps []CampaignStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StepNumber < steps[j].StepNumber
	})
}

// NextStep returns the first step after stepNumber, if any.
func NextStep(steps []CampaignStep, stepNumber int) (CampaignStep, bool) {
	var next CampaignStep
	found := false
	for _, s := range steps {
		if s.StepNumber > stepNumber && (!found || s.StepNumber < next.StepNumber) {
			next = s
			found = true
		}
	}
	return next, found
}

type CampaignRepositoryInterface interface {
	FindByIntent(ctx context.Context, intent string) (*Campaign, error)
	ListSteps(ctx context.Context, campaignID string) ([]CampaignStep, error)
}
