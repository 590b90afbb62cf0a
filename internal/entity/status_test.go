package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xavierca1/leaddrip/internal/entity"
)

func TestLeadStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, entity.LeadStatusActive.CanTransitionTo(entity.LeadStatusBounced))
	assert.True(t, entity.LeadStatusActive.CanTransitionTo(entity.LeadStatusUnsubscribed))
	assert.True(t, entity.LeadStatusBounced.CanTransitionTo(entity.LeadStatusUnsubscribed))

	assert.False(t, entity.LeadStatusBounced.CanTransitionTo(entity.LeadStatusActive))
	assert.False(t, entity.LeadStatusUnsubscribed.CanTransitionTo(entity.LeadStatusActive))
	assert.False(t, entity.LeadStatusUnsubscribed.CanTransitionTo(entity.LeadStatusBounced))
}

func TestEmailStatus_EngagementIsMonotonic(t *testing.T) {
	assert.True(t, entity.EmailStatusSent.CanAdvanceTo(entity.EmailStatusDelivered))
	assert.True(t, entity.EmailStatusDelivered.CanAdvanceTo(entity.EmailStatusOpened))
	assert.True(t, entity.EmailStatusSent.CanAdvanceTo(entity.EmailStatusClicked))
	assert.True(t, entity.EmailStatusOpened.CanAdvanceTo(entity.EmailStatusClicked))

	assert.False(t, entity.EmailStatusClicked.CanAdvanceTo(entity.EmailStatusOpened))
	assert.False(t, entity.EmailStatusClicked.CanAdvanceTo(entity.EmailStatusDelivered))
	assert.False(t, entity.EmailStatusOpened.CanAdvanceTo(entity.EmailStatusDelivered))
	assert.False(t, entity.EmailStatusOpened.CanAdvanceTo(entity.EmailStatusOpened))
	assert.False(t, entity.EmailStatusPending.CanAdvanceTo(entity.EmailStatusDelivered))
}

func TestEmailStatus_BounceAndComplaint(t *testing.T) {
	assert.True(t, entity.EmailStatusSent.CanAdvanceTo(entity.EmailStatusBounced))
	assert.True(t, entity.EmailStatusDelivered.CanAdvanceTo(entity.EmailStatusBounced))
	assert.False(t, entity.EmailStatusFailed.CanAdvanceTo(entity.EmailStatusBounced))

	assert.True(t, entity.EmailStatusClicked.CanAdvanceTo(entity.EmailStatusComplained))
	assert.False(t, entity.EmailStatusPending.CanAdvanceTo(entity.EmailStatusComplained))
	assert.False(t, entity.EmailStatusComplained.CanAdvanceTo(entity.EmailStatusComplained))
}

func TestScheduledEmail_DueAndFailureStatus(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	row := &entity.ScheduledEmail{
		Status:       entity.EmailStatusPending,
		ScheduledFor: now.Add(-time.Minute),
		Attempts:     1,
		MaxAttempts:  3,
	}

	assert.True(t, row.Due(now))
	assert.False(t, row.Due(now.Add(-time.Hour)))

	row.Attempts = 3
	assert.False(t, row.Due(now))
	assert.Equal(t, entity.EmailStatusFailed, row.FailureStatus())

	row.Attempts = 2
	assert.Equal(t, entity.EmailStatusPending, row.FailureStatus())
}

func TestLead_HasReportAddress(t *testing.T) {
	lead := &entity.Lead{Name: "Ada Lovelace", Address: "1 Main St", Town: "Springfield"}
	assert.False(t, lead.HasReportAddress())

	lead.Zipcode = "01101"
	assert.True(t, lead.HasReportAddress())
	assert.Equal(t, "Ada", lead.FirstName())
}
