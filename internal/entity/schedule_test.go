package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xavierca1/leaddrip/internal/entity"
)

func threeStepCampaign() []entity.CampaignStep {
	return []entity.CampaignStep{
		{ID: "s3", StepNumber: 3, TemplateID: "check_in", DelayDays: 7, SendHour: 10},
		{ID: "s1", StepNumber: 1, TemplateID: "welcome_report", DelayDays: 0, SendHour: 9},
		{ID: "s2", StepNumber: 2, TemplateID: "market_update", DelayDays: 3, SendHour: 14},
	}
}

func TestBuildSchedule_ThreeSteps(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 10:30 EST, four days before daylight saving starts.
	signup := time.Date(2025, 3, 5, 15, 30, 0, 0, time.UTC)

	slots := entity.BuildSchedule(signup, threeStepCampaign(), loc)
	require.Len(t, slots, 3)

	assert.Equal(t, 1, slots[0].Step.StepNumber)
	assert.True(t, slots[0].Immediate)
	assert.True(t, slots[0].SendAt.Equal(signup))

	assert.Equal(t, 2, slots[1].Step.StepNumber)
	assert.False(t, slots[1].Immediate)
	assert.True(t, slots[1].SendAt.Equal(time.Date(2025, 3, 8, 14, 0, 0, 0, loc)))
	assert.True(t, slots[1].SendAt.Equal(time.Date(2025, 3, 8, 19, 0, 0, 0, time.UTC)))

	// After the switch to EDT the wall clock hour stays at 10:00.
	assert.Equal(t, 3, slots[2].Step.StepNumber)
	assert.True(t, slots[2].SendAt.Equal(time.Date(2025, 3, 12, 10, 0, 0, 0, loc)))
	assert.True(t, slots[2].SendAt.Equal(time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC)))
}

func TestSendTime_UsesBusinessLocalDate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Already Jan 10 in UTC but still Jan 9 in New York.
	signup := time.Date(2025, 1, 10, 3, 0, 0, 0, time.UTC)
	step := entity.CampaignStep{StepNumber: 2, DelayDays: 3, SendHour: 14}

	at, immediate := entity.SendTime(signup, step, loc)

	assert.False(t, immediate)
	assert.True(t, at.Equal(time.Date(2025, 1, 12, 14, 0, 0, 0, loc)))
}

func TestSendTime_NilLocationFallsBackToUTC(t *testing.T) {
	signup := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	step := entity.CampaignStep{DelayDays: 1, SendHour: 9}

	at, _ := entity.SendTime(signup, step, nil)

	assert.True(t, at.Equal(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)))
}

func TestNextStep(t *testing.T) {
	steps := threeStepCampaign()

	next, ok := entity.NextStep(steps, 1)
	require.True(t, ok)
	assert.Equal(t, 2, next.StepNumber)

	next, ok = entity.NextStep(steps, 2)
	require.True(t, ok)
	assert.Equal(t, 3, next.StepNumber)

	_, ok = entity.NextStep(steps, 3)
	assert.False(t, ok)
}
