package entity

import (
	"time"
	_ "time/tzdata"
)

const DefaultBusinessTimezone = "America/New_York"

// ScheduleSlot pairs a campaign step with its absolute send time.
type ScheduleSlot struct {
	Step      CampaignStep
	SendAt    time.Time
	Immediate bool
}

// SendTime computes when step should go out for a lead that signed up at
// signup. Day zero steps go out immediately. Later steps land on the signup
// date in loc plus DelayDays, at SendHour:00 local time, so the wall clock
// hour survives daylight saving changes.
func SendTime(signup time.Time, step CampaignStep, loc *time.Location) (time.Time, bool) {
	if step.DelayDays <= 0 {
		return signup, true
	}
	if loc == nil {
		loc = time.UTC
	}

	local := signup.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+step.DelayDays, clampHour(step.SendHour), 0, 0, 0, loc), false
}

// BuildSchedule returns one slot per step, ordered by step number.
func BuildSchedule(signup time.Time, steps []CampaignStep, loc *time.Location) []ScheduleSlot {
	sorted := make([]CampaignStep, len(steps))
	copy(sorted, steps)
	SortSteps(sorted)

	slots := make([]ScheduleSlot, 0, len(sorted))
	for _, step := range sorted {
		at, immediate := SendTime(signup, step, loc)
		slots = append(slots, ScheduleSlot{Step: step, SendAt: at, Immediate: immediate})
	}
	return slots
}

func clampHour(h int) int {
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}
