package entity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xavierca1/leaddrip/internal/entity"
)

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name     string
		input    entity.Qualification
		expected int
	}{
		{
			name:     "empty answers score zero",
			input:    entity.Qualification{},
			expected: 0,
		},
		{
			name: "best answers clamp to 100",
			input: entity.Qualification{
				Intent:            "both",
				Timeline:          "asap",
				PropertyType:      "single_family",
				ValueRange:        "$500k-$750k",
				PreApproval:       "yes",
				ContactPreference: "phone",
				DecisionFactor:    "price",
			},
			expected: 100,
		},
		{
			name: "free form answers are normalized",
			input: entity.Qualification{
				Intent:       "Buy",
				Timeline:     "3-6 Months",
				PropertyType: "Condo",
			},
			expected: 18 + 30 + 8,
		},
		{
			name: "pre-approval ignored for sellers",
			input: entity.Qualification{
				Intent:      "sell",
				PreApproval: "yes",
			},
			expected: 20,
		},
		{
			name: "pre-approval not yet counts for buyers",
			input: entity.Qualification{
				Intent:      "buy",
				PreApproval: "not_yet",
			},
			expected: 18 + 5,
		},
		{
			name: "value range adds flat bonus",
			input: entity.Qualification{
				Intent:     "curious",
				ValueRange: "under 300k",
			},
			expected: 5 + 5,
		},
		{
			name: "unknown answers contribute nothing",
			input: entity.Qualification{
				Intent:       "timeshare",
				Timeline:     "someday",
				PropertyType: "castle",
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, entity.ComputeScore(tt.input))
		})
	}
}

func TestTemperatureAndPriority(t *testing.T) {
	tests := []struct {
		score    int
		temp     entity.Temperature
		priority entity.Priority
	}{
		{100, entity.TemperatureHot, entity.PriorityImmediate},
		{80, entity.TemperatureHot, entity.PriorityImmediate},
		{79, entity.TemperatureWarm, entity.PrioritySameDay},
		{50, entity.TemperatureWarm, entity.PrioritySameDay},
		{49, entity.TemperatureNurture, entity.PriorityNurture},
		{25, entity.TemperatureNurture, entity.PriorityNurture},
		{24, entity.TemperatureCold, entity.PriorityDrip},
		{0, entity.TemperatureCold, entity.PriorityDrip},
	}

	for _, tt := range tests {
		temp := entity.TemperatureFor(tt.score)
		assert.Equal(t, tt.temp, temp, "score %d", tt.score)
		assert.Equal(t, tt.priority, entity.PriorityFor(temp), "score %d", tt.score)
	}
}

func TestComputeScore_AlwaysInRange(t *testing.T) {
	intents := []string{"", "buy", "sell", "both", "invest", "curious", "other"}
	timelines := []string{"", "asap", "0-3 months", "3-6 months", "6-12 months", "12+ months", "just curious"}
	types := []string{"", "single_family", "multi_family", "condo", "townhouse", "land", "other"}
	preApprovals := []string{"", "yes", "no", "not yet"}
	contacts := []string{"", "phone", "text", "email"}
	factors := []string{"", "price", "timing", "location", "schools"}
	values := []string{"", "$1M+"}

	for _, intent := range intents {
		for _, timeline := range timelines {
			for _, pt := range types {
				for _, pre := range preApprovals {
					for _, contact := range contacts {
						for _, factor := range factors {
							for _, value := range values {
								q := entity.Qualification{
									Intent:            intent,
									Timeline:          timeline,
									PropertyType:      pt,
									PreApproval:       pre,
									ContactPreference: contact,
									DecisionFactor:    factor,
									ValueRange:        value,
								}
								result := entity.EvaluateScore(q, nil)
								if result.Final < 0 || result.Final > 100 {
									t.Fatalf("score %d out of range for %+v", result.Final, q)
								}
								if result.Temperature != entity.TemperatureFor(result.Final) {
									t.Fatalf("temperature mismatch for %+v", q)
								}
							}
						}
					}
				}
			}
		}
	}
}

func TestEvaluateScore_ClientScore(t *testing.T) {
	q := entity.Qualification{Intent: "curious", Timeline: "just curious"}

	t.Run("client score wins when present", func(t *testing.T) {
		client := 90
		result := entity.EvaluateScore(q, &client)

		assert.Equal(t, 10, result.Server)
		assert.Equal(t, 90, result.Final)
		assert.Equal(t, 90, *result.Client)
		assert.Equal(t, entity.TemperatureHot, result.Temperature)
		assert.Equal(t, entity.PriorityImmediate, result.Priority)
	})

	t.Run("server score used without client score", func(t *testing.T) {
		result := entity.EvaluateScore(q, nil)

		assert.Nil(t, result.Client)
		assert.Equal(t, 10, result.Final)
		assert.Equal(t, entity.TemperatureCold, result.Temperature)
	})

	t.Run("client score is clamped", func(t *testing.T) {
		client := 250
		result := entity.EvaluateScore(q, &client)
		assert.Equal(t, 100, result.Final)
	})

	t.Run("apply copies both scores to lead", func(t *testing.T) {
		client := 60
		lead := &entity.Lead{}
		entity.EvaluateScore(q, &client).Apply(lead)

		assert.Equal(t, 60, lead.Score)
		assert.Equal(t, 10, lead.ServerScore)
		assert.Equal(t, 60, *lead.ClientScore)
		assert.Equal(t, entity.PrioritySameDay, lead.Priority)
	})
}
