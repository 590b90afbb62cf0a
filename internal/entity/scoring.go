package entity

import (
	"strings"

	"github.com/gosimple/slug"
)

type Temperature string

const (
	TemperatureHot     Temperature = "hot"
	TemperatureWarm    Temperature = "warm"
	TemperatureNurture Temperature = "nurture"
	TemperatureCold    Temperature = "cold"
)

type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PrioritySameDay   Priority = "same-day"
	PriorityNurture   Priority = "nurture"
	PriorityDrip      Priority = "drip"
)

const (
	MinScore = 0
	MaxScore = 100
)

var timelineWeights = map[string]int{
	"asap":           40,
	"0-3-months":     40,
	"3-6-months":     30,
	"6-12-months":    20,
	"12-months":      10,
	"12-plus-months": 10,
	"just-curious":   5,
	"browsing":       5,
}

var intentWeights = map[string]int{
	"both":    25,
	"sell":    20,
	"buy":     18,
	"invest":  15,
	"curious": 5,
}

var propertyTypeWeights = map[string]int{
	"single-family": 12,
	"multi-family":  10,
	"condo":         8,
	"townhouse":     8,
	"land":          5,
	"other":         3,
}

var decisionFactorWeights = map[string]int{
	"price":    8,
	"timing":   8,
	"location": 6,
	"schools":  6,
	"size":     5,
	"other":    3,
}

var preApprovalWeights = map[string]int{
	"yes":         15,
	"no":          5,
	"not-yet":     5,
	"in-progress": 5,
}

var contactPreferenceWeights = map[string]int{
	"phone": 10,
	"call":  10,
	"text":  8,
	"email": 5,
	"any":   5,
}

const valueRangeBonus = 5

// NormalizeAnswer turns a free-form form answer such as "3-6 Months" or
// "single_family" into the canonical key used by the scoring tables.
func NormalizeAnswer(answer string) string {
	s := slug.Make(strings.TrimSpace(answer))
	return strings.ReplaceAll(s, "_", "-")
}

// Normalize returns a copy of q with every answer normalized.
func (q Qualification) Normalize() Qualification {
	return Qualification{
		Intent:            NormalizeAnswer(q.Intent),
		Timeline:          NormalizeAnswer(q.Timeline),
		PropertyType:      NormalizeAnswer(q.PropertyType),
		ValueRange:        strings.TrimSpace(q.ValueRange),
		PreApproval:       NormalizeAnswer(q.PreApproval),
		ContactPreference: NormalizeAnswer(q.ContactPreference),
		DecisionFactor:    NormalizeAnswer(q.DecisionFactor),
	}
}

// ImpliesBuying reports whether pre-approval should count toward the score.
func (q Qualification) ImpliesBuying() bool {
	switch NormalizeAnswer(q.Intent) {
	case "buy", "both", "invest":
		return true
	}
	return false
}

// ComputeScore sums the weighted contribution of each answer and clamps the
// result to [0, 100]. Unknown answers contribute nothing.
func ComputeScore(q Qualification) int {
	q = q.Normalize()

	score := timelineWeights[q.Timeline] +
		intentWeights[q.Intent] +
		propertyTypeWeights[q.PropertyType] +
		decisionFactorWeights[q.DecisionFactor] +
		contactPreferenceWeights[q.ContactPreference]

	if q.ImpliesBuying() {
		score += preApprovalWeights[q.PreApproval]
	}
	if q.ValueRange != "" {
		score += valueRangeBonus
	}

	return ClampScore(score)
}

func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

func TemperatureFor(score int) Temperature {
	switch {
	case score >= 80:
		return TemperatureHot
	case score >= 50:
		return TemperatureWarm
	case score >= 25:
		return TemperatureNurture
	default:
		return TemperatureCold
	}
}

func PriorityFor(t Temperature) Priority {
	switch t {
	case TemperatureHot:
		return PriorityImmediate
	case TemperatureWarm:
		return PrioritySameDay
	case TemperatureNurture:
		return PriorityNurture
	default:
		return PriorityDrip
	}
}

// ScoreResult keeps the server computed score next to the one the client
// claimed. Final is what gets stored on the lead.
type ScoreResult struct {
	Server      int
	Client      *int
	Final       int
	Temperature Temperature
	Priority    Priority
}

func EvaluateScore(q Qualification, clientScore *int) ScoreResult {
	server := ComputeScore(q)
	final := server
	var client *int
	if clientScore != nil {
		v := ClampScore(*clientScore)
		client = &v
		final = v
	}

	temp := TemperatureFor(final)
	return ScoreResult{
		Server:      server,
		Client:      client,
		Final:       final,
		Temperature: temp,
		Priority:    PriorityFor(temp),
	}
}

// Apply copies the result onto the lead.
func (r ScoreResult) Apply(l *Lead) {
	l.Score = r.Final
	l.ServerScore = r.Server
	l.ClientScore = r.Client
	l.Temperature = r.Temperature
	l.Priority = r.Priority
}
