package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xavierca1/leaddrip/internal/entity"
	"github.com/xavierca1/leaddrip/internal/infra/memory"
	"github.com/xavierca1/leaddrip/internal/infra/queue"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

var signupTime = time.Date(2025, 3, 5, 15, 30, 0, 0, time.UTC)

func newYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}

// MockQueueProducer
type MockQueueProducer struct {
	mock.Mock
}

func (m *MockQueueProducer) PublishLeadCaptured(ctx context.Context, payload queue.LeadCapturedPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// fakeMailer records every send and fails for recipients in failFor.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []usecase.OutboundEmail
	failFor map[string]bool
	failAll bool
	seq     int
}

func (f *fakeMailer) Send(_ context.Context, email usecase.OutboundEmail) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failFor[email.To] {
		return "", errors.New("smtp timeout")
	}
	f.seq++
	f.sent = append(f.sent, email)
	return fmt.Sprintf("msg-%03d", f.seq), nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, templateID string, data usecase.TemplateData) (*usecase.RenderedEmail, error) {
	return &usecase.RenderedEmail{
		Subject: templateID + " for " + data.Lead.FirstName(),
		HTML:    "<p>" + templateID + "</p>",
		Text:    templateID,
	}, nil
}

type stubLinks struct{}

func (stubLinks) UnsubscribeURL(leadID string) (string, error) {
	return "https://example.com/unsubscribe?token=" + leadID, nil
}

// stubTokens treats the token as the lead id.
type stubTokens struct{}

func (stubTokens) Verify(token string) (string, error) {
	if token == "bad" {
		return "", errors.New("signature is invalid")
	}
	return token, nil
}

func threeSteps() []entity.CampaignStep {
	return []entity.CampaignStep{
		{ID: "buy-1", StepNumber: 1, TemplateID: "welcome_report", DelayDays: 0, SendHour: 9},
		{ID: "buy-2", StepNumber: 2, TemplateID: "market_update", DelayDays: 3, SendHour: 14},
		{ID: "buy-3", StepNumber: 3, TemplateID: "check_in", DelayDays: 7, SendHour: 10},
	}
}

func seededStore() *memory.Store {
	store := memory.NewStore()
	store.SeedCampaign(entity.Campaign{ID: "buyer_drip", Name: "Buyer Drip", Intent: "buy", Active: true}, threeSteps()...)
	store.SeedCampaign(entity.Campaign{ID: "general_drip", Name: "General Nurture", Intent: "general", Active: true},
		entity.CampaignStep{ID: "gen-1", StepNumber: 1, TemplateID: "welcome_report", DelayDays: 0, SendHour: 9},
		entity.CampaignStep{ID: "gen-2", StepNumber: 2, TemplateID: "check_in", DelayDays: 5, SendHour: 11},
	)
	return store
}

func composer(mailer usecase.Mailer) *usecase.EmailComposer {
	return usecase.NewEmailComposer(stubRenderer{}, mailer, nil, stubLinks{})
}

// seedLeadWithRows inserts an active lead on the buyer campaign whose step 2
// row is due at signupTime.
func seedLeadWithRows(store *memory.Store, n int) (*entity.Lead, *entity.ScheduledEmail) {
	ctx := context.Background()
	lead := &entity.Lead{
		ID:          fmt.Sprintf("lead-%02d", n),
		Email:       fmt.Sprintf("lead%02d@example.com", n),
		Name:        "Lead Number",
		Zipcode:     "02134",
		CampaignID:  "buyer_drip",
		CurrentStep: 1,
		Status:      entity.LeadStatusActive,
		CreatedAt:   signupTime.Add(-72 * time.Hour),
	}
	if err := store.Leads().Create(ctx, lead); err != nil {
		panic(err)
	}

	row := &entity.ScheduledEmail{
		ID:             fmt.Sprintf("row-%02d", n),
		LeadID:         lead.ID,
		CampaignStepID: "buy-2",
		StepNumber:     2,
		TemplateID:     "market_update",
		ScheduledFor:   signupTime.Add(-time.Duration(60-n) * time.Second),
		Status:         entity.EmailStatusPending,
		MaxAttempts:    3,
		UpdatedAt:      signupTime.Add(-time.Hour),
	}
	later := &entity.ScheduledEmail{
		ID:             fmt.Sprintf("row-%02d-3", n),
		LeadID:         lead.ID,
		CampaignStepID: "buy-3",
		StepNumber:     3,
		TemplateID:     "check_in",
		ScheduledFor:   signupTime.Add(96 * time.Hour),
		Status:         entity.EmailStatusPending,
		MaxAttempts:    3,
	}
	if err := store.Emails().CreateBatch(ctx, []*entity.ScheduledEmail{row, later}); err != nil {
		panic(err)
	}
	return lead, row
}

func rowByID(store *memory.Store, id string) *entity.ScheduledEmail {
	row, err := store.Emails().FindByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return row
}

func countStatus(rows []entity.ScheduledEmail, status entity.EmailStatus) int {
	n := 0
	for _, r := range rows {
		if r.Status == status {
			n++
		}
	}
	return n
}
