package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/entity"
	"github.com/xavierca1/leaddrip/internal/infra/queue"
)

// DefaultCampaignIntent is the campaign used when the lead's intent has no
// dedicated track.
const DefaultCampaignIntent = "general"

const duplicateLeadMessage = "This email is already enrolled. Check your inbox for our latest report."

type CaptureLeadUseCase struct {
	Leads       entity.LeadRepositoryInterface
	Campaigns   entity.CampaignRepositoryInterface
	Emails      entity.ScheduledEmailRepositoryInterface
	Composer    *EmailComposer
	Queue       QueueProducerInterface
	Location    *time.Location
	MaxAttempts int
	Now         func() time.Time
}

func NewCaptureLeadUseCase(
	leads entity.LeadRepositoryInterface,
	campaigns entity.CampaignRepositoryInterface,
	emails entity.ScheduledEmailRepositoryInterface,
	composer *EmailComposer,
	queue QueueProducerInterface,
	location *time.Location,
	maxAttempts int,
) *CaptureLeadUseCase {
	if maxAttempts <= 0 {
		maxAttempts = entity.DefaultMaxAttempts
	}
	return &CaptureLeadUseCase{
		Leads:       leads,
		Campaigns:   campaigns,
		Emails:      emails,
		Composer:    composer,
		Queue:       queue,
		Location:    location,
		MaxAttempts: maxAttempts,
		Now:         time.Now,
	}
}

func (uc *CaptureLeadUseCase) Execute(ctx context.Context, input CaptureLeadInput) (*CaptureLeadOutput, error) {
	if errs := ValidateCaptureLeadInput(input); len(errs) > 0 {
		return nil, &DomainError{
			Code:    CodeValidation,
			Message: validationMessage(errs),
			Fields:  errs,
		}
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	logger := log.Ctx(ctx).With().Str("email", email).Logger()

	existing, err := uc.Leads.FindActiveByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		logger.Info().Str("lead_id", existing.ID).Msg("duplicate lead submission rejected")
		return duplicateOutput(), nil
	case err != nil && !errors.Is(err, entity.ErrLeadNotFound):
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to check for existing lead", Err: err}
	}

	qualification := input.Qualification()
	score := entity.EvaluateScore(qualification, input.Score)

	scoreLog := logger.Info().
		Int("server_score", score.Server).
		Int("final_score", score.Final).
		Str("temperature", string(score.Temperature))
	if score.Client != nil {
		scoreLog = scoreLog.Int("client_score", *score.Client).Str("client_temperature", input.Temperature)
	}
	scoreLog.Msg("lead scored")

	campaign, steps, err := uc.resolveCampaign(ctx, qualification.Intent)
	if err != nil {
		return nil, err
	}

	now := uc.Now()
	lead := &entity.Lead{
		ID:            uuid.New().String(),
		Email:         email,
		Name:          strings.TrimSpace(input.Name),
		Phone:         strings.TrimSpace(input.Phone),
		Address:       strings.TrimSpace(input.Address),
		Town:          strings.TrimSpace(input.Town),
		Zipcode:       strings.TrimSpace(input.Zipcode),
		County:        strings.TrimSpace(input.County),
		Qualification: qualification,
		CampaignID:    campaign.ID,
		Status:        entity.LeadStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	score.Apply(lead)

	rows := uc.materialize(lead, entity.BuildSchedule(now, steps, uc.Location), now)
	if len(rows) > 0 {
		first := rows[0].ScheduledFor
		lead.NextEmailAt = &first
	}

	txn := NewTransaction()
	txn.AddOperation("create_lead", func(ctx context.Context) error {
		return uc.Leads.Create(ctx, lead)
	})
	txn.AddCompensation("delete_lead", func(ctx context.Context) error {
		return uc.Leads.Delete(ctx, lead.ID)
	})
	txn.AddOperation("schedule_emails", func(ctx context.Context) error {
		return uc.Emails.CreateBatch(ctx, rows)
	})

	if err := txn.Execute(ctx); err != nil {
		if errors.Is(err, entity.ErrDuplicateLead) {
			logger.Info().Msg("duplicate lead lost the insert race")
			return duplicateOutput(), nil
		}
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to persist lead and schedule", Err: err}
	}

	logger = logger.With().Str("lead_id", lead.ID).Logger()
	logger.Info().Str("campaign", campaign.ID).Int("emails_scheduled", len(rows)).Msg("lead captured")

	// The lead is committed. Send and notification failures are recorded
	// and logged, never returned.
	welcomeSent := uc.sendImmediate(logger.WithContext(ctx), lead, rows)
	uc.notifyOperator(logger.WithContext(ctx), lead, campaign, welcomeSent)

	return &CaptureLeadOutput{
		Success:          true,
		LeadID:           lead.ID,
		Campaign:         campaign.ID,
		Score:            lead.Score,
		Temperature:      string(lead.Temperature),
		EmailsScheduled:  len(rows),
		WelcomeEmailSent: welcomeSent,
	}, nil
}

func (uc *CaptureLeadUseCase) resolveCampaign(ctx context.Context, intent string) (*entity.Campaign, []entity.CampaignStep, error) {
	campaign, err := uc.Campaigns.FindByIntent(ctx, intent)
	if errors.Is(err, entity.ErrCampaignNotFound) && intent != DefaultCampaignIntent {
		campaign, err = uc.Campaigns.FindByIntent(ctx, DefaultCampaignIntent)
	}
	if err != nil {
		return nil, nil, &TechnicalError{
			Code:    CodeCampaignNotFound,
			Message: "no campaign configured for intent " + intent,
			Err:     err,
		}
	}

	steps, err := uc.Campaigns.ListSteps(ctx, campaign.ID)
	if err != nil {
		return nil, nil, &TechnicalError{Code: CodeDatabase, Message: "failed to load campaign steps", Err: err}
	}
	return campaign, steps, nil
}

// materialize builds one row per slot. Day zero rows start already claimed so
// the dispatcher never races the synchronous send.
func (uc *CaptureLeadUseCase) materialize(lead *entity.Lead, slots []entity.ScheduleSlot, now time.Time) []*entity.ScheduledEmail {
	rows := make([]*entity.ScheduledEmail, 0, len(slots))
	for _, slot := range slots {
		row := &entity.ScheduledEmail{
			ID:             uuid.New().String(),
			LeadID:         lead.ID,
			CampaignStepID: slot.Step.ID,
			StepNumber:     slot.Step.StepNumber,
			TemplateID:     slot.Step.TemplateID,
			ScheduledFor:   slot.SendAt,
			Status:         entity.EmailStatusPending,
			MaxAttempts:    uc.MaxAttempts,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if slot.Immediate {
			row.Status = entity.EmailStatusSending
			row.Attempts = 1
		}
		rows = append(rows, row)
	}
	return rows
}

// sendImmediate sends every day zero row and reports whether the first one
// went out.
func (uc *CaptureLeadUseCase) sendImmediate(ctx context.Context, lead *entity.Lead, rows []*entity.ScheduledEmail) bool {
	welcomeSent := false
	first := true
	sentStep := 0

	for _, row := range rows {
		if row.Status != entity.EmailStatusSending {
			continue
		}
		ok := uc.sendNow(ctx, lead, row)
		if first {
			welcomeSent = ok
			first = false
		}
		if ok {
			sentStep = row.StepNumber
		}
	}

	if first {
		return false
	}

	next := nextPendingTime(rows)
	if err := uc.Leads.AdvanceStep(ctx, lead.ID, sentStep, next); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to advance lead after day zero send")
		return welcomeSent
	}
	lead.CurrentStep = sentStep
	lead.NextEmailAt = next
	return welcomeSent
}

func (uc *CaptureLeadUseCase) sendNow(ctx context.Context, lead *entity.Lead, row *entity.ScheduledEmail) bool {
	logger := log.Ctx(ctx).With().Str("email_id", row.ID).Str("template", row.TemplateID).Logger()

	if !lead.HasReportAddress() {
		if _, err := uc.Emails.Cancel(ctx, row.ID, entity.FailReasonMissingAddress, uc.Now()); err != nil {
			logger.Error().Err(err).Msg("failed to record skipped report email")
		}
		row.Status = entity.EmailStatusFailed
		row.LastError = entity.FailReasonMissingAddress
		logger.Info().Msg("day zero report skipped, no address on file")
		return false
	}

	messageID, err := uc.Composer.Send(ctx, lead, row)
	if err != nil {
		status, recErr := uc.Emails.RecordFailure(ctx, row.ID, err.Error(), uc.Now())
		if recErr != nil {
			logger.Error().Err(recErr).Msg("failed to record day zero send failure")
		} else {
			row.Status = status
		}
		row.LastError = err.Error()
		logger.Warn().Err(err).Str("status", string(row.Status)).Msg("day zero send failed")
		return false
	}

	sentAt := uc.Now()
	if err := uc.Emails.MarkSent(ctx, row.ID, messageID, sentAt); err != nil {
		// The email left; only the bookkeeping failed.
		logger.Error().Err(err).Str("message_id", messageID).Msg("failed to mark day zero email sent")
	}
	row.Status = entity.EmailStatusSent
	row.MessageID = messageID
	row.SentAt = &sentAt

	logger.Info().Str("message_id", messageID).Msg("day zero email sent")
	return true
}

func (uc *CaptureLeadUseCase) notifyOperator(ctx context.Context, lead *entity.Lead, campaign *entity.Campaign, welcomeSent bool) {
	if uc.Queue == nil {
		return
	}

	payload := queue.LeadCapturedPayload{
		LeadID:            lead.ID,
		Name:              lead.Name,
		Email:             lead.Email,
		Phone:             lead.Phone,
		Address:           lead.Address,
		Town:              lead.Town,
		Zipcode:           lead.Zipcode,
		County:            lead.County,
		Intent:            lead.Intent,
		Timeline:          lead.Timeline,
		PropertyType:      lead.PropertyType,
		ValueRange:        lead.ValueRange,
		PreApproval:       lead.PreApproval,
		ContactPreference: lead.ContactPreference,
		DecisionFactor:    lead.DecisionFactor,
		Score:             lead.Score,
		ServerScore:       lead.ServerScore,
		ClientScore:       lead.ClientScore,
		Temperature:       string(lead.Temperature),
		Priority:          string(lead.Priority),
		Campaign:          campaign.Name,
		WelcomeEmailSent:  welcomeSent,
		CapturedAt:        lead.CreatedAt,
	}

	if err := uc.Queue.PublishLeadCaptured(ctx, payload); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("operator notification not queued")
	}
}

// nextPendingTime is the scheduled time of the earliest row still waiting to
// be sent, or nil when nothing is left.
func nextPendingTime(rows []*entity.ScheduledEmail) *time.Time {
	var next *time.Time
	for _, row := range rows {
		if row.Status != entity.EmailStatusPending {
			continue
		}
		if next == nil || row.ScheduledFor.Before(*next) {
			t := row.ScheduledFor
			next = &t
		}
	}
	return next
}

func duplicateOutput() *CaptureLeadOutput {
	return &CaptureLeadOutput{
		Success:   false,
		Duplicate: true,
		Error:     duplicateLeadMessage,
	}
}
