package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/entity"
)

const (
	DefaultBatchSize    = 50
	DefaultSendInterval = 100 * time.Millisecond
	DefaultStaleAfter   = time.Hour
)

// DispatchEmailsUseCase drains due rows in batches. Rows are processed one at
// a time with a minimum gap between sends to stay under the provider's rate.
type DispatchEmailsUseCase struct {
	Leads        entity.LeadRepositoryInterface
	Campaigns    entity.CampaignRepositoryInterface
	Emails       entity.ScheduledEmailRepositoryInterface
	Composer     *EmailComposer
	Location     *time.Location
	BatchSize    int
	SendInterval time.Duration
	StaleAfter   time.Duration
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
}

func NewDispatchEmailsUseCase(
	leads entity.LeadRepositoryInterface,
	campaigns entity.CampaignRepositoryInterface,
	emails entity.ScheduledEmailRepositoryInterface,
	composer *EmailComposer,
	location *time.Location,
) *DispatchEmailsUseCase {
	return &DispatchEmailsUseCase{
		Leads:        leads,
		Campaigns:    campaigns,
		Emails:       emails,
		Composer:     composer,
		Location:     location,
		BatchSize:    DefaultBatchSize,
		SendInterval: DefaultSendInterval,
		StaleAfter:   DefaultStaleAfter,
		Now:          time.Now,
		Sleep:        sleepContext,
	}
}

type rowOutcome int

const (
	outcomeSent rowOutcome = iota
	outcomeRetry
	outcomeFailed
	outcomeSkipped
	outcomeLost
)

// Execute runs one batch. It only returns an error when the batch could not
// be selected or the context was cancelled mid-run; per-row failures are
// reported in the output.
func (uc *DispatchEmailsUseCase) Execute(ctx context.Context) (*DispatchOutput, error) {
	out := &DispatchOutput{RunID: uuid.New().String(), Errors: []string{}}
	logger := log.Ctx(ctx).With().Str("run_id", out.RunID).Logger()
	ctx = logger.WithContext(ctx)

	now := uc.Now()
	if uc.StaleAfter > 0 {
		released, err := uc.Emails.ReleaseStale(ctx, now.Add(-uc.StaleAfter), now)
		if err != nil {
			logger.Error().Err(err).Msg("failed to release stale claims")
		} else if released > 0 {
			out.Released = released
			logger.Warn().Int64("released", released).Msg("released rows stuck in sending")
		}
	}

	rows, err := uc.Emails.ListDue(ctx, now, uc.batchSize())
	if err != nil {
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to select due emails", Err: err}
	}

	steps := map[string][]entity.CampaignStep{}
	sentOne := false

	for _, row := range rows {
		if sentOne && uc.SendInterval > 0 {
			if err := uc.Sleep(ctx, uc.SendInterval); err != nil {
				logger.Warn().Int("remaining", len(rows)-out.Processed).Msg("dispatch interrupted")
				return out, err
			}
		}

		outcome, rowErr := uc.processRow(ctx, row, steps)
		if outcome == outcomeLost {
			continue
		}
		out.Processed++
		sentOne = true

		switch outcome {
		case outcomeSent:
			out.Sent++
		case outcomeFailed:
			out.Failed++
		case outcomeSkipped:
			out.Skipped++
		}
		if rowErr != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", row.ID, rowErr))
		}
	}

	logger.Info().
		Int("processed", out.Processed).
		Int("sent", out.Sent).
		Int("failed", out.Failed).
		Int("skipped", out.Skipped).
		Int("errors", len(out.Errors)).
		Msg("dispatch run finished")

	return out, nil
}

func (uc *DispatchEmailsUseCase) processRow(ctx context.Context, row *entity.ScheduledEmail, steps map[string][]entity.CampaignStep) (rowOutcome, error) {
	logger := log.Ctx(ctx).With().Str("email_id", row.ID).Str("lead_id", row.LeadID).Logger()

	claimed, err := uc.Emails.Claim(ctx, row.ID, uc.Now())
	if err != nil {
		logger.Error().Err(err).Msg("claim failed")
		return outcomeLost, nil
	}
	if !claimed {
		logger.Debug().Msg("row claimed elsewhere or cancelled")
		return outcomeLost, nil
	}
	row.Attempts++
	row.Status = entity.EmailStatusSending

	lead, err := uc.Leads.FindByID(ctx, row.LeadID)
	if errors.Is(err, entity.ErrLeadNotFound) || (err == nil && !lead.IsActive()) {
		if _, cancelErr := uc.Emails.Cancel(ctx, row.ID, entity.CancelReasonLeadInactive, uc.Now()); cancelErr != nil {
			logger.Error().Err(cancelErr).Msg("failed to cancel row for inactive lead")
		}
		logger.Info().Msg("skipped, lead no longer active")
		return outcomeSkipped, nil
	}
	if err != nil {
		return uc.fail(ctx, logger, row, fmt.Errorf("load lead: %w", err))
	}

	messageID, err := uc.Composer.Send(ctx, lead, row)
	if err != nil {
		return uc.fail(ctx, logger, row, err)
	}

	sentAt := uc.Now()
	if err := uc.Emails.MarkSent(ctx, row.ID, messageID, sentAt); err != nil {
		logger.Error().Err(err).Str("message_id", messageID).Msg("sent but failed to record it")
		return outcomeSent, fmt.Errorf("mark sent: %w", err)
	}

	// next_email_at is left as it was when the campaign cannot be read; a
	// nil would tell readers the drip is finished
	if next, err := uc.nextEmailAt(ctx, lead, row.StepNumber, steps); err != nil {
		logger.Error().Err(err).Msg("failed to compute next email time, lead step not advanced")
	} else if err := uc.Leads.AdvanceStep(ctx, lead.ID, row.StepNumber, next); err != nil {
		logger.Error().Err(err).Msg("failed to advance lead step")
	}

	logger.Info().Str("message_id", messageID).Int("step", row.StepNumber).Msg("email sent")
	return outcomeSent, nil
}

// fail records the error on the row. Rows with attempts left go back to
// pending and count as a retry, not a failure.
func (uc *DispatchEmailsUseCase) fail(ctx context.Context, logger zerolog.Logger, row *entity.ScheduledEmail, cause error) (rowOutcome, error) {
	status, err := uc.Emails.RecordFailure(ctx, row.ID, cause.Error(), uc.Now())
	if err != nil {
		logger.Error().Err(err).Msg("failed to record send failure")
		status = row.FailureStatus()
	}

	logger.Warn().Err(cause).Int("attempts", row.Attempts).Str("status", string(status)).Msg("send failed")
	if status == entity.EmailStatusFailed {
		return outcomeFailed, cause
	}
	return outcomeRetry, cause
}

func (uc *DispatchEmailsUseCase) nextEmailAt(ctx context.Context, lead *entity.Lead, stepNumber int, cache map[string][]entity.CampaignStep) (*time.Time, error) {
	steps, ok := cache[lead.CampaignID]
	if !ok {
		var err error
		steps, err = uc.Campaigns.ListSteps(ctx, lead.CampaignID)
		if err != nil {
			return nil, err
		}
		cache[lead.CampaignID] = steps
	}

	next, found := entity.NextStep(steps, stepNumber)
	if !found {
		return nil, nil
	}
	at, _ := entity.SendTime(lead.CreatedAt, next, uc.Location)
	return &at, nil
}

func (uc *DispatchEmailsUseCase) batchSize() int {
	if uc.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return uc.BatchSize
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
