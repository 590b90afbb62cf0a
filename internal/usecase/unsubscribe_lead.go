package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/entity"
)

const (
	msgUnsubscribed        = "You have been unsubscribed and will not receive any more emails from us."
	msgAlreadyUnsubscribed = "You are already unsubscribed. No further emails will be sent."
)

type UnsubscribeLeadUseCase struct {
	Leads  entity.LeadRepositoryInterface
	Emails entity.ScheduledEmailRepositoryInterface
	Tokens TokenVerifier
	Now    func() time.Time
}

func NewUnsubscribeLeadUseCase(
	leads entity.LeadRepositoryInterface,
	emails entity.ScheduledEmailRepositoryInterface,
	tokens TokenVerifier,
) *UnsubscribeLeadUseCase {
	return &UnsubscribeLeadUseCase{
		Leads:  leads,
		Emails: emails,
		Tokens: tokens,
		Now:    time.Now,
	}
}

// Execute is idempotent: a lead that is already unsubscribed gets the
// confirmation again and nothing is written.
func (uc *UnsubscribeLeadUseCase) Execute(ctx context.Context, input UnsubscribeInput) (*UnsubscribeOutput, error) {
	token := strings.TrimSpace(input.Token)
	if token == "" {
		return nil, &DomainError{Code: CodeInvalidToken, Message: "missing unsubscribe token"}
	}

	leadID, err := uc.Tokens.Verify(token)
	if err != nil {
		return nil, &DomainError{Code: CodeInvalidToken, Message: "invalid unsubscribe token: " + err.Error()}
	}

	logger := log.Ctx(ctx).With().Str("lead_id", leadID).Logger()

	lead, err := uc.Leads.FindByID(ctx, leadID)
	if errors.Is(err, entity.ErrLeadNotFound) {
		return nil, &DomainError{Code: CodeLeadNotFound, Message: "lead not found"}
	}
	if err != nil {
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to load lead", Err: err}
	}

	if lead.Status == entity.LeadStatusUnsubscribed {
		logger.Info().Msg("already unsubscribed")
		return alreadyUnsubscribed(lead), nil
	}

	now := uc.Now()
	changed, err := uc.Leads.UpdateStatus(ctx, lead.ID, entity.LeadStatusUnsubscribed,
		[]entity.LeadStatus{entity.LeadStatusActive, entity.LeadStatusBounced}, now)
	if err != nil {
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to unsubscribe lead", Err: err}
	}
	if !changed {
		// a concurrent request or complaint got there first
		return alreadyUnsubscribed(lead), nil
	}

	cancelled, err := uc.Emails.CancelPendingForLead(ctx, lead.ID, entity.CancelReasonUnsubscribed, now)
	if err != nil {
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to cancel pending emails", Err: err}
	}

	logger.Info().Int64("cancelled", cancelled).Msg("lead unsubscribed")
	return &UnsubscribeOutput{
		Result:    UnsubscribeResultDone,
		LeadID:    lead.ID,
		Email:     lead.Email,
		Message:   msgUnsubscribed,
		Cancelled: cancelled,
	}, nil
}

func alreadyUnsubscribed(lead *entity.Lead) *UnsubscribeOutput {
	return &UnsubscribeOutput{
		Result:  UnsubscribeResultAlready,
		LeadID:  lead.ID,
		Email:   lead.Email,
		Message: msgAlreadyUnsubscribed,
	}
}
