package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/entity"
)

// eventTargets maps provider events to the row status they produce. Events
// missing from the map are recorded without touching the row.
var eventTargets = map[entity.EventType]entity.EmailStatus{
	entity.EventDelivery:  entity.EmailStatusDelivered,
	entity.EventOpen:      entity.EmailStatusOpened,
	entity.EventClick:     entity.EmailStatusClicked,
	entity.EventBounce:    entity.EmailStatusBounced,
	entity.EventComplaint: entity.EmailStatusComplained,
}

var recordOnlyEvents = map[entity.EventType]bool{
	entity.EventSend:             true,
	entity.EventReject:           true,
	entity.EventDeliveryDelay:    true,
	entity.EventRenderingFailure: true,
}

func IsKnownEventType(t entity.EventType) bool {
	_, ok := eventTargets[t]
	return ok || recordOnlyEvents[t]
}

type ProcessEmailEventUseCase struct {
	Emails entity.ScheduledEmailRepositoryInterface
	Events entity.EmailEventRepositoryInterface
	Leads  entity.LeadRepositoryInterface
	Now    func() time.Time
}

func NewProcessEmailEventUseCase(
	emails entity.ScheduledEmailRepositoryInterface,
	events entity.EmailEventRepositoryInterface,
	leads entity.LeadRepositoryInterface,
) *ProcessEmailEventUseCase {
	return &ProcessEmailEventUseCase{
		Emails: emails,
		Events: events,
		Leads:  leads,
		Now:    time.Now,
	}
}

// Execute applies one provider event. Unknown event types and message ids
// this system never sent are logged and dropped without error.
func (uc *ProcessEmailEventUseCase) Execute(ctx context.Context, event entity.EmailEvent) (*ProcessEmailEventOutput, error) {
	logger := log.Ctx(ctx).With().
		Str("event_type", string(event.EventType)).
		Str("message_id", event.MessageID).
		Logger()

	if !IsKnownEventType(event.EventType) {
		logger.Warn().Msg("unknown event type, acknowledged")
		return &ProcessEmailEventOutput{}, nil
	}

	row, err := uc.Emails.FindByMessageID(ctx, event.MessageID)
	if errors.Is(err, entity.ErrEmailNotFound) {
		logger.Info().Msg("no scheduled email for message id, dropped")
		return &ProcessEmailEventOutput{}, nil
	}
	if err != nil {
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to look up scheduled email", Err: err}
	}

	logger = logger.With().Str("email_id", row.ID).Str("lead_id", row.LeadID).Logger()

	now := uc.Now()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.ScheduledEmailID = row.ID
	event.CreatedAt = now

	if err := uc.Events.Create(ctx, &event); err != nil {
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to record email event", Err: err}
	}

	out := &ProcessEmailEventOutput{Matched: true, Status: row.Status}

	target, changesStatus := eventTargets[event.EventType]
	if changesStatus {
		changed, err := uc.Emails.AdvanceStatus(ctx, row.ID, target, event.OccurredAt)
		if err != nil {
			return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to update scheduled email", Err: err}
		}
		out.StatusChanged = changed
		if changed {
			out.Status = target
		} else {
			logger.Debug().Str("current", string(row.Status)).Str("target", string(target)).Msg("status not advanced")
		}
	}

	switch {
	case event.IsPermanentBounce():
		return uc.suppress(ctx, out, row.LeadID, entity.LeadStatusBounced, entity.CancelReasonPermanentBounce, now)
	case event.EventType == entity.EventComplaint:
		return uc.suppress(ctx, out, row.LeadID, entity.LeadStatusUnsubscribed, entity.CancelReasonComplaint, now)
	}

	logger.Info().Str("status", string(out.Status)).Msg("email event processed")
	return out, nil
}

// suppress moves the lead to a terminal status and cancels every row still
// waiting to be sent.
func (uc *ProcessEmailEventUseCase) suppress(ctx context.Context, out *ProcessEmailEventOutput, leadID string, to entity.LeadStatus, reason string, now time.Time) (*ProcessEmailEventOutput, error) {
	logger := log.Ctx(ctx).With().Str("lead_id", leadID).Logger()

	from := []entity.LeadStatus{entity.LeadStatusActive}
	if to == entity.LeadStatusUnsubscribed {
		from = append(from, entity.LeadStatusBounced)
	}

	changed, err := uc.Leads.UpdateStatus(ctx, leadID, to, from, now)
	if err != nil {
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to suppress lead", Err: err}
	}
	if changed {
		out.LeadStatus = to
	}

	cancelled, err := uc.Emails.CancelPendingForLead(ctx, leadID, reason, now)
	if err != nil {
		return nil, &TechnicalError{Code: CodeDatabase, Message: "failed to cancel pending emails", Err: err}
	}
	out.Cancelled = cancelled

	logger.Info().
		Str("lead_status", string(to)).
		Bool("lead_changed", changed).
		Int64("cancelled", cancelled).
		Msg("lead suppressed")
	return out, nil
}
