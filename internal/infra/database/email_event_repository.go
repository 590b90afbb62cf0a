package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/xavierca1/leaddrip/internal/entity"
)

type EmailEventRepository struct {
	DB *sql.DB
}

func NewEmailEventRepository(db *sql.DB) *EmailEventRepository {
	return &EmailEventRepository{DB: db}
}

func (r *EmailEventRepository) Create(ctx context.Context, ev *entity.EmailEvent) error {
	query := `
		INSERT INTO email_events (
			id, scheduled_email_id, message_id, event_type, occurred_at,
			bounce_type, bounce_sub_type, complaint_type, link_url, user_agent, ip_address,
			raw_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	// raw_payload is JSONB; anything that is not valid JSON is stored as NULL
	var raw any
	if len(ev.RawPayload) > 0 && json.Valid(ev.RawPayload) {
		raw = string(ev.RawPayload)
	}

	_, err := r.DB.ExecContext(ctx, query,
		ev.ID, ev.ScheduledEmailID, ev.MessageID, string(ev.EventType), ev.OccurredAt,
		nullString(ev.BounceType), nullString(ev.BounceSubType), nullString(ev.ComplaintType),
		nullString(ev.LinkURL), nullString(ev.UserAgent), nullString(ev.IPAddress),
		raw, ev.CreatedAt,
	)
	return err
}
