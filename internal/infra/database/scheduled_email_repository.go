package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xavierca1/leaddrip/internal/entity"
)

// staleReleaseReason is written to last_error when a stuck send claim is
// handed back to the dispatcher.
const staleReleaseReason = "released after stale send claim"

type ScheduledEmailRepository struct {
	DB *sql.DB
}

func NewScheduledEmailRepository(db *sql.DB) *ScheduledEmailRepository {
	return &ScheduledEmailRepository{DB: db}
}

const emailColumns = `
	id, lead_id, campaign_step_id, step_number, template_id, scheduled_for, status,
	attempts, max_attempts, message_id, sent_at, delivered_at, opened_at, clicked_at,
	failed_at, last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateBatch inserts every row or none.
func (r *ScheduledEmailRepository) CreateBatch(ctx context.Context, emails []*entity.ScheduledEmail) error {
	if len(emails) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scheduled_emails (`+emailColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range emails {
		_, err := stmt.ExecContext(ctx,
			e.ID, e.LeadID, e.CampaignStepID, e.StepNumber, e.TemplateID, e.ScheduledFor, string(e.Status),
			e.Attempts, e.MaxAttempts, nullString(e.MessageID), e.SentAt, e.DeliveredAt, e.OpenedAt, e.ClickedAt,
			e.FailedAt, nullString(e.LastError), e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert scheduled email step %d: %w", e.StepNumber, err)
		}
	}

	return tx.Commit()
}

func (r *ScheduledEmailRepository) FindByID(ctx context.Context, id string) (*entity.ScheduledEmail, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM scheduled_emails WHERE id = $1`, id))
}

func (r *ScheduledEmailRepository) FindByMessageID(ctx context.Context, messageID string) (*entity.ScheduledEmail, error) {
	if messageID == "" {
		return nil, entity.ErrEmailNotFound
	}
	return r.scanOne(r.DB.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM scheduled_emails WHERE message_id = $1`, messageID))
}

func (r *ScheduledEmailRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.ScheduledEmail, error) {
	query := `
		SELECT ` + emailColumns + `
		FROM scheduled_emails
		WHERE status = 'pending' AND scheduled_for <= $1 AND attempts < max_attempts
		ORDER BY scheduled_for
		LIMIT $2
	`

	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*entity.ScheduledEmail
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, e)
	}
	return due, rows.Err()
}

// Claim moves a pending row to sending. Only one concurrent caller can win.
func (r *ScheduledEmailRepository) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE scheduled_emails
		SET status = 'sending', attempts = attempts + 1, updated_at = $2
		WHERE id = $1 AND status = 'pending' AND attempts < max_attempts
	`
	return r.execAffected(ctx, query, id, at)
}

func (r *ScheduledEmailRepository) MarkSent(ctx context.Context, id, messageID string, at time.Time) error {
	query := `
		UPDATE scheduled_emails
		SET status = 'sent', message_id = $2, sent_at = $3, last_error = NULL, updated_at = $3
		WHERE id = $1 AND status = 'sending'
	`
	_, err := r.DB.ExecContext(ctx, query, id, messageID, at)
	return err
}

func (r *ScheduledEmailRepository) RecordFailure(ctx context.Context, id, reason string, at time.Time) (entity.EmailStatus, error) {
	query := `
		UPDATE scheduled_emails
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
		    failed_at = CASE WHEN attempts >= max_attempts THEN $3 ELSE failed_at END,
		    last_error = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'sending'
		RETURNING status
	`

	var status string
	err := r.DB.QueryRowContext(ctx, query, id, reason, at).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		// someone else already moved the row on; report where it is now
		err = r.DB.QueryRowContext(ctx, `SELECT status FROM scheduled_emails WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return "", entity.ErrEmailNotFound
		}
	}
	if err != nil {
		return "", err
	}
	return entity.EmailStatus(status), nil
}

func (r *ScheduledEmailRepository) Cancel(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE scheduled_emails
		SET status = 'failed', last_error = $2, failed_at = $3, updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'sending')
	`
	return r.execAffected(ctx, query, id, reason, at)
}

func (r *ScheduledEmailRepository) CancelPendingForLead(ctx context.Context, leadID, reason string, at time.Time) (int64, error) {
	query := `
		UPDATE scheduled_emails
		SET status = 'failed', last_error = $2, failed_at = $3, updated_at = $3
		WHERE lead_id = $1 AND status = 'pending'
	`
	res, err := r.DB.ExecContext(ctx, query, leadID, reason, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AdvanceStatus applies an engagement or delivery-failure transition when the
// row is in one of the allowed source states. Older events never regress it.
func (r *ScheduledEmailRepository) AdvanceStatus(ctx context.Context, id string, to entity.EmailStatus, at time.Time) (bool, error) {
	from := entity.AdvanceSources(to)
	if len(from) == 0 {
		return false, nil
	}

	var stampColumn string
	switch to {
	case entity.EmailStatusDelivered:
		stampColumn = "delivered_at"
	case entity.EmailStatusOpened:
		stampColumn = "opened_at"
	case entity.EmailStatusClicked:
		stampColumn = "clicked_at"
	default:
		stampColumn = "failed_at"
	}

	query := `
		UPDATE scheduled_emails
		SET status = $2, ` + stampColumn + ` = $3, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`
	return r.execAffected(ctx, query, id, string(to), at, emailStatusStrings(from))
}

// ReleaseStale hands rows stuck in sending since before olderThan back to the
// retry path, or fails them once attempts are spent.
func (r *ScheduledEmailRepository) ReleaseStale(ctx context.Context, olderThan, at time.Time) (int64, error) {
	query := `
		UPDATE scheduled_emails
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
		    failed_at = CASE WHEN attempts >= max_attempts THEN $2 ELSE failed_at END,
		    last_error = $3,
		    updated_at = $2
		WHERE status = 'sending' AND updated_at < $1
	`
	res, err := r.DB.ExecContext(ctx, query, olderThan, at, staleReleaseReason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ScheduledEmailRepository) execAffected(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ScheduledEmailRepository) scanOne(row *sql.Row) (*entity.ScheduledEmail, error) {
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrEmailNotFound
	}
	return e, err
}

func scanEmail(row rowScanner) (*entity.ScheduledEmail, error) {
	var (
		e                             entity.ScheduledEmail
		status                        string
		messageID, lastError          sql.NullString
		sentAt, deliveredAt, openedAt sql.NullTime
		clickedAt, failedAt           sql.NullTime
	)

	err := row.Scan(
		&e.ID, &e.LeadID, &e.CampaignStepID, &e.StepNumber, &e.TemplateID, &e.ScheduledFor, &status,
		&e.Attempts, &e.MaxAttempts, &messageID, &sentAt, &deliveredAt, &openedAt, &clickedAt,
		&failedAt, &lastError, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = entity.EmailStatus(status)
	e.MessageID = messageID.String
	e.LastError = lastError.String
	e.SentAt = timePtr(sentAt)
	e.DeliveredAt = timePtr(deliveredAt)
	e.OpenedAt = timePtr(openedAt)
	e.ClickedAt = timePtr(clickedAt)
	e.FailedAt = timePtr(failedAt)

	return &e, nil
}

func emailStatusStrings(in []entity.EmailStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
