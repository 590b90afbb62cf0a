package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xavierca1/leaddrip/internal/entity"
)

const uniqueViolation = "23505"

type LeadRepository struct {
	DB *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{DB: db}
}

const leadColumns = `
	id, email, name, phone, address, town, zipcode, county,
	intent, timeline, property_type, value_range, pre_approval, contact_preference, decision_factor,
	score, server_score, client_score, temperature, priority,
	campaign_id, current_step, next_email_at, status, unsubscribed_at, created_at, updated_at`

func (r *LeadRepository) Create(ctx context.Context, l *entity.Lead) error {
	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`

	_, err := r.DB.ExecContext(ctx, query,
		l.ID, l.Email, l.Name,
		nullString(l.Phone), nullString(l.Address), nullString(l.Town), nullString(l.Zipcode), nullString(l.County),
		nullString(l.Intent), nullString(l.Timeline), nullString(l.PropertyType), nullString(l.ValueRange),
		nullString(l.PreApproval), nullString(l.ContactPreference), nullString(l.DecisionFactor),
		l.Score, l.ServerScore, l.ClientScore, string(l.Temperature), string(l.Priority),
		l.CampaignID, l.CurrentStep, l.NextEmailAt, string(l.Status), l.UnsubscribedAt, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return entity.ErrDuplicateLead
		}
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (r *LeadRepository) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	return err
}

func (r *LeadRepository) FindActiveByEmail(ctx context.Context, email string) (*entity.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE lower(email) = lower($1) AND status = 'active'`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, email))
}

func (r *LeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, id))
}

func (r *LeadRepository) AdvanceStep(ctx context.Context, id string, step int, nextEmailAt *time.Time) error {
	query := `
		UPDATE leads
		SET current_step = GREATEST(current_step, $2),
		    next_email_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	_, err := r.DB.ExecContext(ctx, query, id, step, nextEmailAt)
	return err
}

func (r *LeadRepository) UpdateStatus(ctx context.Context, id string, to entity.LeadStatus, from []entity.LeadStatus, at time.Time) (bool, error) {
	query := `
		UPDATE leads
		SET status = $2,
		    next_email_at = NULL,
		    unsubscribed_at = CASE WHEN $2 = 'unsubscribed' THEN $4 ELSE unsubscribed_at END,
		    updated_at = $4
		WHERE id = $1 AND status = ANY($3)
	`
	res, err := r.DB.ExecContext(ctx, query, id, string(to), leadStatusStrings(from), at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *LeadRepository) scanOne(row *sql.Row) (*entity.Lead, error) {
	var (
		l                                    entity.Lead
		phone, address, town, zipcode        sql.NullString
		county, intent, timeline             sql.NullString
		propertyType, valueRange             sql.NullString
		preApproval, contactPref, decisionBy sql.NullString
		clientScore                          sql.NullInt64
		temperature, priority, status        string
		nextEmailAt, unsubscribedAt          sql.NullTime
	)

	err := row.Scan(
		&l.ID, &l.Email, &l.Name, &phone, &address, &town, &zipcode, &county,
		&intent, &timeline, &propertyType, &valueRange, &preApproval, &contactPref, &decisionBy,
		&l.Score, &l.ServerScore, &clientScore, &temperature, &priority,
		&l.CampaignID, &l.CurrentStep, &nextEmailAt, &status, &unsubscribedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrLeadNotFound
	}
	if err != nil {
		return nil, err
	}

	l.Phone, l.Address, l.Town, l.Zipcode, l.County = phone.String, address.String, town.String, zipcode.String, county.String
	l.Qualification = entity.Qualification{
		Intent:            intent.String,
		Timeline:          timeline.String,
		PropertyType:      propertyType.String,
		ValueRange:        valueRange.String,
		PreApproval:       preApproval.String,
		ContactPreference: contactPref.String,
		DecisionFactor:    decisionBy.String,
	}
	if clientScore.Valid {
		v := int(clientScore.Int64)
		l.ClientScore = &v
	}
	l.Temperature = entity.Temperature(temperature)
	l.Priority = entity.Priority(priority)
	l.Status = entity.LeadStatus(status)
	l.NextEmailAt = timePtr(nextEmailAt)
	l.UnsubscribedAt = timePtr(unsubscribedAt)

	return &l, nil
}

func leadStatusStrings(in []entity.LeadStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
