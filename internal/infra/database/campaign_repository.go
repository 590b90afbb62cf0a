package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/xavierca1/leaddrip/internal/entity"
)

type CampaignRepository struct {
	DB *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{DB: db}
}

func (r *CampaignRepository) FindByIntent(ctx context.Context, intent string) (*entity.Campaign, error) {
	query := `SELECT id, name, intent, active FROM campaigns WHERE intent = $1 AND active LIMIT 1`

	var c entity.Campaign
	err := r.DB.QueryRowContext(ctx, query, intent).Scan(&c.ID, &c.Name, &c.Intent, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListSteps(ctx context.Context, campaignID string) ([]entity.CampaignStep, error) {
	query := `
		SELECT id, campaign_id, step_number, template_id, delay_days, send_hour
		FROM campaign_steps
		WHERE campaign_id = $1
		ORDER BY step_number
	`

	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []entity.CampaignStep
	for rows.Next() {
		var s entity.CampaignStep
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.StepNumber, &s.TemplateID, &s.DelayDays, &s.SendHour); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
