package memory

import (
	"context"

	"github.com/xavierca1/leaddrip/internal/entity"
)

type CampaignRepo struct {
	s *Store
}

func (r *CampaignRepo) FindByIntent(_ context.Context, intent string) (*entity.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.campaigns {
		if c.Active && c.Intent == intent {
			cp := *c
			return &cp, nil
		}
	}
	return nil, entity.ErrCampaignNotFound
}

func (r *CampaignRepo) ListSteps(_ context.Context, campaignID string) ([]entity.CampaignStep, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	steps := append([]entity.CampaignStep(nil), r.s.steps[campaignID]...)
	entity.SortSteps(steps)
	return steps, nil
}
