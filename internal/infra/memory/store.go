// Package memory holds in-process repositories backed by maps for use case
// tests. They follow the same conditional-update rules as the Postgres
// repositories.
package memory

import (
	"sync"

	"github.com/xavierca1/leaddrip/internal/entity"
)

// Store is the shared state behind the memory repositories, so cascades
// across leads and scheduled emails stay consistent.
type Store struct {
	mu        sync.RWMutex
	leads     map[string]*entity.Lead
	campaigns map[string]*entity.Campaign
	steps     map[string][]entity.CampaignStep
	emails    map[string]*entity.ScheduledEmail
	order     []string
	events    []*entity.EmailEvent
	writes    int
}

func NewStore() *Store {
	return &Store{
		leads:     make(map[string]*entity.Lead),
		campaigns: make(map[string]*entity.Campaign),
		steps:     make(map[string][]entity.CampaignStep),
		emails:    make(map[string]*entity.ScheduledEmail),
	}
}

// Writes counts successful mutations across every repository.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *Store) Leads() *LeadRepo {
	return &LeadRepo{s: s}
}

func (s *Store) Campaigns() *CampaignRepo {
	return &CampaignRepo{s: s}
}

func (s *Store) Emails() *ScheduledEmailRepo {
	return &ScheduledEmailRepo{s: s}
}

func (s *Store) Events() *EmailEventRepo {
	return &EmailEventRepo{s: s}
}

// SeedCampaign registers a campaign and its steps.
func (s *Store) SeedCampaign(c entity.Campaign, steps ...entity.CampaignStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	s.campaigns[c.ID] = &cp
	for i := range steps {
		steps[i].CampaignID = c.ID
	}
	s.steps[c.ID] = append([]entity.CampaignStep(nil), steps...)
}

// EmailsForLead returns copies of the lead's rows ordered by step number.
func (s *Store) EmailsForLead(leadID string) []entity.ScheduledEmail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.ScheduledEmail
	for _, id := range s.order {
		if e, ok := s.emails[id]; ok && e.LeadID == leadID {
			out = append(out, *e)
		}
	}
	return out
}

func (s *Store) EventsFor(emailID string) []entity.EmailEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.EmailEvent
	for _, e := range s.events {
		if e.ScheduledEmailID == emailID {
			out = append(out, *e)
		}
	}
	return out
}
