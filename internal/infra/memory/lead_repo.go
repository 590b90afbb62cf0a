package memory

import (
	"context"
	"strings"
	"time"

	"github.com/xavierca1/leaddrip/internal/entity"
)

type LeadRepo struct {
	s *Store
}

func (r *LeadRepo) FindActiveByEmail(_ context.Context, email string) (*entity.Lead, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, l := range r.s.leads {
		if l.Status == entity.LeadStatusActive && strings.EqualFold(l.Email, email) {
			cp := *l
			return &cp, nil
		}
	}
	return nil, entity.ErrLeadNotFound
}

func (r *LeadRepo) FindByID(_ context.Context, id string) (*entity.Lead, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.leads[id]
	if !ok {
		return nil, entity.ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *LeadRepo) Create(_ context.Context, lead *entity.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.leads {
		if l.Status == entity.LeadStatusActive && strings.EqualFold(l.Email, lead.Email) {
			return entity.ErrDuplicateLead
		}
	}
	cp := *lead
	r.s.leads[lead.ID] = &cp
	r.s.writes++
	return nil
}

func (r *LeadRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.leads, id)
	for eid, e := range r.s.emails {
		if e.LeadID == id {
			delete(r.s.emails, eid)
		}
	}
	r.s.writes++
	return nil
}

func (r *LeadRepo) AdvanceStep(_ context.Context, id string, step int, nextEmailAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[id]
	if !ok || l.Status != entity.LeadStatusActive {
		return nil
	}
	if step > l.CurrentStep {
		l.CurrentStep = step
	}
	l.NextEmailAt = copyTime(nextEmailAt)
	l.UpdatedAt = time.Now()
	r.s.writes++
	return nil
}

func (r *LeadRepo) UpdateStatus(_ context.Context, id string, to entity.LeadStatus, from []entity.LeadStatus, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[id]
	if !ok || !containsLeadStatus(from, l.Status) {
		return false, nil
	}
	l.Status = to
	l.NextEmailAt = nil
	if to == entity.LeadStatusUnsubscribed {
		t := at
		l.UnsubscribedAt = &t
	}
	l.UpdatedAt = at
	r.s.writes++
	return true, nil
}

func containsLeadStatus(list []entity.LeadStatus, s entity.LeadStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
