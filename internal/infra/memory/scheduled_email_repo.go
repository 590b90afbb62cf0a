package memory

import (
	"context"
	"sort"
	"time"

	"github.com/xavierca1/leaddrip/internal/entity"
)

type ScheduledEmailRepo struct {
	s *Store
}

func (r *ScheduledEmailRepo) CreateBatch(_ context.Context, emails []*entity.ScheduledEmail) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range emails {
		cp := *e
		r.s.emails[e.ID] = &cp
		r.s.order = append(r.s.order, e.ID)
	}
	r.s.writes++
	return nil
}

func (r *ScheduledEmailRepo) FindByID(_ context.Context, id string) (*entity.ScheduledEmail, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.emails[id]
	if !ok {
		return nil, entity.ErrEmailNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *ScheduledEmailRepo) FindByMessageID(_ context.Context, messageID string) (*entity.ScheduledEmail, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if messageID == "" {
		return nil, entity.ErrEmailNotFound
	}
	for _, e := range r.s.emails {
		if e.MessageID == messageID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, entity.ErrEmailNotFound
}

func (r *ScheduledEmailRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*entity.ScheduledEmail, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var due []*entity.ScheduledEmail
	for _, id := range r.s.order {
		e, ok := r.s.emails[id]
		if ok && e.Due(now) {
			cp := *e
			due = append(due, &cp)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *ScheduledEmailRepo) Claim(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok || e.Status != entity.EmailStatusPending || e.Attempts >= e.MaxAttempts {
		return false, nil
	}
	e.Status = entity.EmailStatusSending
	e.Attempts++
	e.UpdatedAt = at
	r.s.writes++
	return true, nil
}

func (r *ScheduledEmailRepo) MarkSent(_ context.Context, id, messageID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok || e.Status != entity.EmailStatusSending {
		return nil
	}
	e.Status = entity.EmailStatusSent
	e.MessageID = messageID
	t := at
	e.SentAt = &t
	e.LastError = ""
	e.UpdatedAt = at
	r.s.writes++
	return nil
}

func (r *ScheduledEmailRepo) RecordFailure(_ context.Context, id, reason string, at time.Time) (entity.EmailStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok {
		return "", entity.ErrEmailNotFound
	}
	if e.Status != entity.EmailStatusSending {
		return e.Status, nil
	}
	e.Status = e.FailureStatus()
	if e.Status == entity.EmailStatusFailed {
		t := at
		e.FailedAt = &t
	}
	e.LastError = reason
	e.UpdatedAt = at
	r.s.writes++
	return e.Status, nil
}

func (r *ScheduledEmailRepo) Cancel(_ context.Context, id, reason string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok || (e.Status != entity.EmailStatusPending && e.Status != entity.EmailStatusSending) {
		return false, nil
	}
	fail(e, reason, at)
	r.s.writes++
	return true, nil
}

func (r *ScheduledEmailRepo) CancelPendingForLead(_ context.Context, leadID, reason string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.emails {
		if e.LeadID == leadID && e.Status == entity.EmailStatusPending {
			fail(e, reason, at)
			n++
		}
	}
	if n > 0 {
		r.s.writes++
	}
	return n, nil
}

func (r *ScheduledEmailRepo) AdvanceStatus(_ context.Context, id string, to entity.EmailStatus, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok || !e.Status.CanAdvanceTo(to) {
		return false, nil
	}
	e.Status = to
	t := at
	switch to {
	case entity.EmailStatusDelivered:
		e.DeliveredAt = &t
	case entity.EmailStatusOpened:
		e.OpenedAt = &t
	case entity.EmailStatusClicked:
		e.ClickedAt = &t
	case entity.EmailStatusBounced, entity.EmailStatusComplained:
		e.FailedAt = &t
	}
	e.UpdatedAt = at
	r.s.writes++
	return true, nil
}

func (r *ScheduledEmailRepo) ReleaseStale(_ context.Context, olderThan, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.emails {
		if e.Status != entity.EmailStatusSending || !e.UpdatedAt.Before(olderThan) {
			continue
		}
		e.Status = e.FailureStatus()
		e.LastError = "released after stale send claim"
		if e.Status == entity.EmailStatusFailed {
			t := at
			e.FailedAt = &t
		}
		e.UpdatedAt = at
		n++
	}
	if n > 0 {
		r.s.writes++
	}
	return n, nil
}

func fail(e *entity.ScheduledEmail, reason string, at time.Time) {
	e.Status = entity.EmailStatusFailed
	e.LastError = reason
	t := at
	e.FailedAt = &t
	e.UpdatedAt = at
}
