package memory

import (
	"context"

	"github.com/xavierca1/leaddrip/internal/entity"
)

type EmailEventRepo struct {
	s *Store
}

func (r *EmailEventRepo) Create(_ context.Context, event *entity.EmailEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *event
	r.s.events = append(r.s.events, &cp)
	r.s.writes++
	return nil
}
