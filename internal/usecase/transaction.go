package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Transaction runs a sequence of writes and, when one fails, runs the
// compensations registered for the writes that already succeeded in reverse
// order.
type Transaction struct {
	steps []txStep
}

type txStep struct {
	name       string
	fn         func(context.Context) error
	compName   string
	compensate func(context.Context) error
}

func NewTransaction() *Transaction {
	return &Transaction{}
}

func (t *Transaction) AddOperation(name string, fn func(context.Context) error) {
	t.steps = append(t.steps, txStep{name: name, fn: fn})
}

// AddCompensation attaches an undo function to the most recently added
// operation.
func (t *Transaction) AddCompensation(name string, fn func(context.Context) error) {
	if len(t.steps) == 0 {
		return
	}
	last := &t.steps[len(t.steps)-1]
	last.compName = name
	last.compensate = fn
}

func (t *Transaction) Execute(ctx context.Context) error {
	for i, step := range t.steps {
		if err := step.fn(ctx); err != nil {
			t.rollback(ctx, i)
			return fmt.Errorf("operation '%s' failed: %w (rolled back %d operations)", step.name, err, i)
		}
	}
	return nil
}

func (t *Transaction) rollback(ctx context.Context, failedAt int) {
	// compensations must run even if the request context is already gone
	ctx = context.WithoutCancel(ctx)

	for i := failedAt - 1; i >= 0; i-- {
		step := t.steps[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			log.Ctx(ctx).Error().Err(err).
				Str("compensation", step.compName).
				Msg("compensation failed, data may be inconsistent")
		}
	}
}
