package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xavierca1/leaddrip/internal/entity"
	"github.com/xavierca1/leaddrip/internal/infra/memory"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

// sentLead seeds a lead whose step 2 email went out as msg-001.
func sentLead(t *testing.T) (*memory.Store, *entity.Lead, *entity.ScheduledEmail) {
	t.Helper()
	store := seededStore()
	lead, row := seedLeadWithRows(store, 1)

	ctx := context.Background()
	claimed, err := store.Emails().Claim(ctx, row.ID, signupTime)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.Emails().MarkSent(ctx, row.ID, "msg-001", signupTime))
	return store, lead, row
}

func newEventUseCase(store *memory.Store) *usecase.ProcessEmailEventUseCase {
	uc := usecase.NewProcessEmailEventUseCase(store.Emails(), store.Events(), store.Leads())
	uc.Now = func() time.Time { return signupTime.Add(time.Hour) }
	return uc
}

func event(t entity.EventType) entity.EmailEvent {
	return entity.EmailEvent{
		MessageID:  "msg-001",
		EventType:  t,
		OccurredAt: signupTime.Add(30 * time.Minute),
	}
}

func TestProcessEvent_EngagementIsMonotonic(t *testing.T) {
	store, _, row := sentLead(t)
	uc := newEventUseCase(store)
	ctx := context.Background()

	for _, et := range []entity.EventType{entity.EventDelivery, entity.EventOpen, entity.EventClick} {
		out, err := uc.Execute(ctx, event(et))
		require.NoError(t, err)
		assert.True(t, out.Matched)
		assert.True(t, out.StatusChanged)
	}

	out, err := uc.Execute(ctx, event(entity.EventOpen))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.False(t, out.StatusChanged)

	got := rowByID(store, row.ID)
	assert.Equal(t, entity.EmailStatusClicked, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.NotNil(t, got.OpenedAt)
	assert.NotNil(t, got.ClickedAt)

	// every event is recorded even when it does not move the row
	assert.Len(t, store.EventsFor(row.ID), 4)
}

func TestProcessEvent_PermanentBounceCascades(t *testing.T) {
	store, lead, row := sentLead(t)
	uc := newEventUseCase(store)

	ev := event(entity.EventBounce)
	ev.BounceType = entity.BounceTypePermanent
	ev.BounceSubType = "NoEmail"

	out, err := uc.Execute(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, entity.EmailStatusBounced, out.Status)
	assert.Equal(t, entity.LeadStatusBounced, out.LeadStatus)
	assert.Equal(t, int64(1), out.Cancelled)

	got, err := store.Leads().FindByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusBounced, got.Status)
	assert.Nil(t, got.NextEmailAt)

	rows := store.EmailsForLead(lead.ID)
	assert.Equal(t, 0, countStatus(rows, entity.EmailStatusPending))
	for _, r := range rows {
		if r.ID != row.ID {
			assert.Equal(t, entity.CancelReasonPermanentBounce, r.LastError)
		}
	}
}

func TestProcessEvent_TransientBounceKeepsLead(t *testing.T) {
	store, lead, row := sentLead(t)
	uc := newEventUseCase(store)

	ev := event(entity.EventBounce)
	ev.BounceType = entity.BounceTypeTransient

	out, err := uc.Execute(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, entity.EmailStatusBounced, rowByID(store, row.ID).Status)
	assert.Empty(t, out.LeadStatus)

	got, _ := store.Leads().FindByID(context.Background(), lead.ID)
	assert.Equal(t, entity.LeadStatusActive, got.Status)
	assert.Equal(t, 1, countStatus(store.EmailsForLead(lead.ID), entity.EmailStatusPending))
}

func TestProcessEvent_ComplaintUnsubscribes(t *testing.T) {
	store, lead, row := sentLead(t)
	uc := newEventUseCase(store)

	_, err := uc.Execute(context.Background(), event(entity.EventOpen))
	require.NoError(t, err)

	ev := event(entity.EventComplaint)
	ev.ComplaintType = "abuse"
	out, err := uc.Execute(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, entity.EmailStatusComplained, rowByID(store, row.ID).Status)
	assert.Equal(t, entity.LeadStatusUnsubscribed, out.LeadStatus)

	got, _ := store.Leads().FindByID(context.Background(), lead.ID)
	assert.Equal(t, entity.LeadStatusUnsubscribed, got.Status)
	assert.NotNil(t, got.UnsubscribedAt)

	rows := store.EmailsForLead(lead.ID)
	assert.Equal(t, 0, countStatus(rows, entity.EmailStatusPending))
}

func TestProcessEvent_ComplaintAfterBounceStillUnsubscribes(t *testing.T) {
	store, lead, _ := sentLead(t)
	uc := newEventUseCase(store)

	bounce := event(entity.EventBounce)
	bounce.BounceType = entity.BounceTypePermanent
	_, err := uc.Execute(context.Background(), bounce)
	require.NoError(t, err)

	_, err = uc.Execute(context.Background(), event(entity.EventComplaint))
	require.NoError(t, err)

	got, _ := store.Leads().FindByID(context.Background(), lead.ID)
	assert.Equal(t, entity.LeadStatusUnsubscribed, got.Status)
}

func TestProcessEvent_UnmatchedMessageIsDropped(t *testing.T) {
	store, _, _ := sentLead(t)
	uc := newEventUseCase(store)
	writes := store.Writes()

	ev := event(entity.EventDelivery)
	ev.MessageID = "someone-elses-message"
	out, err := uc.Execute(context.Background(), ev)

	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.Equal(t, writes, store.Writes())
}

func TestProcessEvent_UnknownTypeIsAcknowledged(t *testing.T) {
	store, _, _ := sentLead(t)
	uc := newEventUseCase(store)
	writes := store.Writes()

	out, err := uc.Execute(context.Background(), event("Subscription"))

	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.Equal(t, writes, store.Writes())
}

func TestProcessEvent_RecordOnlyEvents(t *testing.T) {
	store, _, row := sentLead(t)
	uc := newEventUseCase(store)

	out, err := uc.Execute(context.Background(), event(entity.EventDeliveryDelay))

	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.False(t, out.StatusChanged)
	assert.Equal(t, entity.EmailStatusSent, rowByID(store, row.ID).Status)
	assert.Len(t, store.EventsFor(row.ID), 1)
}
