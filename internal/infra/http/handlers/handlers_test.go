package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xavierca1/leaddrip/internal/entity"
	"github.com/xavierca1/leaddrip/internal/infra/http/handlers"
	"github.com/xavierca1/leaddrip/internal/infra/sns"
	"github.com/xavierca1/leaddrip/internal/infra/worker"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

type MockCaptureLead struct {
	mock.Mock
}

func (m *MockCaptureLead) Execute(ctx context.Context, input usecase.CaptureLeadInput) (*usecase.CaptureLeadOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.CaptureLeadOutput), args.Error(1)
}

func postLead(h *handlers.LeadHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/leads", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	h.CaptureLead(rec, req)
	return rec
}

func TestLeadHandler_Created(t *testing.T) {
	uc := new(MockCaptureLead)
	uc.On("Execute", mock.Anything, mock.MatchedBy(func(in usecase.CaptureLeadInput) bool {
		return in.Email == "jane@example.com" && in.Intent == "buy"
	})).Return(&usecase.CaptureLeadOutput{
		Success: true, LeadID: "lead-1", Campaign: "buyer_drip", EmailsScheduled: 5, WelcomeEmailSent: true,
	}, nil)

	rec := postLead(handlers.NewLeadHandler(uc, nil), `{"email":"jane@example.com","name":"Jane","intent":"buy"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var out usecase.CaptureLeadOutput
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "lead-1", out.LeadID)
	assert.Equal(t, 5, out.EmailsScheduled)
	uc.AssertExpectations(t)
}

func TestLeadHandler_Duplicate(t *testing.T) {
	uc := new(MockCaptureLead)
	uc.On("Execute", mock.Anything, mock.Anything).Return(&usecase.CaptureLeadOutput{
		Success: false, Duplicate: true, Error: "already registered",
	}, nil)

	rec := postLead(handlers.NewLeadHandler(uc, nil), `{"email":"jane@example.com","name":"Jane"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":true`)
}

func TestLeadHandler_ValidationError(t *testing.T) {
	uc := new(MockCaptureLead)
	uc.On("Execute", mock.Anything, mock.Anything).Return(nil, &usecase.DomainError{
		Code:    usecase.CodeValidation,
		Message: "email: is required",
		Fields:  []usecase.ValidationError{{Field: "email", Message: "is required"}},
	})

	rec := postLead(handlers.NewLeadHandler(uc, nil), `{"name":"Jane"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Success bool                      `json:"success"`
		Code    string                    `json:"code"`
		Fields  []usecase.ValidationError `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, usecase.CodeValidation, body.Code)
	assert.Equal(t, "email", body.Fields[0].Field)
}

func TestLeadHandler_TechnicalError(t *testing.T) {
	uc := new(MockCaptureLead)
	uc.On("Execute", mock.Anything, mock.Anything).Return(nil, &usecase.TechnicalError{
		Code: usecase.CodeDatabase, Message: "failed", Err: errors.New("conn reset"),
	})

	rec := postLead(handlers.NewLeadHandler(uc, nil), `{"email":"jane@example.com","name":"Jane"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "conn reset")
}

func TestLeadHandler_BadJSONAndRateLimit(t *testing.T) {
	uc := new(MockCaptureLead)
	h := handlers.NewLeadHandler(uc, handlers.NewRateLimiter(1, time.Minute))

	assert.Equal(t, http.StatusBadRequest, postLead(h, `{not json`).Code)
	assert.Equal(t, http.StatusTooManyRequests, postLead(h, `{}`).Code)
	uc.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := handlers.NewRateLimiter(2, 50*time.Millisecond)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
}

type fakeEvents struct {
	got []entity.EmailEvent
	err error
}

func (f *fakeEvents) Execute(_ context.Context, ev entity.EmailEvent) (*usecase.ProcessEmailEventOutput, error) {
	f.got = append(f.got, ev)
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.ProcessEmailEventOutput{Matched: true}, nil
}

type fakeVerifier struct {
	err error
}

func (f fakeVerifier) Verify(context.Context, *sns.Message) error { return f.err }

func snsBody(t *testing.T, m sns.Message) string {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return string(b)
}

func postWebhook(h *handlers.WebhookHandler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/ses", strings.NewReader(body)))
	return rec
}

const topic = "arn:aws:sns:us-east-1:123456789012:ses-events"

func TestWebhookHandler_Notification(t *testing.T) {
	events := &fakeEvents{}
	h := handlers.NewWebhookHandler(events, fakeVerifier{}, topic, true, http.DefaultClient)

	rec := postWebhook(h, snsBody(t, sns.Message{
		Type:     sns.TypeNotification,
		TopicArn: topic,
		Message:  `{"eventType":"Bounce","mail":{"messageId":"m-1"},"bounce":{"bounceType":"Permanent"}}`,
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, events.got, 1)
	assert.Equal(t, "m-1", events.got[0].MessageID)
	assert.True(t, events.got[0].IsPermanentBounce())
}

func TestWebhookHandler_SubscriptionConfirmation(t *testing.T) {
	h := handlers.NewWebhookHandler(&fakeEvents{}, fakeVerifier{}, topic, true, http.DefaultClient)
	var confirmed string
	h.Confirm = func(_ context.Context, m *sns.Message) error {
		confirmed = m.SubscribeURL
		return nil
	}

	rec := postWebhook(h, snsBody(t, sns.Message{
		Type:         sns.TypeSubscriptionConfirmation,
		TopicArn:     topic,
		SubscribeURL: "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription",
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription", confirmed)
}

func TestWebhookHandler_Rejections(t *testing.T) {
	events := &fakeEvents{}

	t.Run("bad signature", func(t *testing.T) {
		h := handlers.NewWebhookHandler(events, fakeVerifier{err: sns.ErrBadSignature}, topic, true, http.DefaultClient)
		rec := postWebhook(h, snsBody(t, sns.Message{Type: sns.TypeNotification, TopicArn: topic}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("foreign topic", func(t *testing.T) {
		h := handlers.NewWebhookHandler(events, fakeVerifier{}, topic, true, http.DefaultClient)
		rec := postWebhook(h, snsBody(t, sns.Message{Type: sns.TypeNotification, TopicArn: "arn:aws:sns:us-east-1:1:other"}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("raw event while verifying", func(t *testing.T) {
		h := handlers.NewWebhookHandler(events, fakeVerifier{}, topic, true, http.DefaultClient)
		rec := postWebhook(h, `{"eventType":"Open","mail":{"messageId":"m-1"}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Empty(t, events.got)
}

func TestWebhookHandler_AcknowledgesUnusableEvents(t *testing.T) {
	events := &fakeEvents{}
	h := handlers.NewWebhookHandler(events, fakeVerifier{}, "", false, http.DefaultClient)

	rec := postWebhook(h, snsBody(t, sns.Message{Type: sns.TypeNotification, Message: `{"eventType":"Open","mail":{}}`}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postWebhook(h, `{"eventType":"Open","mail":{"messageId":"m-9"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, events.got, 1)
	assert.Equal(t, "m-9", events.got[0].MessageID)
}

func TestWebhookHandler_StorageFailureAsksForRedelivery(t *testing.T) {
	events := &fakeEvents{err: &usecase.TechnicalError{Code: usecase.CodeDatabase, Message: "down"}}
	h := handlers.NewWebhookHandler(events, fakeVerifier{}, "", false, http.DefaultClient)

	rec := postWebhook(h, `{"eventType":"Delivery","mail":{"messageId":"m-1"}}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeUnsubscriber struct {
	out   *usecase.UnsubscribeOutput
	err   error
	input usecase.UnsubscribeInput
}

func (f *fakeUnsubscriber) Execute(_ context.Context, in usecase.UnsubscribeInput) (*usecase.UnsubscribeOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestUnsubscribeHandler(t *testing.T) {
	t.Run("link click", func(t *testing.T) {
		uc := &fakeUnsubscriber{out: &usecase.UnsubscribeOutput{Result: usecase.UnsubscribeResultDone, Message: "You have been unsubscribed."}}
		rec := httptest.NewRecorder()
		handlers.NewUnsubscribeHandler(uc).Handle(rec, httptest.NewRequest(http.MethodGet, "/unsubscribe?token=abc.def", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "abc.def", uc.input.Token)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "You have been unsubscribed")
	})

	t.Run("one click post", func(t *testing.T) {
		uc := &fakeUnsubscriber{out: &usecase.UnsubscribeOutput{Result: usecase.UnsubscribeResultAlready, Message: "already"}}
		req := httptest.NewRequest(http.MethodPost, "/unsubscribe?token=xyz", strings.NewReader(url.Values{"List-Unsubscribe": {"One-Click"}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		handlers.NewUnsubscribeHandler(uc).Handle(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "xyz", uc.input.Token)
		assert.Contains(t, rec.Body.String(), "already unsubscribed")
	})

	t.Run("invalid token is still friendly", func(t *testing.T) {
		uc := &fakeUnsubscriber{err: &usecase.DomainError{Code: usecase.CodeInvalidToken, Message: "bad"}}
		rec := httptest.NewRecorder()
		handlers.NewUnsubscribeHandler(uc).Handle(rec, httptest.NewRequest(http.MethodGet, "/unsubscribe?token=bad", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "no longer valid")
	})
}

type fakeRunner struct {
	out *usecase.DispatchOutput
	err error
}

func (f fakeRunner) RunOnce(context.Context) (*usecase.DispatchOutput, error) { return f.out, f.err }

func TestDispatchHandler(t *testing.T) {
	call := func(h *handlers.DispatchHandler, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/dispatch", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.Handle(rec, req)
		return rec
	}

	ok := handlers.NewDispatchHandler(fakeRunner{out: &usecase.DispatchOutput{Processed: 3, Sent: 3, Errors: []string{}}}, "s3cret")
	rec := call(ok, "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sent":3`)

	assert.Equal(t, http.StatusUnauthorized, call(ok, "Bearer nope").Code)
	assert.Equal(t, http.StatusUnauthorized, call(ok, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(handlers.NewDispatchHandler(fakeRunner{}, ""), "Bearer ").Code)

	busy := handlers.NewDispatchHandler(fakeRunner{err: worker.ErrRunInProgress}, "s3cret")
	assert.Equal(t, http.StatusConflict, call(busy, "Bearer s3cret").Code)
}

func TestHealthHandler_NothingConfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	handlers.NewHealthHandler(nil, nil, "").Handle(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var out handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, "not configured", out.Dependencies["database"])
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fakeBroker struct{ closed bool }

func (f fakeBroker) IsClosed() bool { return f.closed }

func TestHealthHandler_Degraded(t *testing.T) {
	h := handlers.NewHealthHandler(fakePinger{err: errors.New("connection refused")}, fakeBroker{}, "reports@example.com")
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var out handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "degraded", out.Status)
	assert.Equal(t, "unhealthy: connection refused", out.Dependencies["database"])
	assert.Equal(t, "healthy", out.Dependencies["rabbitmq"])
	assert.Equal(t, "configured", out.Dependencies["ses"])
}
