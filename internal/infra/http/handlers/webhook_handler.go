package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/entity"
	"github.com/xavierca1/leaddrip/internal/infra/http/middleware"
	"github.com/xavierca1/leaddrip/internal/infra/sns"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

const maxWebhookBody = 256 << 10

type EmailEventProcessor interface {
	Execute(ctx context.Context, event entity.EmailEvent) (*usecase.ProcessEmailEventOutput, error)
}

type SignatureVerifier interface {
	Verify(ctx context.Context, m *sns.Message) error
}

// WebhookHandler receives SES delivery events through an SNS HTTPS
// subscription.
type WebhookHandler struct {
	Events          EmailEventProcessor
	Verifier        SignatureVerifier
	TopicARN        string
	VerifySignature bool
	Confirm         func(ctx context.Context, m *sns.Message) error
}

func NewWebhookHandler(events EmailEventProcessor, verifier SignatureVerifier, topicARN string, verify bool, client *http.Client) *WebhookHandler {
	return &WebhookHandler{
		Events:          events,
		Verifier:        verifier,
		TopicARN:        topicARN,
		VerifySignature: verify,
		Confirm: func(ctx context.Context, m *sns.Message) error {
			return sns.ConfirmSubscription(ctx, client, m)
		},
	}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_BODY", "unreadable body")
		return
	}

	var env sns.Message
	if err := json.Unmarshal(body, &env); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "Bad JSON")
		return
	}

	// raw message delivery carries the SES event without an envelope and
	// cannot be verified
	if env.Type == "" {
		if h.VerifySignature {
			writeErrorResponse(w, http.StatusBadRequest, "NOT_SNS", "expected an SNS envelope")
			return
		}
		h.process(w, r, body)
		return
	}

	if err := env.CheckTopic(h.TopicARN); err != nil {
		logger.Warn().Str("topic_arn", env.TopicArn).Msg("rejected message from unexpected topic")
		writeErrorResponse(w, http.StatusForbidden, "TOPIC_NOT_ALLOWED", err.Error())
		return
	}

	if h.VerifySignature {
		if err := h.Verifier.Verify(ctx, &env); err != nil {
			logger.Warn().Err(err).Str("message_id", env.MessageID).Msg("sns signature rejected")
			writeErrorResponse(w, http.StatusForbidden, "INVALID_SIGNATURE", "signature verification failed")
			return
		}
	}

	switch env.Type {
	case sns.TypeSubscriptionConfirmation:
		if err := h.Confirm(ctx, &env); err != nil {
			logger.Error().Err(err).Str("topic_arn", env.TopicArn).Msg("sns subscription confirmation failed")
			writeErrorResponse(w, http.StatusBadGateway, "CONFIRMATION_FAILED", "could not confirm subscription")
			return
		}
		logger.Info().Str("topic_arn", env.TopicArn).Msg("sns subscription confirmed")
		w.WriteHeader(http.StatusOK)
	case sns.TypeUnsubscribeConfirmation:
		logger.Warn().Str("topic_arn", env.TopicArn).Msg("sns subscription removed")
		w.WriteHeader(http.StatusOK)
	case sns.TypeNotification:
		h.process(w, r, []byte(env.Message))
	default:
		logger.Warn().Str("type", env.Type).Msg("unknown sns message type, acknowledged")
		w.WriteHeader(http.StatusOK)
	}
}

// process always acknowledges events it cannot use. Only storage failures
// return 5xx so SNS redelivers.
func (h *WebhookHandler) process(w http.ResponseWriter, r *http.Request, raw []byte) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	event, err := sns.ParseSESEvent(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("unparseable ses event, dropped")
		w.WriteHeader(http.StatusOK)
		return
	}

	out, err := h.Events.Execute(ctx, event)
	if err != nil {
		var te *usecase.TechnicalError
		if errors.As(err, &te) {
			logger.Error().Err(err).Str("message_id", event.MessageID).Msg("failed to apply email event")
			writeErrorResponse(w, http.StatusInternalServerError, te.Code, "failed to apply event")
			return
		}
		logger.Warn().Err(err).Msg("email event rejected")
		w.WriteHeader(http.StatusOK)
		return
	}

	middleware.RecordEmailEvent(string(event.EventType), out.Matched)
	writeJSON(w, http.StatusOK, out)
}
