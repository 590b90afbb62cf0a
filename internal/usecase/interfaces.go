package usecase

import (
	"context"

	"github.com/xavierca1/leaddrip/internal/entity"
	"github.com/xavierca1/leaddrip/internal/infra/queue"
)

// TemplateData is everything a template sees when rendering.
type TemplateData struct {
	Lead           *entity.Lead
	Market         *entity.MarketSnapshot
	StepNumber     int
	UnsubscribeURL string
}

type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

type TemplateRenderer interface {
	Render(ctx context.Context, templateID string, data TemplateData) (*RenderedEmail, error)
}

// OutboundEmail is one message handed to the mailer.
type OutboundEmail struct {
	To             string
	Subject        string
	HTML           string
	Text           string
	UnsubscribeURL string
	Tags           map[string]string
}

// Mailer sends an email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, email OutboundEmail) (string, error)
}

type MarketDataProvider interface {
	Lookup(ctx context.Context, zipcode string) (*entity.MarketSnapshot, error)
}

type QueueProducerInterface interface {
	PublishLeadCaptured(ctx context.Context, payload queue.LeadCapturedPayload) error
}

type UnsubscribeLinkBuilder interface {
	UnsubscribeURL(leadID string) (string, error)
}

// TokenVerifier resolves an unsubscribe token to a lead id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}
