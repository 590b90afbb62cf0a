package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/entity"
)

// EmailComposer renders a scheduled row for its lead and hands it to the
// mailer. Intake and the dispatcher share it.
type EmailComposer struct {
	Renderer TemplateRenderer
	Mailer   Mailer
	Market   MarketDataProvider
	Links    UnsubscribeLinkBuilder
}

func NewEmailComposer(renderer TemplateRenderer, mailer Mailer, market MarketDataProvider, links UnsubscribeLinkBuilder) *EmailComposer {
	return &EmailComposer{
		Renderer: renderer,
		Mailer:   mailer,
		Market:   market,
		Links:    links,
	}
}

// Send returns the provider message id.
func (c *EmailComposer) Send(ctx context.Context, lead *entity.Lead, row *entity.ScheduledEmail) (string, error) {
	unsubscribeURL, err := c.Links.UnsubscribeURL(lead.ID)
	if err != nil {
		return "", fmt.Errorf("build unsubscribe link: %w", err)
	}

	rendered, err := c.Renderer.Render(ctx, row.TemplateID, TemplateData{
		Lead:           lead,
		Market:         c.lookupMarket(ctx, lead),
		StepNumber:     row.StepNumber,
		UnsubscribeURL: unsubscribeURL,
	})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", row.TemplateID, err)
	}

	messageID, err := c.Mailer.Send(ctx, OutboundEmail{
		To:             lead.Email,
		Subject:        rendered.Subject,
		HTML:           rendered.HTML,
		Text:           rendered.Text,
		UnsubscribeURL: unsubscribeURL,
		Tags: map[string]string{
			"lead_id":     lead.ID,
			"email_id":    row.ID,
			"template":    row.TemplateID,
			"campaign":    lead.CampaignID,
			"step":        fmt.Sprint(row.StepNumber),
			"temperature": string(lead.Temperature),
		},
	})
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	return messageID, nil
}

// lookupMarket is best effort: templates render without market data.
func (c *EmailComposer) lookupMarket(ctx context.Context, lead *entity.Lead) *entity.MarketSnapshot {
	if c.Market == nil || lead.Zipcode == "" {
		return nil
	}
	snapshot, err := c.Market.Lookup(ctx, lead.Zipcode)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("zipcode", lead.Zipcode).Msg("market lookup failed, rendering without it")
		return nil
	}
	return snapshot
}
