// Command dispatcher runs a single dispatch pass and exits. It is meant for
// an external scheduler (cron, ECS scheduled task) when the API's built-in
// schedule is disabled.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xavierca1/leaddrip/internal/config"
	"github.com/xavierca1/leaddrip/internal/infra/database"
	"github.com/xavierca1/leaddrip/internal/infra/logger"
	"github.com/xavierca1/leaddrip/internal/infra/mail"
	"github.com/xavierca1/leaddrip/internal/infra/market"
	"github.com/xavierca1/leaddrip/internal/infra/token"
	"github.com/xavierca1/leaddrip/internal/infra/worker"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.Init(ctx, cfg.LogLevel)

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		log.Error().Err(err).Str("timezone", cfg.BusinessTimezone).Msg("invalid business timezone")
		return 1
	}

	db, err := database.NewDBConnection(ctx, cfg.DatabaseURL, 30*time.Second)
	if err != nil {
		log.Error().Err(err).Msg("database unavailable")
		return 1
	}
	defer db.Close()

	sesClient, err := mail.NewSESClient(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		log.Error().Err(err).Msg("failed to configure ses")
		return 1
	}
	templates, err := mail.NewTemplateRegistry()
	if err != nil {
		log.Error().Err(err).Msg("failed to parse email templates")
		return 1
	}
	unsubscriber, err := token.NewUnsubscriber(cfg.UnsubscribeSecret, cfg.UnsubscribeBaseURL, cfg.UnsubscribeMaxAge)
	if err != nil {
		log.Error().Err(err).Msg("unsubscribe links unavailable")
		return 1
	}

	var marketData usecase.MarketDataProvider
	if cfg.MarketAPIURL != "" {
		marketData = market.NewHTTPProvider(cfg.MarketAPIURL, cfg.MarketCacheTTL)
	}

	composer := usecase.NewEmailComposer(templates, mail.NewSESMailer(sesClient, cfg.SESFromAddress, cfg.SESConfigurationSet), marketData, unsubscriber)

	dispatchUC := usecase.NewDispatchEmailsUseCase(
		database.NewLeadRepository(db),
		database.NewCampaignRepository(db),
		database.NewScheduledEmailRepository(db),
		composer,
		loc,
	)
	dispatchUC.BatchSize = cfg.DispatchBatchSize
	dispatchUC.SendInterval = cfg.DispatchSendInterval
	dispatchUC.StaleAfter = cfg.DispatchStaleAfter

	out, err := worker.NewDispatchWorker(dispatchUC, cfg.DispatchSchedule).RunOnce(ctx)
	if out != nil {
		log.Info().
			Str("run_id", out.RunID).
			Int("processed", out.Processed).
			Int("sent", out.Sent).
			Int("failed", out.Failed).
			Int("skipped", out.Skipped).
			Int64("released", out.Released).
			Strs("errors", out.Errors).
			Msg("dispatch finished")
	}
	if err != nil {
		log.Error().Err(err).Msg("dispatch failed")
		return 1
	}
	return 0
}
