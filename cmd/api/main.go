package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/xavierca1/leaddrip/internal/config"
	"github.com/xavierca1/leaddrip/internal/infra/database"
	"github.com/xavierca1/leaddrip/internal/infra/http/handlers"
	"github.com/xavierca1/leaddrip/internal/infra/http/middleware"
	"github.com/xavierca1/leaddrip/internal/infra/integration/kommo"
	"github.com/xavierca1/leaddrip/internal/infra/logger"
	"github.com/xavierca1/leaddrip/internal/infra/mail"
	"github.com/xavierca1/leaddrip/internal/infra/market"
	"github.com/xavierca1/leaddrip/internal/infra/queue"
	"github.com/xavierca1/leaddrip/internal/infra/sns"
	"github.com/xavierca1/leaddrip/internal/infra/token"
	"github.com/xavierca1/leaddrip/internal/infra/worker"
	"github.com/xavierca1/leaddrip/internal/usecase"
)

const (
	startupWait     = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.Init(ctx, cfg.LogLevel)

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.BusinessTimezone).Msg("invalid business timezone")
	}

	db, err := database.NewDBConnection(ctx, cfg.DatabaseURL, startupWait)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	rabbitMQ, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, startupWait)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq unavailable")
	}
	defer rabbitMQ.Close()

	// Repositories
	leadRepo := database.NewLeadRepository(db)
	campaignRepo := database.NewCampaignRepository(db)
	emailRepo := database.NewScheduledEmailRepository(db)
	eventRepo := database.NewEmailEventRepository(db)

	// Gateways
	sesClient, err := mail.NewSESClient(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure ses")
	}
	mailer := mail.NewSESMailer(sesClient, cfg.SESFromAddress, cfg.SESConfigurationSet)

	templates, err := mail.NewTemplateRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse email templates")
	}

	unsubscriber, err := token.NewUnsubscriber(cfg.UnsubscribeSecret, cfg.UnsubscribeBaseURL, cfg.UnsubscribeMaxAge)
	if err != nil {
		log.Fatal().Err(err).Msg("unsubscribe links unavailable")
	}

	var marketData usecase.MarketDataProvider
	if cfg.MarketAPIURL != "" {
		marketData = market.NewHTTPProvider(cfg.MarketAPIURL, cfg.MarketCacheTTL)
	}

	composer := usecase.NewEmailComposer(templates, mailer, marketData, unsubscriber)
	producer := queue.NewProducer(rabbitMQ.Ch)

	// Use cases
	captureUC := usecase.NewCaptureLeadUseCase(leadRepo, campaignRepo, emailRepo, composer, producer, loc, cfg.MaxAttempts)

	dispatchUC := usecase.NewDispatchEmailsUseCase(leadRepo, campaignRepo, emailRepo, composer, loc)
	dispatchUC.BatchSize = cfg.DispatchBatchSize
	dispatchUC.SendInterval = cfg.DispatchSendInterval
	dispatchUC.StaleAfter = cfg.DispatchStaleAfter

	eventUC := usecase.NewProcessEmailEventUseCase(emailRepo, eventRepo, leadRepo)
	unsubscribeUC := usecase.NewUnsubscribeLeadUseCase(leadRepo, emailRepo, unsubscriber)

	// Background workers
	notifyWorker := queue.NewWorker(rabbitMQ.Ch, notifiers(cfg)...)
	dispatchWorker := worker.NewDispatchWorker(dispatchUC, cfg.DispatchSchedule)
	limiter := handlers.NewRateLimiter(10, time.Minute)

	// Handlers
	httpClient := &http.Client{Timeout: 10 * time.Second}
	leadHandler := handlers.NewLeadHandler(captureUC, limiter)
	webhookHandler := handlers.NewWebhookHandler(eventUC, sns.NewVerifier(httpClient), cfg.SNSTopicARN, cfg.SNSVerifySignature, httpClient)
	unsubscribeHandler := handlers.NewUnsubscribeHandler(unsubscribeUC)
	dispatchHandler := handlers.NewDispatchHandler(dispatchWorker, cfg.DispatchSecret)
	healthHandler := handlers.NewHealthHandler(db, rabbitMQ.Conn, cfg.SESFromAddress)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/leads", leadHandler.CaptureLead)
	r.Post("/dispatch", dispatchHandler.Handle)
	r.Post("/webhooks/ses", webhookHandler.Handle)
	r.Get("/unsubscribe", unsubscribeHandler.Handle)
	r.Post("/unsubscribe", unsubscribeHandler.Handle)
	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return notifyWorker.Start(gctx, queue.QueueName)
	})

	g.Go(func() error {
		return dispatchWorker.Start(gctx)
	})

	g.Go(func() error {
		limiter.Cleanup(gctx, time.Minute)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("shutting down after error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func notifiers(cfg *config.Config) []queue.LeadNotifier {
	var out []queue.LeadNotifier
	if cfg.SMTPHost != "" && cfg.OperatorEmail != "" {
		out = append(out, mail.NewOperatorNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SESFromAddress, cfg.OperatorEmail))
	}
	if cfg.KommoAPIToken != "" && cfg.KommoBaseURL != "" {
		out = append(out, kommo.NewClient(cfg.KommoBaseURL, cfg.KommoAPIToken))
	}
	if len(out) == 0 {
		log.Warn().Msg("no operator notifiers configured, lead notifications will be dropped")
	}
	return out
}
