// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/mailpress/internal/config"
	"github.com/unclebandit/mailpress/internal/controller"
	"github.com/unclebandit/mailpress/internal/db"
	"github.com/unclebandit/mailpress/internal/handler"
	"github.com/unclebandit/mailpress/internal/mailer"
	"github.com/unclebandit/mailpress/internal/queue"
	"github.com/unclebandit/mailpress/internal/ratelimit"
	"github.com/unclebandit/mailpress/internal/repository"
	"github.com/unclebandit/mailpress/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatal("logger:", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	conn, err := db.Open(cfg.DSN())
	if err != nil {
		logger.Fatalw("connect to database", "error", err)
	}
	defer conn.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.AMQPURL != "" {
		p, err := queue.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			logger.Fatalw("connect to AMQP", "error", err)
		}
		defer p.Close()
		publisher = p
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	queueRepo := &repository.SendQueueRepository{DB: conn}
	analyticsRepo := &repository.AnalyticsRepository{DB: conn}

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisUsageStore(rdb, 2*cfg.DomainWindow),
		nil, cfg.DefaultDomainCap, cfg.DomainWindow, logger,
	)

	sender := &service.BatchSender{
		Contacts:  contactRepo,
		Campaigns: campaignRepo,
		Analytics: analyticsRepo,
		Mailer:    mailer.NewSendGridMailer(cfg.SendGridAPIKey),
		BaseURL:   cfg.TrackingBaseURL,
		Logger:    logger,
	}

	orchestrator := &service.Orchestrator{
		Campaigns:        campaignRepo,
		Contacts:         contactRepo,
		Queue:            queueRepo,
		Analytics:        analyticsRepo,
		Sender:           sender,
		Limiter:          limiter,
		Publisher:        publisher,
		Logger:           logger,
		BatchSize:        cfg.BatchSize,
		StaggerInterval:  cfg.StaggerInterval,
		ClaimLimit:       cfg.ClaimLimit,
		MaxAttempts:      cfg.MaxAttempts,
		FailureThreshold: cfg.FailureThreshold,
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		ContactRepo:  contactRepo,
		QueueRepo:    queueRepo,
		Analytics:    analyticsRepo,
		Logger:       logger,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		ContactRepo:     contactRepo,
		Logger:          logger,
	}
	cronHandler := &handler.CronHandler{
		Orchestrator: orchestrator,
		Secret:       cfg.CronSecret,
		Logger:       logger,
	}
	trackingHandler := &handler.TrackingHandler{
		Analytics: analyticsRepo,
		Contacts:  contactRepo,
		Logger:    logger,
	}

	r := chi.NewRouter()

	// Campaign management
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/activate", campaignController.ActivateCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Post("/campaigns/{id}/personalized-preview", campaignController.PersonalizedPreview)
	r.Post("/contacts", campaignController.CreateContact)

	// Pipeline cron entry points; GET aliases allow manual triggering
	r.Post("/cron/campaign-warmup", cronHandler.Warmup)
	r.Get("/cron/campaign-warmup", cronHandler.Warmup)
	r.Post("/cron/send-queue", cronHandler.SendQueue)
	r.Get("/cron/send-queue", cronHandler.SendQueue)

	// Tracking surface embedded in outbound email
	r.Get("/t/open", trackingHandler.Open)
	r.Get("/t/click", trackingHandler.Click)
	r.Get("/unsubscribe", trackingHandler.Unsubscribe)

	logger.Infow("server running", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
}
