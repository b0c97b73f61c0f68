// cmd/worker/main.go
//
// The worker consumes batch-ready events from RabbitMQ and drains the
// referenced send-queue items as soon as they come due, ahead of the next
// cron tick. It is an accelerator only: the durable queue rows in Postgres
// are authoritative, the claim step deduplicates against concurrent cron
// drains, and losing the worker entirely just means batches wait for cron.
package main

import (
	"context"
	"encoding/json"
	"log"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailpress/internal/config"
	"github.com/unclebandit/mailpress/internal/db"
	"github.com/unclebandit/mailpress/internal/mailer"
	"github.com/unclebandit/mailpress/internal/queue"
	"github.com/unclebandit/mailpress/internal/ratelimit"
	"github.com/unclebandit/mailpress/internal/repository"
	"github.com/unclebandit/mailpress/internal/service"
)

const maxDeliveryRetries = 3

// nextRetry reads the retry counter stamped by a previous republish (absent on
// first delivery) and returns the headers for the next attempt, or false once
// the ceiling is reached.
func nextRetry(headers amqp.Table) (amqp.Table, bool) {
	var retries int32
	if v, ok := headers["x-retry-count"].(int32); ok {
		retries = v
	}
	if retries >= maxDeliveryRetries {
		return nil, false
	}
	return amqp.Table{"x-retry-count": retries + 1}, true
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}
	if cfg.AMQPURL == "" {
		log.Fatal("AMQP_URL is required for the worker")
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

	campaignRepo := &repository.CampaignRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	queueRepo := &repository.SendQueueRepository{DB: conn}
	analyticsRepo := &repository.AnalyticsRepository{DB: conn}

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisUsageStore(rdb, 2*cfg.DomainWindow),
		nil, cfg.DefaultDomainCap, cfg.DomainWindow, logger,
	)

	orchestrator := &service.Orchestrator{
		Campaigns: campaignRepo,
		Contacts:  contactRepo,
		Queue:     queueRepo,
		Analytics: analyticsRepo,
		Sender: &service.BatchSender{
			Contacts:  contactRepo,
			Campaigns: campaignRepo,
			Analytics: analyticsRepo,
			Mailer:    mailer.NewSendGridMailer(cfg.SendGridAPIKey),
			BaseURL:   cfg.TrackingBaseURL,
			Logger:    logger,
		},
		Limiter:          limiter,
		Publisher:        queue.NopPublisher{},
		Logger:           logger,
		BatchSize:        cfg.BatchSize,
		StaggerInterval:  cfg.StaggerInterval,
		ClaimLimit:       cfg.ClaimLimit,
		MaxAttempts:      cfg.MaxAttempts,
		FailureThreshold: cfg.FailureThreshold,
	}

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Fatalw("connect to AMQP", "error", err)
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		logger.Fatalw("open AMQP channel", "error", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(queue.BatchQueue, true, false, false, false, nil)
	if err != nil {
		logger.Fatalw("declare queue", "error", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatalw("register consumer", "error", err)
	}

	logger.Infow("worker running, waiting for batches")
	ctx := context.Background()

	for d := range msgs {
		var event queue.BatchReady
		if err := json.Unmarshal(d.Body, &event); err != nil {
			logger.Warnw("invalid batch-ready message", "error", err)
			d.Ack(false)
			continue
		}

		res, err := orchestrator.DrainOne(ctx, event.QueueItemID)
		if err != nil {
			logger.Errorw("drain batch failed", "item_id", event.QueueItemID, "error", err)
			if headers, ok := nextRetry(d.Headers); ok {
				// a plain nack redelivers with unchanged headers, so the
				// attempt count must travel on a fresh publish
				pubErr := ch.Publish("", queue.BatchQueue, false, false, amqp.Publishing{
					ContentType:  "application/json",
					DeliveryMode: amqp.Persistent,
					Headers:      headers,
					Body:         d.Body,
				})
				if pubErr != nil {
					logger.Errorw("republish failed", "item_id", event.QueueItemID, "error", pubErr)
				}
			}
			// past the ceiling the cron drain pass owns recovery
			d.Ack(false)
			continue
		}

		if res == nil {
			// not due yet or another invocation claimed it first
			d.Ack(false)
			continue
		}
		logger.Infow("batch drained",
			"item_id", res.ID, "sent", res.Sent, "failed", res.Failed, "deferred", res.Deferred)
		d.Ack(false)
	}
}
