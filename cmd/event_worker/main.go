package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/banku/user-service/config"
	"github.com/banku/user-service/internal/domain/event"
	"github.com/banku/user-service/internal/infrastructure/elastic"
	"github.com/banku/user-service/internal/infrastructure/rabbitmq"
	"github.com/banku/user-service/pkg/helpers"
	"github.com/banku/user-service/pkg/mailer"
)

// The event worker drains the user.events exchange and keeps the search read
// model in sync. It also sends the welcome email on account creation, so the
// API server never blocks on Mailgun.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-worker", cfg.Env)

	esClient, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		log.Fatalf("failed to init elasticsearch client: %v", err)
	}
	index := elastic.NewUserIndex(esClient, cfg.ESUsersIndex, logger)

	var mg *mailer.Mailgun
	if cfg.MailSendEnabled && cfg.MailgunDomain != "" && cfg.MailgunAPIKey != "" {
		mg = mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
	} else {
		logger.Info("mail sending disabled; welcome emails will be skipped")
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("amqp dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerCfg := rabbitmq.ConsumerConfig{
		Queue:       cfg.EventQueue,
		DLQ:         cfg.EventDLQ,
		RoutingKeys: []string{"user.#"},
		Tag:         cfg.ConsumerTag,
	}

	handler := func(ctx context.Context, env event.Envelope, payload any) error {
		if err := index.ApplyEvent(ctx, env, payload); err != nil {
			return err
		}
		if created, ok := payload.(event.UserCreated); ok && mg != nil {
			sendWelcome(ctx, mg, logger, created)
		}
		return nil
	}

	err = rabbitmq.Consume(ctx, conn, consumerCfg, logger, handler)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("consumer stopped")
	}
	logger.Info("worker exited properly")
}

// sendWelcome is best-effort: a lost welcome email never blocks projection of
// the event, so failures are only logged.
func sendWelcome(ctx context.Context, mg *mailer.Mailgun, logger *logrus.Logger, created event.UserCreated) {
	name := created.FirstName
	if name != "" && created.LastName != "" {
		name += " " + created.LastName
	}
	subject, html, err := mailer.RenderWelcome(mailer.WelcomeData{Name: name, Email: created.Email})
	if err != nil {
		logger.WithError(err).Error("welcome email render failed")
		return
	}

	c, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := mg.Send(c, created.Email, subject, "", html); err != nil {
		logger.WithError(err).WithField("email", created.Email).Warn("welcome email send failed")
	}
}
