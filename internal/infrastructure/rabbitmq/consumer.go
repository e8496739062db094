package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/banku/user-service/internal/domain/event"
)

// Handler reacts to one decoded event. Returning an error nacks the delivery
// to the dead-letter queue.
type Handler func(ctx context.Context, env event.Envelope, payload any) error

// ConsumerConfig describes the queue a consumer group drains.
type ConsumerConfig struct {
	Queue       string
	DLQ         string
	RoutingKeys []string
	Tag         string
}

// Consume declares the queue (plus its DLQ), binds it to the user.events
// exchange and dispatches deliveries to the handler. Unknown event types are
// logged and acked away; a schema from the future is not this consumer's
// problem. Blocks until the channel closes or ctx is done.
func Consume(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig, logger *logrus.Logger, handle Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(cfg.DLQ, true, false, false, false, nil); err != nil {
		return err
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "", // default exchange
		"x-dead-letter-routing-key": cfg.DLQ,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		return err
	}
	for _, key := range cfg.RoutingKeys {
		if err := ch.QueueBind(cfg.Queue, key, Exchange, false, nil); err != nil {
			return err
		}
	}

	if err := ch.Qos(16, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(cfg.Queue, cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{"queue": cfg.Queue, "keys": cfg.RoutingKeys}).Info("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			handleDelivery(ctx, msg, logger, handle)
		}
	}
}

func handleDelivery(ctx context.Context, msg amqp.Delivery, logger *logrus.Logger, handle Handler) {
	var env event.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		logger.WithError(err).WithField("message_id", msg.MessageId).Error("malformed event payload")
		_ = msg.Nack(false, false) // to DLQ
		return
	}

	payload, err := env.Decode()
	if err != nil {
		if errors.Is(err, event.ErrUnknownEventType) {
			// Drop, don't dead-letter: newer producers may ship types this
			// consumer does not know yet.
			logger.WithFields(logrus.Fields{
				"event_type":   env.Type,
				"aggregate_id": env.AggregateID,
			}).Warn("unknown event type, dropping")
			_ = msg.Ack(false)
			return
		}
		logger.WithError(err).WithField("event_id", env.ID).Error("event decode failed")
		_ = msg.Nack(false, false)
		return
	}

	if err := handle(ctx, env, payload); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"event_id":     env.ID,
			"event_type":   env.Type,
			"aggregate_id": env.AggregateID,
		}).Error("event handler failed")
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}
