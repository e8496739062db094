package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/banku/user-service/internal/domain/event"
	"github.com/banku/user-service/internal/domain/repository"
)

// Exchange is the topic exchange all user events flow through. The routing key
// is the event type; the aggregate id rides as the correlation id so consumers
// can keep per-aggregate ordering by funnelling one queue.
const Exchange = "user.events"

// Publisher forwards committed events to RabbitMQ. Confirmations are awaited
// on a goroutine: the synchronous caller never blocks on broker acks, and a
// nack only produces a log line since the event log already holds the truth.
type Publisher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *logrus.Logger
}

func NewPublisher(url string, logger *logrus.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		Exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, logger: logger}, nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Publish sends one envelope. Serialization or channel errors are returned to
// the caller (and logged there as publish failures); broker confirmation is
// observed asynchronously.
func (p *Publisher) Publish(ctx context.Context, env event.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx,
		Exchange,
		string(env.Type), // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.ID,
			CorrelationId: env.AggregateID,
			Timestamp:     env.Timestamp,
			Type:          string(env.Type),
			Body:          body,
		},
	)
	if err != nil {
		return err
	}

	go func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		acked, err := confirm.WaitContext(waitCtx)
		fields := logrus.Fields{
			"event_id":     env.ID,
			"event_type":   env.Type,
			"aggregate_id": env.AggregateID,
		}
		switch {
		case err != nil:
			p.logger.WithError(err).WithFields(fields).Error("broker confirmation failed")
		case !acked:
			p.logger.WithFields(fields).Error("broker nacked event")
		default:
			p.logger.WithFields(fields).Info("event published")
		}
	}()

	return nil
}

var _ repository.EventPublisher = (*Publisher)(nil)
