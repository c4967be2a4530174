package rmq

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voice_verification/config"
	"voice_verification/entity"
	"voice_verification/internal/verification"
	"voice_verification/pkg/logger"
	"voice_verification/pkg/rabbitmq"
)

// AMQPWorker records every verification event it consumes.
type AMQPWorker struct {
	conn     *amqp.Connection
	amqpChan *amqp.Channel
	cfg      config.RMQ
	l        logger.Interface
	repo     entity.VerificationRecordRepository
}

func NewAMQPWorker(cfg config.RMQ, l logger.Interface, repo entity.VerificationRecordRepository) (*AMQPWorker, error) {
	mqConn, err := rabbitmq.NewRabbitMQConn(cfg.URL)
	if err != nil {
		return nil, err
	}
	amqpChan, err := mqConn.Channel()
	if err != nil {
		mqConn.Close()
		return nil, errors.Wrap(err, "amqpw.amqpConn.Channel")
	}

	return &AMQPWorker{conn: mqConn, amqpChan: amqpChan, cfg: cfg, l: l, repo: repo}, nil
}

// StartConsumer blocks until ctx ends or the channel closes.
func (c *AMQPWorker) StartConsumer(ctx context.Context) error {
	ch := c.amqpChan

	if err := setupExchangeAndQueue(ch, c.l, c.cfg.Exchange, c.cfg.Queue, VerificationRoutingKey); err != nil {
		return errors.Wrap(err, "SetupExchangeAndQueue")
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return errors.Wrap(err, "ch.Qos")
	}

	deliveries, err := ch.Consume(
		c.cfg.Queue,
		"",
		consumeAutoAck,
		consumeExclusive,
		consumeNoLocal,
		consumeNoWait,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "Consume")
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go c.ConsumeVerifications(ctx, deliveries)

	select {
	case <-ctx.Done():
		return nil
	case chanErr := <-closed:
		if chanErr == nil {
			return nil
		}
		c.l.Error("ch.NotifyClose: %v", chanErr)
		return chanErr
	}
}

func (c *AMQPWorker) ConsumeVerifications(ctx context.Context, messages <-chan amqp.Delivery) {
	for delivery := range messages {
		c.handle(ctx, delivery)
	}
}

// handle acks stored or duplicate events, drops undecodable ones and
// requeues a failed insert once.
func (c *AMQPWorker) handle(ctx context.Context, delivery amqp.Delivery) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(delivery.Headers))
	ctx, span := otel.Tracer(traceName).Start(ctx, "consume-verification", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var ev entity.VerificationEvent
	if err := json.Unmarshal(delivery.Body, &ev); err != nil || ev.RequestID == "" {
		c.l.Error("rmq - undecodable verification event %s: %v", delivery.MessageId, err)
		delivery.Reject(false)
		return
	}
	span.SetAttributes(attribute.String("request_id", ev.RequestID))

	if err := c.repo.Create(ctx, verification.RecordFromEvent(ev)); err != nil {
		span.RecordError(err)
		c.l.Error("rmq - store verification %s: %v", ev.RequestID, err)
		delivery.Reject(!delivery.Redelivered)
		return
	}
	delivery.Ack(false)
}

// CloseChan Close messages chan
func (c *AMQPWorker) CloseChan() error {
	if err := c.amqpChan.Close(); err != nil {
		c.l.Error("AMQPWorker CloseChan: %v", err)
		return err
	}
	return c.conn.Close()
}
