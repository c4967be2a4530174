package rmq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voice_verification/config"
	"voice_verification/entity"
	"voice_verification/pkg/logger"
	"voice_verification/pkg/rabbitmq"
)

type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPClient publishes verification events to the configured exchange.
type AMQPClient struct {
	conn     *amqp.Connection
	amqpChan publisher
	closer   func() error
	exchange string
	l        logger.Interface
}

func NewAMQPClient(cfg config.RMQ, l logger.Interface) (*AMQPClient, error) {
	mqConn, err := rabbitmq.NewRabbitMQConn(cfg.URL)
	if err != nil {
		return nil, err
	}
	amqpChan, err := mqConn.Channel()
	if err != nil {
		mqConn.Close()
		return nil, errors.Wrap(err, "amqpw.amqpConn.Channel")
	}

	if err := setupExchangeAndQueue(amqpChan, l, cfg.Exchange, cfg.Queue, VerificationRoutingKey); err != nil {
		mqConn.Close()
		return nil, err
	}

	return &AMQPClient{
		conn:     mqConn,
		amqpChan: amqpChan,
		closer:   amqpChan.Close,
		exchange: cfg.Exchange,
		l:        l,
	}, nil
}

// Publish message
func (amqpw *AMQPClient) Publish(ctx context.Context, key, contentType, corrId string, body []byte) error {
	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	amqpw.l.Debug("Publishing message Exchange: %s, RoutingKey: %s", amqpw.exchange, key)

	if err := amqpw.amqpChan.Publish(
		amqpw.exchange,
		key,
		publishMandatory,
		publishImmediate,
		amqp.Publishing{
			Headers:       headers,
			ContentType:   contentType,
			DeliveryMode:  amqp.Persistent,
			MessageId:     uuid.New().String(),
			Timestamp:     time.Now(),
			CorrelationId: corrId,
			Body:          body,
		},
	); err != nil {
		return errors.Wrap(err, "ch.Publish")
	}

	return nil
}

func (amqpw *AMQPClient) PublishVerification(ctx context.Context, ev entity.VerificationEvent) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "publish-verification", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(attribute.String("request_id", ev.RequestID))

	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal verification event")
	}
	return amqpw.Publish(ctx, VerificationRoutingKey, contentTypeJSON, ev.RequestID, body)
}

// Close closes the channel and then the connection.
func (amqpw *AMQPClient) Close() error {
	var err error
	if amqpw.closer != nil {
		err = amqpw.closer()
	}
	if amqpw.conn != nil {
		if cerr := amqpw.conn.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		amqpw.l.Error("AMQPClient Close: %v", err)
	}
	return err
}

var _ entity.EventPublisher = (*AMQPClient)(nil)
