package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RabbitMQ backed queuer using the default exchange and a durable queue
type RabbitQueuer struct {
	url          string
	name         string
	pollInterval time.Duration

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

var _ Queuer = (*RabbitQueuer)(nil)

func NewRabbitQueuer(url, queueName string) (*RabbitQueuer, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	q := &RabbitQueuer{
		url:          url,
		name:         queueName,
		pollInterval: DefaultPollInterval,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.channelLocked(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *RabbitQueuer) WithPollInterval(d time.Duration) *RabbitQueuer {
	q.pollInterval = d
	return q
}

// Returns an open channel, dialing again if the broker dropped the connection
func (q *RabbitQueuer) channelLocked() (*amqp.Channel, error) {
	if q.channel != nil && !q.channel.IsClosed() {
		return q.channel, nil
	}

	if q.conn == nil || q.conn.IsClosed() {
		conn, err := amqp.Dial(q.url)
		if err != nil {
			return nil, err
		}
		q.conn = conn
	}

	ch, err := q.conn.Channel()
	if err != nil {
		return nil, err
	}

	_, err = ch.QueueDeclare(
		q.name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	q.channel = ch
	return ch, nil
}

func (q *RabbitQueuer) Enqueue(ctx context.Context, message any) error {
	ctx, span := tracer.Start(ctx, "RabbitMQ.Enqueue", trace.WithAttributes(
		attribute.String("queue", q.name),
	))
	defer span.End()

	body, err := json.Marshal(message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channelLocked()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open channel")
		return err
	}

	err = ch.PublishWithContext(
		ctx,
		"",     // default exchange
		q.name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "enqueued message")
	return nil
}

func (q *RabbitQueuer) get() (amqp.Delivery, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channelLocked()
	if err != nil {
		return amqp.Delivery{}, false, err
	}
	return ch.Get(q.name, false)
}

func (q *RabbitQueuer) Dequeue(
	ctx context.Context,
	timeout time.Duration,
	handler MessageHandler,
) error {
	ctx, span := tracer.Start(ctx, "RabbitMQ.Dequeue", trace.WithAttributes(
		attribute.String("queue", q.name),
		attribute.Int64("timeoutSecs", int64(timeout.Seconds())),
	))
	defer span.End()

	var delivery amqp.Delivery
	for {
		d, ok, err := q.get()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to get message")
			return err
		}
		if ok {
			delivery = d
			break
		}

		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "context cancelled")
			return ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}

	span.AddEvent("got_message", trace.WithAttributes(
		attribute.Int64("deliveryTag", int64(delivery.DeliveryTag)),
		attribute.Bool("redelivered", delivery.Redelivered),
	))

	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := handler.Handle(handlerCtx, delivery.Body)
	if err != nil && !IsPoison(err) {
		span.AddEvent("failed_message_handler", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
		if nerr := delivery.Nack(false, true); nerr != nil {
			span.RecordError(nerr)
			span.SetStatus(codes.Error, "failed to requeue message")
			return nerr
		}
		span.SetStatus(codes.Ok, "dequeued message but failed to handle")
		return nil
	}
	if err != nil {
		span.AddEvent("poisoned_message", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
	}

	if err := delivery.Ack(false); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to ack message")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "dequeued message")
	return nil
}

func (q *RabbitQueuer) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	if q.channel != nil && !q.channel.IsClosed() {
		errs = append(errs, q.channel.Close())
	}
	if q.conn != nil && !q.conn.IsClosed() {
		errs = append(errs, q.conn.Close())
	}
	q.channel, q.conn = nil, nil
	return errors.Join(errs...)
}
