package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue/queueerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Azure storage queues backed queuer
type AzureQueuer struct {
	az           *azqueue.QueueClient
	name         string
	pollInterval time.Duration
	// visibility after a failed handler so the message is retried soon
	retryAfter int32
}

var _ Queuer = (*AzureQueuer)(nil)

func NewAzureQueuer(storageAccountName string,
	storageAccountKey string,
	queueServiceURL string,
	queueName string,
) (*AzureQueuer, error) {
	azureCred, err := azqueue.NewSharedKeyCredential(storageAccountName, storageAccountKey)
	if err != nil {
		return nil, err
	}
	serviceClient, err := azqueue.NewServiceClientWithSharedKeyCredential(
		queueServiceURL,
		azureCred,
		&azqueue.ClientOptions{
			ClientOptions: policy.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries: 5,
					RetryDelay: 500 * time.Millisecond,
				},
			},
		},
	)
	if err != nil {
		return nil, err
	}

	return &AzureQueuer{
		az:           serviceClient.NewQueueClient(queueName),
		name:         queueName,
		pollInterval: DefaultPollInterval,
		retryAfter:   10,
	}, nil
}

func (q *AzureQueuer) WithPollInterval(d time.Duration) *AzureQueuer {
	q.pollInterval = d
	return q
}

// Ensure creates the queue if it does not exist
func (q *AzureQueuer) Ensure(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Azure.Ensure", trace.WithAttributes(
		attribute.String("queue", q.name),
	))
	defer span.End()

	_, err := q.az.Create(ctx, nil)
	if err != nil && !queueerror.HasCode(err, queueerror.QueueAlreadyExists) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create queue")
		return err
	}

	span.SetStatus(codes.Ok, "queue ready")
	return nil
}

func (q *AzureQueuer) Enqueue(ctx context.Context, message any) error {
	ctx, span := tracer.Start(ctx, "Azure.Enqueue", trace.WithAttributes(
		attribute.String("queue", q.name),
	))
	defer span.End()

	msgJSON, err := json.Marshal(message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return err
	}

	span.AddEvent("serialized_message", trace.WithAttributes(
		attribute.Int("bytes", len(msgJSON)),
	))

	_, err = q.az.EnqueueMessage(ctx, string(msgJSON), &azqueue.EnqueueMessageOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enqueue message")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "enqueued message")
	return nil
}

func (q *AzureQueuer) Dequeue(
	ctx context.Context,
	timeout time.Duration,
	handler MessageHandler,
) error {
	ctx, span := tracer.Start(ctx, "Azure.Dequeue", trace.WithAttributes(
		attribute.String("queue", q.name),
		attribute.Int64("timeoutSecs", int64(timeout.Seconds())),
	))
	defer span.End()

	// Gives us a bit of time to stop work before it is released after cancelling the context
	timeoutSeconds := int32(timeout.Seconds()) + 5

	var msg azqueue.DequeueMessagesResponse
loop:
	for {
		var err error
		msg, err = q.az.DequeueMessage(ctx, &azqueue.DequeueMessageOptions{
			VisibilityTimeout: &timeoutSeconds,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to dequeue message")
			return err
		}

		switch len(msg.Messages) {
		case 1:
			break loop
		case 0:
			select {
			// Allow early bail from sleep if context becomes cancelled
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				span.SetStatus(codes.Error, "context cancelled")
				return ctx.Err()
			case <-time.After(q.pollInterval):
				continue
			}
		default:
			err = fmt.Errorf("unexpected number of messages: %d", len(msg.Messages))
			span.RecordError(err)
			span.SetStatus(codes.Error, "unexpected number of messages")
			return err
		}
	}

	msgInstance := msg.Messages[0]

	span.AddEvent("got_message", trace.WithAttributes(
		attribute.String("id", *msgInstance.MessageID),
	))

	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := handler.Handle(handlerCtx, []byte(*msgInstance.MessageText))
	if err != nil && !IsPoison(err) {
		span.AddEvent("failed_message_handler", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))

		// shorten the visibility timeout so the message comes back quickly
		_, uerr := q.az.UpdateMessage(
			ctx,
			*msgInstance.MessageID,
			*msgInstance.PopReceipt,
			*msgInstance.MessageText,
			&azqueue.UpdateMessageOptions{VisibilityTimeout: &q.retryAfter},
		)
		if uerr != nil {
			span.RecordError(uerr)
		}

		span.SetStatus(codes.Ok, "dequeued message but failed to handle")
		return nil
	}
	if err != nil {
		span.AddEvent("poisoned_message", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
	}

	_, err = q.az.DeleteMessage(ctx, *msgInstance.MessageID, *msgInstance.PopReceipt, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to remove message")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "dequeued message")
	return nil
}

func (q *AzureQueuer) Close() error {
	return nil
}
