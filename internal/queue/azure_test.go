package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/azure/azurite"
	"go.uber.org/mock/gomock"

	"github.com/hirelens/assessment-api/internal/queue"
	mockqueue "github.com/hirelens/assessment-api/internal/queue/mock"
)

type scoringRequest struct {
	InstanceID string `json:"instance_id"`
}

func TestAzure(t *testing.T) {
	ctx := t.Context()

	azuriteContainer, err := azurite.Run(
		ctx,
		"mcr.microsoft.com/azure-storage/azurite:latest",
		azurite.WithInMemoryPersistence(256),
	)
	require.NoError(t, err, "failed to make azurite container")
	defer func() {
		require.NoError(t, testcontainers.TerminateContainer(azuriteContainer))
	}()

	cred, err := azqueue.NewSharedKeyCredential(azurite.AccountName, azurite.AccountKey)
	require.NoError(t, err, "failed to get creds")

	serviceURL, err := azuriteContainer.QueueServiceURL(ctx)
	require.NoError(t, err, "failed to get serviceURL")
	serviceURL = fmt.Sprintf("%s/%s", serviceURL, azurite.AccountName)

	azclient, err := azqueue.NewServiceClientWithSharedKeyCredential(serviceURL, cred, nil)
	require.NoError(t, err, "failed to make azure queue client")

	queueName := "scoring-requests"
	queueclient := azclient.NewQueueClient(queueName)

	queuer, err := queue.NewAzureQueuer(
		azurite.AccountName,
		azurite.AccountKey,
		serviceURL,
		queueName,
	)
	require.NoError(t, err, "failed to construct queuer")
	queuer = queuer.WithPollInterval(100 * time.Millisecond)
	defer queuer.Close()

	require.NoError(t, queuer.Ensure(ctx), "failed to create queue")
	require.NoError(t, queuer.Ensure(ctx), "creating the queue twice should be fine")

	t.Run("Enqueue", func(t *testing.T) {
		expected := scoringRequest{InstanceID: "0190f0b4-7a55-7c2c-8e3a-0d4d5b9f1a11"}
		require.NoError(t, queuer.Enqueue(ctx, expected), "failed to queue message")

		dequeued, dqErr := queueclient.DequeueMessage(ctx, nil)
		require.NoError(t, dqErr, "failed to dequeue message")
		require.Len(t, dequeued.Messages, 1, "should remove 1 message")

		actual := scoringRequest{}
		err := json.Unmarshal([]byte(*dequeued.Messages[0].MessageText), &actual)
		require.NoError(t, err, "failed to unmarshal message")
		assert.Equal(t, expected, actual, "messages should match")

		_, err = queueclient.DeleteMessage(
			ctx,
			*dequeued.Messages[0].MessageID,
			*dequeued.Messages[0].PopReceipt,
			nil,
		)
		require.NoError(t, err)
	})

	t.Run("Dequeue", func(t *testing.T) {
		t.Run("Empty", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			handler := mockqueue.NewMockMessageHandler(ctrl)

			handler.EXPECT().Handle(gomock.Any(), gomock.Any()).Times(0)

			cctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			require.Error(
				t,
				queuer.Dequeue(cctx, time.Minute, handler),
				"dequeue should give up when the context ends",
			)
		})

		t.Run("Something", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			handler := mockqueue.NewMockMessageHandler(ctrl)

			msg := "abc"
			_, err := queueclient.EnqueueMessage(ctx, msg, nil)
			require.NoError(t, err, "enqueing message")

			handler.EXPECT().Handle(gomock.Any(), gomock.Eq([]byte(msg))).Return(nil).Times(1)

			require.NoError(t, queuer.Dequeue(ctx, time.Minute, handler), "failed to dequeue message")

			peek, err := queueclient.PeekMessages(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, peek.Messages, "handled message should be deleted")
		})

		t.Run("Poison", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			handler := mockqueue.NewMockMessageHandler(ctrl)

			_, err := queueclient.EnqueueMessage(ctx, "not json", nil)
			require.NoError(t, err, "enqueing message")

			handler.EXPECT().
				Handle(gomock.Any(), gomock.Any()).
				Return(queue.WrapPoisonError(errors.New("bad message"))).
				Times(1)

			require.NoError(t, queuer.Dequeue(ctx, time.Minute, handler))

			peek, err := queueclient.PeekMessages(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, peek.Messages, "poisoned message should not be requeued")
		})
	})
}
