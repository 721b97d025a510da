package upload_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hirelens/assessment-api/internal/upload"
	mockupload "github.com/hirelens/assessment-api/internal/upload/mock"
)

var errFlaky = errors.New("connection reset")

func fastBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond))
}

func TestRetryPut(t *testing.T) {
	body := []byte(`{"raw":""}`)

	t.Run("RecoversAfterFailure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mockupload.NewMockStore(ctrl)

		gomock.InOrder(
			store.EXPECT().Put(gomock.Any(), "scoring/a.json", body).Return(errFlaky),
			store.EXPECT().Put(gomock.Any(), "scoring/a.json", body).Return(nil),
		)

		err := upload.NewRetryStoreBackoff(store, fastBackoff).Put(context.Background(), "scoring/a.json", body)
		require.NoError(t, err)
	})

	t.Run("GivesUp", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mockupload.NewMockStore(ctrl)

		store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(errFlaky).Times(4)

		err := upload.NewRetryStoreBackoff(store, fastBackoff).Put(context.Background(), "scoring/a.json", body)
		require.ErrorIs(t, err, errFlaky)
	})

	t.Run("CancelledIsNotRetried", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mockupload.NewMockStore(ctrl)

		store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(context.Canceled).Times(1)

		err := upload.NewRetryStoreBackoff(store, fastBackoff).Put(context.Background(), "scoring/a.json", body)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetryExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mockupload.NewMockStore(ctrl)

	gomock.InOrder(
		store.EXPECT().Exists(gomock.Any(), "generation/b.json").Return(false, errFlaky),
		store.EXPECT().Exists(gomock.Any(), "generation/b.json").Return(true, nil),
	)

	exists, err := upload.NewRetryStoreBackoff(store, fastBackoff).Exists(context.Background(), "generation/b.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRetryPassThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mockupload.NewMockStore(ctrl)

	store.EXPECT().Location().Return("transcripts").Times(1)
	store.EXPECT().ReadURL(gomock.Any(), "scoring/c.json", time.Minute).Return("", errFlaky).Times(1)
	store.EXPECT().Prepare(gomock.Any()).Return(nil).Times(1)

	r := upload.NewRetryStore(store)
	assert.Equal(t, "transcripts", r.Location())

	_, err := r.ReadURL(context.Background(), "scoring/c.json", time.Minute)
	require.ErrorIs(t, err, errFlaky, "signing is local and should not be retried")

	require.NoError(t, r.Prepare(context.Background()))
}
