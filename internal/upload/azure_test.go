package upload_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/azure/azurite"

	"github.com/hirelens/assessment-api/internal/upload"
)

var container = "transcripts"

func TestAzure(t *testing.T) {
	ctx := context.Background()

	azuriteContainer, err := azurite.Run(
		ctx,
		"mcr.microsoft.com/azure-storage/azurite:latest",
		azurite.WithInMemoryPersistence(256),
	)
	require.NoError(t, err, "failed to make azurite container")
	defer func() {
		require.NoError(t, testcontainers.TerminateContainer(azuriteContainer))
	}()

	cred, err := azblob.NewSharedKeyCredential(azurite.AccountName, azurite.AccountKey)
	require.NoError(t, err, "failed to get creds")

	serviceURL, err := azuriteContainer.BlobServiceURL(ctx)
	require.NoError(t, err, "failed to get serviceURL")
	serviceURL = fmt.Sprintf("%s/%s", serviceURL, azurite.AccountName)

	azclient, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	require.NoError(t, err, "failed to make azure blob client")

	store, err := upload.NewAzureStore(
		azurite.AccountName,
		azurite.AccountKey,
		serviceURL,
		container,
	)
	require.NoError(t, err, "failed to construct store")

	require.NoError(t, store.Prepare(ctx), "failed to create container")
	require.NoError(t, store.Prepare(ctx), "preparing twice should be fine")
	assert.Equal(t, container, store.Location())

	archiver := upload.NewArchiver(upload.NewRetryStore(store))

	t.Run("NotExists", func(t *testing.T) {
		exists, err := store.Exists(ctx, "scoring/missing.json")
		require.NoError(t, err, "failed to check if object exists")
		assert.False(t, exists, "object should not exist")

		url, err := archiver.PresignedURL(ctx, upload.TranscriptScoring, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Empty(t, url, "missing transcript should have no link")
	})

	t.Run("ArchiveTranscript", func(t *testing.T) {
		id := uuid.New()
		output := map[string]any{"overall_score": 7.5}

		obj, err := archiver.Archive(
			ctx,
			upload.TranscriptScoring,
			id,
			`{"stages":[]}`,
			output,
			errors.New("partial"),
		)
		require.NoError(t, err, "failed to archive transcript")
		assert.Equal(t, container, obj.Store)
		assert.Equal(t, "scoring/"+id.String()+".json", obj.Object)
		assert.Len(t, obj.SHA256, 64)

		resp, err := azclient.DownloadStream(ctx, container, obj.Object, nil)
		require.NoError(t, err, "failed to download transcript")
		defer resp.Body.Close()
		require.NotNil(t, resp.ContentType)
		assert.Equal(t, "application/json", *resp.ContentType)

		var got upload.Transcript
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, id, got.ID)
		assert.Equal(t, upload.TranscriptScoring, got.Kind)
		assert.Equal(t, `{"stages":[]}`, got.Raw)
		assert.Equal(t, "partial", got.Error)

		url, err := archiver.PresignedURL(ctx, upload.TranscriptScoring, id, time.Minute)
		require.NoError(t, err)
		assert.Contains(t, url, obj.Object, "presigned url should point at the transcript")
	})
}
