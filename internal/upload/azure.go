package upload

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Store = (*AzureStore)(nil)

// AzureStore keeps transcripts in a blob container of a storage account
type AzureStore struct {
	client    *azblob.Client
	container string
}

func NewAzureStore(accountName, accountKey, serviceURL, container string) (*AzureStore, error) {
	if container == "" {
		return nil, errors.New("container is required")
	}

	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, err
	}

	return NewAzureStoreFromClient(client, container), nil
}

// container must belong to the storage account of client
func NewAzureStoreFromClient(client *azblob.Client, container string) *AzureStore {
	return &AzureStore{client: client, container: container}
}

func (s *AzureStore) Location() string {
	return s.container
}

func (s *AzureStore) blob(object string) *blob.Client {
	return s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(object)
}

func (s *AzureStore) Prepare(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "AzureStore.Prepare", trace.WithAttributes(
		attribute.String("container", s.container),
	))
	defer span.End()

	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create container")
		return err
	}

	span.SetStatus(codes.Ok, "container ready")
	return nil
}

func (s *AzureStore) Put(ctx context.Context, object string, body []byte) error {
	ctx, span := tracer.Start(ctx, "AzureStore.Put", trace.WithAttributes(
		attribute.String("object", object),
		attribute.Int("size", len(body)),
	))
	defer span.End()

	contentType := transcriptContentType
	_, err := s.client.UploadBuffer(ctx, s.container, object, body, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload blob")
		return err
	}

	span.SetStatus(codes.Ok, "uploaded blob")
	return nil
}

func (s *AzureStore) Exists(ctx context.Context, object string) (bool, error) {
	ctx, span := tracer.Start(ctx, "AzureStore.Exists", trace.WithAttributes(
		attribute.String("object", object),
	))
	defer span.End()

	_, err := s.blob(object).GetProperties(ctx, nil)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "found blob")
		return true, nil
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		span.SetStatus(codes.Ok, "no such blob")
		return false, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read blob properties")
		return false, err
	}
}

func (s *AzureStore) ReadURL(ctx context.Context, object string, ttl time.Duration) (string, error) {
	_, span := tracer.Start(ctx, "AzureStore.ReadURL", trace.WithAttributes(
		attribute.String("object", object),
		attribute.String("ttl", ttl.String()),
	))
	defer span.End()

	u, err := s.blob(object).GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(ttl), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to sign blob url")
		return "", err
	}

	span.SetStatus(codes.Ok, "signed blob url")
	return u, nil
}
