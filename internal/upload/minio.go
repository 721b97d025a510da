package upload

import (
	"bytes"
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Store = (*MinioStore)(nil)

// MinioStore keeps transcripts in an S3 compatible bucket
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, id, secret string, ssl bool, bucket string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(id, secret, ""),
		Secure: ssl,
	})
	if err != nil {
		return nil, err
	}

	return NewMinioStoreFromClient(client, bucket), nil
}

func NewMinioStoreFromClient(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

func (s *MinioStore) Location() string {
	return s.bucket
}

func (s *MinioStore) Prepare(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "MinioStore.Prepare", trace.WithAttributes(
		attribute.String("bucket", s.bucket),
	))
	defer span.End()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to look up bucket")
		return err
	}
	if exists {
		span.SetStatus(codes.Ok, "bucket exists")
		return nil
	}

	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make bucket")
		return err
	}

	span.SetStatus(codes.Ok, "made bucket")
	return nil
}

func (s *MinioStore) Put(ctx context.Context, object string, body []byte) error {
	ctx, span := tracer.Start(ctx, "MinioStore.Put", trace.WithAttributes(
		attribute.String("object", object),
		attribute.Int("size", len(body)),
	))
	defer span.End()

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		object,
		bytes.NewReader(body),
		int64(len(body)),
		minio.PutObjectOptions{ContentType: transcriptContentType},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put object")
		return err
	}

	span.SetStatus(codes.Ok, "put object")
	return nil
}

func (s *MinioStore) Exists(ctx context.Context, object string) (bool, error) {
	ctx, span := tracer.Start(ctx, "MinioStore.Exists", trace.WithAttributes(
		attribute.String("object", object),
	))
	defer span.End()

	_, err := s.client.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{})
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "found object")
		return true, nil
	case minio.ToErrorResponse(err).Code == "NoSuchKey":
		span.SetStatus(codes.Ok, "no such object")
		return false, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat object")
		return false, err
	}
}

func (s *MinioStore) ReadURL(ctx context.Context, object string, ttl time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "MinioStore.ReadURL", trace.WithAttributes(
		attribute.String("object", object),
		attribute.String("ttl", ttl.String()),
	))
	defer span.End()

	u, err := s.client.PresignedGetObject(ctx, s.bucket, object, ttl, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to presign object")
		return "", err
	}

	span.SetStatus(codes.Ok, "presigned object")
	return u.String(), nil
}
