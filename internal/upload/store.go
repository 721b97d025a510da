package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/hirelens/assessment-api/internal/config"
)

var tracer = otel.Tracer(
	"github.com/hirelens/assessment-api/internal/upload",
)

const transcriptContentType = "application/json"

//go:generate mockgen -destination ./mock/mock.go -package mock . Store

// Store is the object storage transcripts are archived into
type Store interface {
	// Prepare creates the bucket or container when it is missing
	Prepare(ctx context.Context) error
	// Put writes body under object, replacing what was there
	Put(ctx context.Context, object string, body []byte) error
	Exists(ctx context.Context, object string) (bool, error)
	// ReadURL is an anonymous download link that stops working after ttl
	ReadURL(ctx context.Context, object string, ttl time.Duration) (string, error)
	// Location names the bucket or container, recorded next to archived objects
	Location() string
}

// FromConfig builds the store selected by archive.backend, wrapped in retries and prepared.
// It returns nil when archiving is disabled.
//
//nolint:ireturn // callers only depend on the interface
func FromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Archive.Backend {
	case config.ArchiveBackendNone, "":
		return nil, nil
	case config.ArchiveBackendMinio:
		m := cfg.Archive.Minio
		store, err = NewMinioStore(m.Endpoint, m.AccessKeyID, m.SecretAccessKey, m.SSLEnabled, m.BucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to create minio store: %w", err)
		}
	case config.ArchiveBackendAzure:
		if cfg.Azure == nil || cfg.Azure.StorageAccount == nil {
			return nil, errors.New("azure storage account is not configured")
		}
		sa := cfg.Azure.StorageAccount
		store, err = NewAzureStore(sa.Name, sa.Key, sa.ContainersURL, sa.Container)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}

	store = NewRetryStore(store)
	if err := store.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare %s: %w", store.Location(), err)
	}
	return store, nil
}
