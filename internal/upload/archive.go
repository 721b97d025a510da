package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hirelens/assessment-api/internal/hash"
)

type TranscriptKind string

const (
	TranscriptGeneration TranscriptKind = "generation"
	TranscriptScoring    TranscriptKind = "scoring"
	TranscriptDissection TranscriptKind = "dissection"
)

// Transcript is the archived record of one model exchange
type Transcript struct {
	Output     any            `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Raw        string         `json:"raw"`
	ArchivedAt time.Time      `json:"archived_at"`
	ID         uuid.UUID      `json:"id"`
	Kind       TranscriptKind `json:"kind"`
}

// ArchivedObject describes where a transcript ended up
type ArchivedObject struct {
	Store  string
	Object string
	SHA256 string
}

// Archiver stores model transcripts in object storage. A nil store disables it.
type Archiver struct {
	store Store
	now   func() time.Time
}

func NewArchiver(store Store) *Archiver {
	return &Archiver{store: store, now: time.Now}
}

func (a *Archiver) Enabled() bool {
	return a != nil && a.store != nil
}

func ObjectName(kind TranscriptKind, id uuid.UUID) string {
	return fmt.Sprintf("%s/%s.json", kind, id)
}

// Archive writes the transcript, overwriting any earlier one for the same id.
func (a *Archiver) Archive(
	ctx context.Context,
	kind TranscriptKind,
	id uuid.UUID,
	raw string,
	output any,
	failure error,
) (*ArchivedObject, error) {
	ctx, span := tracer.Start(ctx, "Archiver.Archive", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("id", id.String()),
	))
	defer span.End()

	if !a.Enabled() {
		span.SetStatus(codes.Ok, "archive disabled")
		return nil, nil
	}

	t := Transcript{
		ID:         id,
		Kind:       kind,
		Raw:        raw,
		Output:     output,
		ArchivedAt: a.now().UTC(),
	}
	if failure != nil {
		t.Error = failure.Error()
	}

	body, err := json.Marshal(t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal transcript")
		return nil, err
	}

	name := ObjectName(kind, id)
	if err := a.store.Put(ctx, name, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store transcript")
		return nil, err
	}

	span.SetStatus(codes.Ok, "archived transcript")
	return &ArchivedObject{Store: a.store.Location(), Object: name, SHA256: hash.Digest(body)}, nil
}

// PresignedURL returns a temporary download link, or "" when the transcript is not archived.
func (a *Archiver) PresignedURL(
	ctx context.Context,
	kind TranscriptKind,
	id uuid.UUID,
	ttl time.Duration,
) (string, error) {
	ctx, span := tracer.Start(ctx, "Archiver.PresignedURL")
	defer span.End()

	if !a.Enabled() {
		return "", nil
	}

	name := ObjectName(kind, id)
	exists, err := a.store.Exists(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check transcript")
		return "", err
	}
	if !exists {
		span.SetStatus(codes.Ok, "transcript not archived")
		return "", nil
	}

	url, err := a.store.ReadURL(ctx, name, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to presign transcript")
		return "", err
	}

	span.SetStatus(codes.Ok, "presigned transcript")
	return url, nil
}
