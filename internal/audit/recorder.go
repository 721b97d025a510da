package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/hirelens/assessment-api/internal/logger"
)

//go:generate mockgen -destination ./mock/mock.go -package mock . Sink

// Sink persists audit entries, e.g. to the audit_logs table
type Sink interface {
	AppendAudit(ctx context.Context, entry *Entry) error
}

// Recorder writes every entry as a JSON line and then hands it to the sink.
// Neither step can fail the caller, the audit trail is best effort.
type Recorder struct {
	sink Sink
	out  io.Writer
	now  func() time.Time
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, out: os.Stdout, now: time.Now}
}

func NewEntry(actor *uuid.UUID, action Action, payload map[string]any, at time.Time) *Entry {
	if payload == nil {
		payload = map[string]any{}
	}

	entry := &Entry{Payload: payload}
	entry.ActorID = actor
	entry.Action = action
	entry.LogContext = logContext
	entry.SchemaVersion = schemaVersion
	entry.Disposition = dispForAction(action)
	entry.Timestamp = UnixMilli(at.UTC().UnixMilli())
	return entry
}

func (r *Recorder) Record(
	ctx context.Context,
	actor *uuid.UUID,
	action Action,
	payload map[string]any,
) {
	if r == nil {
		return
	}

	entry := NewEntry(actor, action, payload, r.now())

	evtStr, err := json.Marshal(entry)
	if err != nil {
		logger.Logger.ErrorContext(
			ctx,
			"could not serialize audit entry",
			"action",
			action,
			"error",
			err,
		)
		return
	}

	fmt.Fprintln(r.out, string(evtStr))

	if r.sink == nil {
		return
	}

	if err := r.sink.AppendAudit(ctx, entry); err != nil {
		logger.Logger.WarnContext(
			ctx,
			"failed to persist audit entry",
			"action",
			action,
			"error",
			err,
		)
	}
}
