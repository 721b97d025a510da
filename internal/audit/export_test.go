package audit

import (
	"io"
	"time"
)

func NewTestRecorder(sink Sink, out io.Writer, now func() time.Time) *Recorder {
	return &Recorder{sink: sink, out: out, now: now}
}
