package jobs

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer(
	"github.com/hirelens/assessment-api/cmd/server/internal/jobs",
)
