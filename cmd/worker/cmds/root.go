package cmds

import (
	"context"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/hirelens/assessment-api/worker/cmds")

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker commands that score submitted assessments off the requests queue",
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
