package cmds

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/hirelens/assessment-api/cmd/worker/internal/evaluate"
	"github.com/hirelens/assessment-api/internal/config"
	"github.com/hirelens/assessment-api/internal/llm"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/queue"
	"github.com/hirelens/assessment-api/internal/scoring"
	workererrors "github.com/hirelens/assessment-api/internal/worker_errors"
)

var (
	concurrency int
	pollTimeout time.Duration
	once        bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Consume scoring requests and publish results until interrupted",
	Long: `
- Exits with 0 after a clean shutdown.
- Exits with 2 when configuration or queue setup fails.
- Exits with a 1 for all other errors.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "scoreCmd")
		defer span.End()

		span.SetAttributes(
			attribute.Int("concurrency", concurrency),
			attribute.Bool("once", once),
		)

		cfg, err := config.GetConfig()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load config")
			return workererrors.ExitErrorWrap(exitSetup, err)
		}
		logger.SetLevel(cfg.Logging.App.Level)

		collaborator, err := llm.NewFromConfig(ctx, cfg.LLM)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to construct llm collaborator")
			return workererrors.ExitErrorWrap(exitSetup, err)
		}

		requests, err := queue.FromConfig(ctx, cfg, cfg.Queue.Requests)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to connect to requests queue")
			return workererrors.ExitErrorWrap(exitSetup, err)
		}
		defer requests.Close()

		results, err := queue.FromConfig(ctx, cfg, cfg.Queue.Results)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to connect to results queue")
			return workererrors.ExitErrorWrap(exitSetup, err)
		}
		defer results.Close()

		evaluator := evaluate.NewEvaluator(scoring.NewEngine(collaborator), results)

		logger.Logger.InfoContext(
			ctx,
			"Starting scoring worker",
			"concurrency", concurrency,
			"requests", cfg.Queue.Requests,
			"results", cfg.Queue.Results,
			"backend", cfg.Queue.Backend,
		)

		g, gctx := errgroup.WithContext(ctx)
		for i := range concurrency {
			g.Go(func() error {
				return consume(gctx, i, requests, evaluator)
			})
		}

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scoring loop failed")
			return err
		}

		logger.Logger.InfoContext(ctx, "Scoring worker stopped")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "")
		return nil
	},
}

// Dequeues one request at a time until ctx is cancelled. Handler failures stay on the
// queue for redelivery and never stop the loop.
func consume(ctx context.Context, slot int, requests queue.Queuer, handler queue.MessageHandler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := requests.Dequeue(ctx, pollTimeout, handler)
		if err != nil && ctx.Err() == nil {
			logger.Logger.WarnContext(ctx, "failed to handle scoring request", "error", err, "slot", slot)
		}

		if once {
			return nil
		}
	}
}

const exitSetup = 2

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().IntVar(&concurrency, "concurrency", 2, "Requests scored in parallel")
	scoreCmd.Flags().DurationVar(
		&pollTimeout,
		"poll-timeout",
		10*time.Minute,
		"How long a dequeued request stays invisible while it is scored",
	)
	scoreCmd.Flags().BoolVar(&once, "once", false, "Handle a single dequeue per slot and exit")
}
