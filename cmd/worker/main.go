package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hirelens/assessment-api/cmd/worker/cmds"
	"github.com/hirelens/assessment-api/internal/logger"
	otelassessmentapi "github.com/hirelens/assessment-api/internal/otel"
	"github.com/hirelens/assessment-api/internal/types"
	workererrors "github.com/hirelens/assessment-api/internal/worker_errors"
)

func runApp(ctx context.Context) int {
	useOTLP, err := strconv.ParseBool(os.Getenv("USE_OTLP"))
	if err != nil {
		logger.Logger.Warn("USE_OTLP env var is invalid", "error", err)
		useOTLP = false
	}

	shutdown, err := otelassessmentapi.SetupOTelSDK(ctx, "assessment-worker", useOTLP)
	if err != nil {
		logger.Logger.Warn("failed to setup otel sdk", "error", err)
	} else {
		defer func() {
			// ctx is already cancelled on a signal, flush with a fresh one
			fail := shutdown(context.WithoutCancel(ctx))
			if fail != nil {
				logger.Logger.Warn("no clean shutdown for otel", "error", fail)
			}
		}()
	}

	err = cmds.Execute(ctx)
	if err != nil {
		logger.Logger.Error("error executing subcommands", "error", err)

		var ee workererrors.ExitError
		if errors.As(err, &ee) {
			return ee.Code
		}
		return types.ExitErrored
	}

	return types.ExitNormal
}

func main() {
	logger.LogLevel.Set(slog.LevelDebug)
	logger.InitSlog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	code := runApp(ctx)
	cancel()
	os.Exit(code)
}
