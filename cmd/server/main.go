package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	sloggorm "github.com/orandin/slog-gorm"
	otellib "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/hirelens/assessment-api/cmd/server/internal/jobs"
	servermiddleware "github.com/hirelens/assessment-api/cmd/server/internal/middleware"
	"github.com/hirelens/assessment-api/cmd/server/internal/migrations"
	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/routes"
	routesv1 "github.com/hirelens/assessment-api/cmd/server/internal/routes/v1"
	"github.com/hirelens/assessment-api/cmd/server/internal/taskrunner"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/config"
	"github.com/hirelens/assessment-api/internal/llm"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/otel"
	"github.com/hirelens/assessment-api/internal/queue"
	"github.com/hirelens/assessment-api/internal/scoring"
	"github.com/hirelens/assessment-api/internal/upload"
)

const name string = "github.com/hirelens/assessment-api/server"

var tracer = otellib.Tracer(name)

type server struct {
	router       *echo.Echo
	config       *config.Config
	db           *gorm.DB
	taskRunner   *taskrunner.Client
	otelShutdown func(context.Context) error
	scorer       *jobs.Scorer
	sweeper      *jobs.Sweeper
	requests     queue.Queuer
	results      queue.Queuer
	cancelLoops  func()
}

func openDB(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	ctx, span := tracer.Start(ctx, "openDB")
	defer span.End()

	gormLogger := slog.New(logger.Handler)

	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)
	if cfg.Logging.Gorm.TraceQueries {
		sg = sloggorm.New(
			sloggorm.WithHandler(gormLogger.Handler()),
			sloggorm.WithTraceAll(),
			sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
		)
	}

	span.AddEvent("initialized gorm logging")

	db, err := gorm.Open(
		postgres.Open(cfg.PostgresDSN()),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire underlying database connection")
		return nil, fmt.Errorf("failed to acquire underlying database connection: %w", err)
	}

	// Configure db connection pool
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(cfg.Postgres.ConnectionTTL)

	span.AddEvent("initialized database connection")

	err = db.Use(gormtracing.NewPlugin())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to add otel plugin to gorm")
		return nil, fmt.Errorf("failed to add otel plugin to gorm: %w", err)
	}

	span.AddEvent("added the otel plugin to gorm")

	err = migrations.Up(ctx, db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to preform database migrations")
		return nil, fmt.Errorf("failed to perform database migrations: %w", err)
	}

	span.AddEvent("migrated database to latest version")
	span.SetStatus(codes.Ok, "database ready")
	return db, nil
}

func initServer(ctx context.Context) (*server, error) {
	server := new(server)

	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize server config: %w", err)
	}
	server.config = cfg

	if err := cfg.RequireAuth(); err != nil {
		return nil, err
	}

	shutdownOTel, err := otel.SetupOTelSDK(ctx, "assessment-api", cfg.Logging.UseOTLP)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL SDK: %w", err)
	}
	defer func() {
		// Something failed to initialize, make sure everything gets flushed to the server
		if server.otelShutdown == nil {
			otelShutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				time.Second*time.Duration(cfg.GracefulShutdownSecs),
			)
			defer cancel()

			if err = shutdownOTel(otelShutdownCtx); err != nil {
				logger.Logger.Error("failed to flush otel data", "error", err)
			}
		}
	}()

	ctx, span := tracer.Start(ctx, "initServer")
	defer span.End()

	logger.SetLevel(cfg.Logging.App.Level)

	db, err := openDB(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open database")
		return nil, err
	}

	collaborator, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct llm collaborator")
		return nil, fmt.Errorf("failed to construct llm collaborator: %w", err)
	}

	span.AddEvent("initialized llm collaborator")

	store, err := upload.FromConfig(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct transcript store")
		return nil, fmt.Errorf("failed to construct transcript store: %w", err)
	}
	archiver := upload.NewArchiver(store)
	if !archiver.Enabled() {
		logger.Logger.Warn("transcript archiving is disabled")
	}

	recorder := audit.NewRecorder(&models.AuditStore{DB: db})
	taskRunnerClient := taskrunner.Create()
	scorer := jobs.NewScorer(db, scoring.NewEngine(collaborator), archiver, recorder)

	if cfg.Scoring.Mode == config.ScoringModeQueue {
		server.requests, err = queue.FromConfig(ctx, cfg, cfg.Queue.Requests)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to connect to requests queue")
			return nil, err
		}

		server.results, err = queue.FromConfig(ctx, cfg, cfg.Queue.Results)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to connect to results queue")
			return nil, err
		}

		span.AddEvent("connected to scoring queues")
	}

	dispatcher, err := jobs.NewDispatcher(cfg.Scoring.Mode, scorer, taskRunnerClient, server.requests)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct scoring dispatcher")
		return nil, err
	}

	v1Handler := routesv1.NewHandler(db, cfg, collaborator, dispatcher, archiver, recorder)
	middlewareHandler := servermiddleware.Handler{DB: db, JWTSecret: []byte(cfg.Auth.JWTSecret)}

	e, err := routes.BuildEcho(logger.Logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error building router")
		return nil, fmt.Errorf("error building router: %w", err)
	}

	span.AddEvent("created echo router")

	v1Handler.AddRoutes(e, &middlewareHandler)

	server.otelShutdown = shutdownOTel
	server.router = e
	server.db = db
	server.taskRunner = taskRunnerClient
	server.scorer = scorer
	server.sweeper = jobs.NewSweeper(
		db,
		scorer,
		dispatcher,
		recorder,
		cfg.Scoring.StaleAfter,
		cfg.Assessment.DeadlineGrace(),
	)

	return server, nil
}

func (s *server) Start(ctx context.Context) error {
	loopsCtx, cancelLoops := context.WithCancel(ctx)
	s.cancelLoops = cancelLoops

	s.taskRunner.Run(loopsCtx, "sweeper", func(context.Context) {
		s.sweeper.Run(loopsCtx, s.config.Scoring.SweepInterval)
	})

	if s.results != nil {
		s.taskRunner.Run(loopsCtx, "results-monitor", func(context.Context) {
			jobs.MonitorResultsQueue(loopsCtx, s.results, s.scorer)
		})
	}

	logger.Logger.Info("Starting services...", "scoring_mode", s.config.Scoring.Mode)

	err := s.router.Start(s.config.ListenAddress)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *server) Shutdown() error {
	var errs error

	ctx, cancelTimeout := context.WithTimeout(
		context.Background(),
		time.Second*time.Duration(s.config.GracefulShutdownSecs),
	)
	defer cancelTimeout()

	if s.cancelLoops != nil {
		s.cancelLoops()
	}

	// stop taking requests before waiting on the work they started
	if err := s.router.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	if err := s.taskRunner.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to shutdown taskRunner gracefully: %w", err))
	}

	for _, q := range []queue.Queuer{s.requests, s.results} {
		if q != nil {
			errs = errors.Join(errs, q.Close())
		}
	}

	if s.otelShutdown != nil {
		errs = errors.Join(errs, s.otelShutdown(ctx))
	}

	return errs
}

func main() {
	ctx, cancelSignal := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)

	logger.InitSlog()

	server, err := initServer(ctx)
	if err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	errch := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Got shutdown signal!")
		errch <- server.Shutdown()
		close(errch)
	}()

	if err := server.Start(ctx); err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	if err := <-errch; err != nil {
		logger.Logger.Error("Error shutting down server", "error", err)
	}

	cancelSignal()
}
