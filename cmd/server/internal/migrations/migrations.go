package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/internal/logger"
)

var tracer = otel.Tracer(
	"github.com/hirelens/assessment-api/cmd/server/internal/migrations",
)

// Migrations are registered from Go files, so there is no directory to read
const migrationDir = "."

func init() {
	goose.SetLogger(goose.NopLogger())
}

// Up applies every pending migration
func Up(ctx context.Context, db *gorm.DB) error {
	ctx, span := tracer.Start(ctx, "Up")
	defer span.End()

	rawDB, err := db.DB()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get sql connection")
		return err
	}

	from, err := goose.GetDBVersionContext(ctx, rawDB)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read schema version")
		return err
	}

	if err := goose.UpContext(ctx, rawDB, migrationDir); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to bring migrations up")
		return err
	}

	to, err := goose.GetDBVersionContext(ctx, rawDB)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read schema version")
		return err
	}

	span.SetAttributes(attribute.Int64("version.from", from), attribute.Int64("version.to", to))
	if to != from {
		logger.Logger.InfoContext(ctx, "migrated database", "from", from, "to", to)
	}

	span.SetStatus(codes.Ok, "brought migrations up")
	return nil
}

// Down rolls every migration back
func Down(ctx context.Context, db *gorm.DB) error {
	rawDB, err := db.DB()
	if err != nil {
		return err
	}

	return goose.DownToContext(ctx, rawDB, migrationDir, 0)
}

type statement struct {
	query string
	args  []any
}

func execStatements(ctx context.Context, tx *sql.Tx, statements ...statement) error {
	for _, statement := range statements {
		_, err := tx.ExecContext(ctx, statement.query, statement.args...)
		if err != nil {
			return err
		}
	}

	return nil
}
