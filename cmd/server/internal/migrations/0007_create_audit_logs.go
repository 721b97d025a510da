package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0007, Down0007)
}

func Up0007(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE audit_logs (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v7(),
	actor_id UUID,
	action TEXT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `CREATE INDEX audit_logs_actor_id_idx ON audit_logs (actor_id, created_at);`},
		statement{query: `
CREATE FUNCTION audit_logs_append_only()
RETURNS TRIGGER AS $$
BEGIN
RAISE EXCEPTION 'audit_logs is append only';
END;
$$ language 'plpgsql';`},
		statement{query: `
CREATE TRIGGER audit_logs_append_only_trigger
BEFORE UPDATE OR DELETE ON audit_logs
FOR EACH ROW EXECUTE PROCEDURE audit_logs_append_only();`},
	)
}

func Down0007(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TRIGGER audit_logs_append_only_trigger ON audit_logs;`},
		statement{query: `DROP FUNCTION audit_logs_append_only();`},
		statement{query: `DROP TABLE audit_logs;`},
	)
}
