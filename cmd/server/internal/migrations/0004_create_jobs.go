package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0004, Down0004)
}

func Up0004(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE jobs (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v7(),
	owner_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	raw_description TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'active', 'closed')),
	last_activity_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `CREATE INDEX jobs_owner_id_idx ON jobs (owner_id, created_at DESC);`},
		statement{query: `
CREATE TABLE parsed_schemas (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v7(),
	job_id UUID NOT NULL UNIQUE REFERENCES jobs (id) ON DELETE CASCADE,
	function TEXT NOT NULL,
	role_family TEXT NOT NULL DEFAULT '',
	seniority TEXT NOT NULL,
	decision_context TEXT NOT NULL DEFAULT '',
	competencies JSONB NOT NULL DEFAULT '[]'::jsonb,
	tools JSONB NOT NULL DEFAULT '[]'::jsonb,
	constraints JSONB NOT NULL DEFAULT '[]'::jsonb,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	raw_response TEXT NOT NULL DEFAULT '',
	validation_errors JSONB NOT NULL DEFAULT '[]'::jsonb,
	validation_warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
	is_valid BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
	)
}

func Down0004(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE parsed_schemas;`},
		statement{query: `DROP TABLE jobs;`},
	)
}
