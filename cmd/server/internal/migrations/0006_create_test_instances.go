package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0006, Down0006)
}

func Up0006(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE invites (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v7(),
	assessment_id UUID NOT NULL REFERENCES assessments (id) ON DELETE CASCADE,
	token TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
	single_use BOOLEAN NOT NULL DEFAULT true,
	used_at TIMESTAMP WITH TIME ZONE,
	created_by UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE TABLE test_instances (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v7(),
	assessment_id UUID NOT NULL REFERENCES assessments (id) ON DELETE CASCADE,
	invite_id UUID REFERENCES invites (id) ON DELETE SET NULL,
	candidate_name TEXT,
	candidate_email TEXT,
	session_meta JSONB NOT NULL DEFAULT '{}'::jsonb,
	started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	completed_at TIMESTAMP WITH TIME ZONE,
	time_taken_seconds INTEGER,
	status TEXT NOT NULL DEFAULT 'in_progress' CHECK (status IN ('in_progress', 'submitted')),
	current_stage INTEGER NOT NULL DEFAULT 1 CHECK (current_stage BETWEEN 1 AND 3),
	scoring_status TEXT CHECK (scoring_status IN ('pending', 'scoring', 'scored', 'error')),
	scoring_started_at TIMESTAMP WITH TIME ZONE,
	recommendation TEXT CHECK (recommendation IN ('Advance', 'Hold', 'Reject')),
	hr_override TEXT CHECK (hr_override IN ('Advance', 'Hold', 'Reject')),
	overall_score DOUBLE PRECISION,
	scoring_breakdown JSONB,
	scoring_explanation TEXT NOT NULL DEFAULT '',
	raw_scoring_output TEXT NOT NULL DEFAULT '',
	scoring_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `CREATE INDEX test_instances_assessment_id_idx ON test_instances (assessment_id);`},
		statement{query: `
CREATE INDEX test_instances_unfinished_idx
	ON test_instances (status, scoring_status)
	WHERE status = 'in_progress' OR scoring_status IN ('pending', 'scoring');`},
		statement{query: `
CREATE TABLE answers (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v7(),
	instance_id UUID NOT NULL REFERENCES test_instances (id) ON DELETE CASCADE,
	question_id UUID NOT NULL REFERENCES questions (id) ON DELETE CASCADE,
	answer_text TEXT,
	selected_option_id TEXT,
	submitted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	UNIQUE (instance_id, question_id)
);`},
		statement{query: `
CREATE TABLE candidate_submissions (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v7(),
	job_id UUID NOT NULL REFERENCES jobs (id) ON DELETE CASCADE,
	instance_id UUID NOT NULL UNIQUE REFERENCES test_instances (id) ON DELETE CASCADE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
	)
}

func Down0006(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE candidate_submissions;`},
		statement{query: `DROP TABLE answers;`},
		statement{query: `DROP TABLE test_instances;`},
		statement{query: `DROP TABLE invites;`},
	)
}
