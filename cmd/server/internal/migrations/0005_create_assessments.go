package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0005, Down0005)
}

func Up0005(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE assessments (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v7(),
	job_id UUID NOT NULL REFERENCES jobs (id) ON DELETE CASCADE,
	status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'active', 'closed')),
	duration_seconds INTEGER NOT NULL CHECK (duration_seconds > 0),
	active_from TIMESTAMP WITH TIME ZONE,
	active_until TIMESTAMP WITH TIME ZONE,
	single_use_links BOOLEAN NOT NULL DEFAULT true,
	raw_generation_output TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMP WITH TIME ZONE,
	closed_at TIMESTAMP WITH TIME ZONE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE UNIQUE INDEX assessments_one_open_per_job_idx
	ON assessments (job_id)
	WHERE status <> 'closed';`},
		statement{query: `
CREATE TABLE questions (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v7(),
	assessment_id UUID NOT NULL REFERENCES assessments (id) ON DELETE CASCADE,
	stage_index INTEGER NOT NULL CHECK (stage_index BETWEEN 1 AND 4),
	position_in_stage INTEGER NOT NULL CHECK (position_in_stage >= 1),
	question_type TEXT NOT NULL
		CHECK (question_type IN ('mcq', 'short_structured', 'hybrid_choice_justification')),
	prompt_text TEXT NOT NULL,
	options JSONB NOT NULL DEFAULT '[]'::jsonb,
	char_limit INTEGER CHECK (char_limit > 0),
	scoring_hint TEXT NOT NULL DEFAULT '',
	internal_intent TEXT NOT NULL
		CHECK (internal_intent IN ('baseline', 'application', 'judgment', 'depth')),
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
	CONSTRAINT questions_position_key UNIQUE (assessment_id, stage_index, position_in_stage)
		DEFERRABLE INITIALLY DEFERRED
);`},
	)
}

func Down0005(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE questions;`},
		statement{query: `DROP TABLE assessments;`},
	)
}
