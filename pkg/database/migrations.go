package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSearchIndexes creates GIN indexes not expressible as plain migration
// DDL dependencies — full-text search over task descriptions and ad-hoc
// lookups into the task parameters JSONB blob. Kept as a post-migration Go
// step, the same shape as the teacher's CreateGINIndexes, because these are
// supplementary search aids rather than schema-defining constraints.
func CreateSearchIndexes(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_tasks_description_gin
		ON tasks USING gin(to_tsvector('english', COALESCE(description, '')))`)
	if err != nil {
		return fmt.Errorf("failed to create description GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parameters_gin
		ON tasks USING gin(parameters)`)
	if err != nil {
		return fmt.Errorf("failed to create parameters GIN index: %w", err)
	}

	return nil
}
