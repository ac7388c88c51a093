package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentsea/taskara/pkg/apierr"
)

// CreateTemplate inserts a task template. Unlike tasks, templates store
// tags/labels as denormalised JSONB columns (see 0001_core_schema.up.sql):
// templates are immutable blueprints, not filtered by tag/label query, so
// the join-table normalisation that tasks need for §4.3 filtering buys
// nothing here.
func (s *Store) CreateTemplate(ctx context.Context, t *TaskTemplate) error {
	paramsJSON, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_templates (id, owner_id, description, max_steps, device, device_type,
			expect_schema, project, parameters, labels, tags, created)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,$11,$12)`,
		t.ID, t.OwnerID, t.Description, t.MaxSteps, t.Device, t.DeviceType,
		nullableJSON(t.ExpectSchema), t.Project, paramsJSON, mustJSON(t.Labels), mustJSON(t.Tags), t.Created)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetTemplate loads a single task template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*TaskTemplate, error) {
	templates, err := s.queryTemplates(ctx, `WHERE id = $1`, []any{id})
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, apierr.ErrNotFound
	}
	return templates[0], nil
}

// FindTemplates returns every template owned by owner.
func (s *Store) FindTemplates(ctx context.Context, ownerID string) ([]*TaskTemplate, error) {
	return s.queryTemplates(ctx, `WHERE owner_id = $1 ORDER BY created DESC`, []any{ownerID})
}

func (s *Store) queryTemplates(ctx context.Context, where string, args []any) ([]*TaskTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, COALESCE(description,''), max_steps, COALESCE(device,''),
			COALESCE(device_type,''), expect_schema, COALESCE(project,''), parameters, labels, tags, created
		FROM task_templates `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []*TaskTemplate
	for rows.Next() {
		t := &TaskTemplate{}
		var paramsJSON, labelsJSON, tagsJSON []byte
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Description, &t.MaxSteps, &t.Device,
			&t.DeviceType, &t.ExpectSchema, &t.Project, &paramsJSON, &labelsJSON, &tagsJSON, &t.Created); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		_ = json.Unmarshal(paramsJSON, &t.Parameters)
		_ = json.Unmarshal(labelsJSON, &t.Labels)
		_ = json.Unmarshal(tagsJSON, &t.Tags)
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_templates WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.ErrNotFound
	}
	return nil
}
