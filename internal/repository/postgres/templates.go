package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/followup-engine/internal/domain"
)

// TemplateRepo implements followup.TemplateRepository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

// ListActive returns the active templates ordered by sequence then creation
// time, so with duplicate sequence levels the oldest template wins.
func (r *TemplateRepo) ListActive(ctx context.Context) ([]domain.FollowupTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sequence, subject_pattern, body_pattern, delay_hours, active, created_at
		FROM followup_templates
		WHERE active = true
		ORDER BY sequence ASC, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.FollowupTemplate
	for rows.Next() {
		var t domain.FollowupTemplate
		if err := rows.Scan(&t.ID, &t.Sequence, &t.SubjectPattern, &t.BodyPattern,
			&t.DelayHours, &t.Active, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
