package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/followup-engine/internal/domain"
	"github.com/ignite/followup-engine/internal/service/followup"
)

// AttemptRepo implements followup.AttemptRepository and ledger.History
// against PostgreSQL. The followup_attempts table carries a partial unique
// index on (email_id, sequence) over live (not cancelled, not failed) rows;
// Create maps the resulting 23505 to followup.ErrDuplicateSequence.
type AttemptRepo struct{ db *sql.DB }

// NewAttemptRepo creates a Postgres-backed attempt repository.
func NewAttemptRepo(db *sql.DB) *AttemptRepo { return &AttemptRepo{db: db} }

const attemptColumns = `id, email_id, template_id, sequence, subject, body,
	       scheduled_for, sent_at, status, COALESCE(failure_reason,''),
	       adjusted_for_working_hours, adjustment_hours, created_at`

func scanAttempt(row interface{ Scan(...interface{}) error }) (*domain.FollowupAttempt, error) {
	a := &domain.FollowupAttempt{}
	err := row.Scan(
		&a.ID, &a.EmailID, &a.TemplateID, &a.Sequence, &a.Subject, &a.Body,
		&a.ScheduledFor, &a.SentAt, &a.Status, &a.FailureReason,
		&a.AdjustedForWorkingHours, &a.AdjustmentHours, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AttemptRepo) Create(ctx context.Context, a *domain.FollowupAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO followup_attempts
			(id, email_id, template_id, sequence, subject, body,
			 scheduled_for, sent_at, status, failure_reason,
			 adjusted_for_working_hours, adjustment_hours, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, a.EmailID, a.TemplateID, a.Sequence, a.Subject, a.Body,
		a.ScheduledFor, a.SentAt, a.Status, nullIfEmpty(a.FailureReason),
		a.AdjustedForWorkingHours, a.AdjustmentHours, a.CreatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return followup.ErrDuplicateSequence
	}
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepo) HasActiveAttempt(ctx context.Context, emailID uuid.UUID, sequence int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM followup_attempts
			WHERE email_id = $1 AND sequence = $2 AND status NOT IN ('cancelled', 'failed')
		)
	`, emailID, sequence).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active attempt: %w", err)
	}
	return exists, nil
}

func (r *AttemptRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.FollowupAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM followup_attempts
		WHERE status = 'scheduled' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.FollowupAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AttemptRepo) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE followup_attempts SET status = 'sent', sent_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark attempt sent: %w", err)
	}
	return nil
}

func (r *AttemptRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE followup_attempts SET status = 'cancelled' WHERE id = $1 AND status = 'scheduled'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("cancel attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE followup_attempts SET status = 'failed', failure_reason = $2 WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("mark attempt failed: %w", err)
	}
	return nil
}

// TotalFollowups counts sent automatic attempts plus manual followups in a
// single round trip. The sum is computed server-side so concurrent passes
// never see a stale client-side count.
func (r *AttemptRepo) TotalFollowups(ctx context.Context, emailID uuid.UUID) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM followup_attempts
			 WHERE email_id = $1 AND status = 'sent') +
			(SELECT COUNT(*) FROM manual_followups
			 WHERE email_id = $1)
	`, emailID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count followups: %w", err)
	}
	return total, nil
}

func (r *AttemptRepo) LastSentAttempt(ctx context.Context, emailID uuid.UUID) (*domain.FollowupAttempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM followup_attempts
		WHERE email_id = $1 AND status = 'sent'
		ORDER BY sequence DESC
		LIMIT 1
	`, emailID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last sent attempt: %w", err)
	}
	return a, nil
}

func (r *AttemptRepo) LastManualFollowup(ctx context.Context, emailID uuid.UUID) (*domain.ManualFollowup, error) {
	m := &domain.ManualFollowup{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email_id, sequence, detected_at
		FROM manual_followups
		WHERE email_id = $1
		ORDER BY detected_at DESC
		LIMIT 1
	`, emailID).Scan(&m.ID, &m.EmailID, &m.Sequence, &m.DetectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last manual followup: %w", err)
	}
	return m, nil
}

func (r *AttemptRepo) SentAttemptsSince(ctx context.Context, emailID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM followup_attempts
		WHERE email_id = $1 AND status = 'sent' AND sent_at >= $2
	`, emailID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sent since: %w", err)
	}
	return n, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
