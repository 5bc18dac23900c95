package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/followup-engine/internal/domain"
	"github.com/ignite/followup-engine/internal/service/followup"
)

// EmailRepo implements followup.EmailRepository and followup.BounceChecker
// against PostgreSQL.
type EmailRepo struct{ db *sql.DB }

// NewEmailRepo creates a Postgres-backed tracked-email repository.
func NewEmailRepo(db *sql.DB) *EmailRepo { return &EmailRepo{db: db} }

const emailColumns = `id, sender, recipients, subject, sent_at, status,
	       bounce_type, COALESCE(conversation_id,''),
	       COALESCE(recipient_name,''), COALESCE(sender_name,'')`

func scanEmail(row interface{ Scan(...interface{}) error }) (*domain.TrackedEmail, error) {
	e := &domain.TrackedEmail{}
	err := row.Scan(
		&e.ID, &e.Sender, pq.Array(&e.Recipients), &e.Subject, &e.SentAt, &e.Status,
		&e.BounceType, &e.ConversationID, &e.RecipientName, &e.SenderName,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EmailRepo) ListPending(ctx context.Context, mailbox string) ([]domain.TrackedEmail, error) {
	q := `
		SELECT ` + emailColumns + `
		FROM tracked_emails
		WHERE status = 'pending'`
	args := []interface{}{}
	if mailbox != "" {
		q += ` AND sender = $1`
		args = append(args, mailbox)
	}
	q += ` ORDER BY sent_at ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending emails: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackedEmail
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EmailRepo) Get(ctx context.Context, id uuid.UUID) (*domain.TrackedEmail, error) {
	e, err := scanEmail(r.db.QueryRowContext(ctx, `
		SELECT `+emailColumns+`
		FROM tracked_emails
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, followup.ErrEmailMissing
	}
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}
	return e, nil
}

func (r *EmailRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EmailStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tracked_emails SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update email status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return followup.ErrEmailMissing
	}
	return nil
}

// BounceStatus reads the most recent delivery-failure record for an email.
// No record means the email never bounced.
func (r *EmailRepo) BounceStatus(ctx context.Context, emailID uuid.UUID) (domain.BounceStatus, error) {
	var b domain.BounceStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT bounce_type, can_retry
		FROM email_bounces
		WHERE email_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, emailID).Scan(&b.BounceType, &b.CanRetry)
	if err == sql.ErrNoRows {
		return domain.BounceStatus{}, nil
	}
	if err != nil {
		return domain.BounceStatus{}, fmt.Errorf("bounce status: %w", err)
	}
	b.HasBounced = true
	return b, nil
}
