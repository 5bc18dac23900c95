package followup

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/followup-engine/internal/domain"
	"github.com/ignite/followup-engine/internal/workinghours"
)

// EmailRepository is the data access contract for tracked emails.
// Implementations must be safe for concurrent use.
type EmailRepository interface {
	// ListPending returns all emails with status 'pending'. A non-empty
	// mailbox restricts the result to that sender address (debug filter).
	ListPending(ctx context.Context, mailbox string) ([]domain.TrackedEmail, error)

	// Get returns a single email. Returns ErrEmailMissing if it doesn't exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.TrackedEmail, error)

	// UpdateStatus moves an email's status forward.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EmailStatus) error
}

// AttemptRepository persists automated followup attempts. The store carries
// a partial unique index on (email_id, sequence) over live rows, where
// cancelled and failed attempts do not count: a transport failure leaves the
// slot free so a later pass can retry while the email remains eligible. That
// index, not the HasActiveAttempt pre-check, is the authoritative duplicate
// guard.
type AttemptRepository interface {
	// Create inserts a new attempt. Returns ErrDuplicateSequence when the
	// (email, sequence) slot is already occupied by a live attempt.
	Create(ctx context.Context, a *domain.FollowupAttempt) error

	// HasActiveAttempt reports whether a live (scheduled or sent) attempt
	// exists at the given sequence. An optimization for the common case;
	// Create remains the safety net under concurrent passes.
	HasActiveAttempt(ctx context.Context, emailID uuid.UUID, sequence int) (bool, error)

	// ListDue returns scheduled attempts whose scheduled_for has arrived.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.FollowupAttempt, error)

	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// Cancel retires a scheduled attempt without sending it, freeing the
	// (email, sequence) slot. Used when the email left the pending state
	// between scheduling and delivery.
	Cancel(ctx context.Context, id uuid.UUID) error
}

// TemplateRepository supplies the batch's template snapshot.
type TemplateRepository interface {
	// ListActive returns active templates ordered by sequence level, then
	// creation time. With duplicate levels the first row wins.
	ListActive(ctx context.Context) ([]domain.FollowupTemplate, error)
}

// SettingsRepository reads the policy and calendar configuration. Missing or
// malformed settings resolve to the documented defaults (with a warning);
// an error here means the settings store itself is unreachable, which is
// fatal for the batch.
type SettingsRepository interface {
	FollowupPolicy(ctx context.Context) (domain.FollowupPolicy, error)
	WorkingHours(ctx context.Context) (workinghours.Config, error)
}

// BounceChecker looks up delivery-failure state for the original email.
type BounceChecker interface {
	BounceStatus(ctx context.Context, emailID uuid.UUID) (domain.BounceStatus, error)
}

// Renderer produces the subject and body for one followup.
type Renderer interface {
	Render(tpl domain.FollowupTemplate, email domain.TrackedEmail, sequence int) (subject, body string, err error)
}

// Transport delivers a rendered message through the mail provider.
// Implementations own credential acquisition and may simulate delivery
// behind a dry-run flag; the scheduler never branches on that.
type Transport interface {
	Send(ctx context.Context, msg domain.OutboundMessage) error
}
