// Package ledger aggregates an email's followup history into the summary
// the eligibility check runs against. It is a read-only step: one summary
// per candidate email per scheduling pass, no writes.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/followup-engine/internal/domain"
)

// ActivityType tags the origin of an email's most recent activity.
type ActivityType string

const (
	ActivityOriginal  ActivityType = "original"
	ActivityAutomatic ActivityType = "automatic"
	ActivityManual    ActivityType = "manual"
)

// Summary is the aggregated followup history for one tracked email.
type Summary struct {
	// TotalFollowups counts automatic sent plus manual followups. It is an
	// exact server-side aggregate; the max-followups gate depends on it.
	TotalFollowups int

	// LastAutomatic is the highest-sequence automatic followup with a sent
	// timestamp, or nil if none has been sent.
	LastAutomatic *domain.FollowupAttempt

	// LastManual is the most recently detected manual followup, or nil.
	LastManual *domain.ManualFollowup

	// LastActivityAt/Type identify the later of the two above, falling back
	// to the email's own sent_at tagged as "original".
	LastActivityAt   time.Time
	LastActivityType ActivityType

	// SentToday counts automatic followups sent on the current calendar day
	// in the working-hours timezone.
	SentToday int
}

// NextSequence is the sequence number the next automatic followup would take.
func (s Summary) NextSequence() int {
	if s.LastAutomatic == nil {
		return 1
	}
	return s.LastAutomatic.Sequence + 1
}

// History is the read contract the ledger aggregates over. Implementations
// must compute TotalFollowups server-side; client-side counting drifts under
// concurrent inserts.
type History interface {
	TotalFollowups(ctx context.Context, emailID uuid.UUID) (int, error)
	LastSentAttempt(ctx context.Context, emailID uuid.UUID) (*domain.FollowupAttempt, error)
	LastManualFollowup(ctx context.Context, emailID uuid.UUID) (*domain.ManualFollowup, error)
	SentAttemptsSince(ctx context.Context, emailID uuid.UUID, since time.Time) (int, error)
}

// Builder produces summaries from a History source.
type Builder struct {
	history History
}

// NewBuilder creates a summary builder over the given history source.
func NewBuilder(history History) *Builder {
	return &Builder{history: history}
}

// Summarize aggregates the followup history of one email as of now.
// The day boundary for SentToday is midnight in loc.
func (b *Builder) Summarize(ctx context.Context, email domain.TrackedEmail, now time.Time, loc *time.Location) (Summary, error) {
	var sum Summary

	total, err := b.history.TotalFollowups(ctx, email.ID)
	if err != nil {
		return sum, fmt.Errorf("total followups for %s: %w", email.ID, err)
	}
	sum.TotalFollowups = total

	sum.LastAutomatic, err = b.history.LastSentAttempt(ctx, email.ID)
	if err != nil {
		return sum, fmt.Errorf("last automatic followup for %s: %w", email.ID, err)
	}
	sum.LastManual, err = b.history.LastManualFollowup(ctx, email.ID)
	if err != nil {
		return sum, fmt.Errorf("last manual followup for %s: %w", email.ID, err)
	}

	sum.LastActivityAt, sum.LastActivityType = lastActivity(email, sum.LastAutomatic, sum.LastManual)

	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	sum.SentToday, err = b.history.SentAttemptsSince(ctx, email.ID, dayStart)
	if err != nil {
		return sum, fmt.Errorf("followups sent today for %s: %w", email.ID, err)
	}

	return sum, nil
}

// lastActivity picks the most recent of the automatic and manual followups.
// Automatic wins only on strictly-greater timestamps, so an exact tie
// resolves to manual.
func lastActivity(email domain.TrackedEmail, auto *domain.FollowupAttempt, manual *domain.ManualFollowup) (time.Time, ActivityType) {
	switch {
	case auto == nil && manual == nil:
		return email.SentAt, ActivityOriginal
	case manual == nil:
		return sentAt(auto), ActivityAutomatic
	case auto == nil:
		return manual.DetectedAt, ActivityManual
	case sentAt(auto).After(manual.DetectedAt):
		return sentAt(auto), ActivityAutomatic
	default:
		return manual.DetectedAt, ActivityManual
	}
}

func sentAt(a *domain.FollowupAttempt) time.Time {
	if a.SentAt != nil {
		return *a.SentAt
	}
	return a.ScheduledFor
}
