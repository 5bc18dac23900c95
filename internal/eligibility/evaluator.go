// Package eligibility decides whether a tracked email may receive its next
// automated followup right now. The evaluation is a pure function of the
// email, its activity summary, the policy snapshot, and the current instant;
// the caller supplies the one piece of storage state it needs (whether the
// next sequence slot is already taken).
package eligibility

import (
	"fmt"
	"time"

	"github.com/ignite/followup-engine/internal/domain"
	"github.com/ignite/followup-engine/internal/ledger"
)

// Input bundles everything one evaluation needs.
type Input struct {
	Email   domain.TrackedEmail
	Summary ledger.Summary
	Policy  domain.FollowupPolicy

	// Templates must be the batch's snapshot of active templates, sorted by
	// sequence level then creation time. First match per level wins.
	Templates []domain.FollowupTemplate

	// NextSequenceTaken is true when a live (scheduled or sent) attempt
	// already occupies the next sequence number (the idempotence guard).
	// Failed attempts do not take the slot; they are retried on later passes.
	NextSequenceTaken bool

	Now time.Time
}

// Decision is the outcome of one evaluation. Reason is set whenever
// Eligible is false and explains the first failed condition.
type Decision struct {
	Eligible     bool
	Reason       string
	NextSequence int
	Template     *domain.FollowupTemplate

	// CapReached marks emails that can never become eligible again because
	// the total-followups ceiling is met. Callers transition these to a
	// terminal status instead of re-evaluating them forever.
	CapReached bool

	// DeadlineExceeded marks emails past the total-timeframe ceiling.
	DeadlineExceeded bool
}

func skip(next int, reason string) Decision {
	return Decision{NextSequence: next, Reason: reason}
}

// Evaluate applies the followup eligibility rules in order. Every condition
// must hold; the decision reports the first one that does not.
func Evaluate(in Input) Decision {
	next := in.Summary.NextSequence()

	if in.Summary.TotalFollowups >= in.Policy.MaxFollowups {
		d := skip(next, fmt.Sprintf("total followups %d at or above cap %d", in.Summary.TotalFollowups, in.Policy.MaxFollowups))
		d.CapReached = true
		return d
	}

	if next > in.Policy.MaxFollowups {
		d := skip(next, fmt.Sprintf("next sequence %d exceeds cap %d", next, in.Policy.MaxFollowups))
		d.CapReached = true
		return d
	}

	// The timeframe deadline is terminal, so it is checked with the caps:
	// an expired email must be flagged even when a later condition (missing
	// template, unmet delay) would already skip it, or it is re-evaluated
	// on every pass instead of transitioning to its final status.
	sinceOriginal := in.Now.Sub(in.Email.SentAt).Hours()
	if sinceOriginal > in.Policy.TotalTimeframeHours {
		d := skip(next, fmt.Sprintf("%.0fh since original send exceeds the %.0fh timeframe", sinceOriginal, in.Policy.TotalTimeframeHours))
		d.DeadlineExceeded = true
		return d
	}

	if in.Summary.SentToday >= in.Policy.MaxPerDay {
		return skip(next, fmt.Sprintf("daily cap reached (%d today, max %d)", in.Summary.SentToday, in.Policy.MaxPerDay))
	}

	if in.NextSequenceTaken {
		return skip(next, fmt.Sprintf("sequence %d already scheduled", next))
	}

	tpl := templateForSequence(in.Templates, next)
	if tpl == nil {
		return skip(next, fmt.Sprintf("no active template for sequence %d", next))
	}

	minDelay := in.Policy.MinDelayHours(next, tpl)
	sinceActivity := in.Now.Sub(in.Summary.LastActivityAt).Hours()
	if sinceActivity < minDelay {
		return skip(next, fmt.Sprintf("only %.1fh since last activity, need %.1fh", sinceActivity, minDelay))
	}

	return Decision{
		Eligible:     true,
		NextSequence: next,
		Template:     tpl,
	}
}

// templateForSequence returns the first active template at the given level.
// Level uniqueness is not enforced by the store, so with duplicates the
// snapshot's sort order (sequence, then created_at) decides.
func templateForSequence(templates []domain.FollowupTemplate, sequence int) *domain.FollowupTemplate {
	for i := range templates {
		if templates[i].Sequence == sequence && templates[i].Active {
			return &templates[i]
		}
	}
	return nil
}
