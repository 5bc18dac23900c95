package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/followup-engine/internal/domain"
	"github.com/ignite/followup-engine/internal/eligibility"
	"github.com/ignite/followup-engine/internal/ledger"
	"github.com/ignite/followup-engine/internal/pkg/logger"
	"github.com/ignite/followup-engine/internal/workinghours"

	"github.com/google/uuid"
)

// Slots are the fixed-slot identifiers accepted by RunSlot.
var Slots = []string{"morning", "midday", "afternoon"}

// ValidSlot reports whether the identifier names a known fixed slot.
func ValidSlot(slot string) bool {
	for _, s := range Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// DefaultSendTimeout bounds a single transport call so one slow delivery
// cannot stall the rest of the batch.
const DefaultSendTimeout = 30 * time.Second

// BatchSummary is the result of one scheduling pass. It is the engine's only
// user-visible surface, consumed by operational tooling and the HTTP trigger.
type BatchSummary struct {
	Success            bool      `json:"success"`
	Mode               string    `json:"mode"` // "continuous" or "slot"
	Slot               string    `json:"slot,omitempty"`
	EmailsAnalyzed     int       `json:"emails_analyzed"`
	EmailsEligible     int       `json:"emails_eligible"`
	FollowupsScheduled int       `json:"followups_scheduled,omitempty"`
	FollowupsSent      int       `json:"followups_sent,omitempty"`
	FollowupsFailed    int       `json:"followups_failed"`
	Errors             []string  `json:"errors,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}

// Deps bundles the collaborators a Scheduler needs.
type Deps struct {
	Emails    EmailRepository
	Attempts  AttemptRepository
	History   ledger.History
	Templates TemplateRepository
	Settings  SettingsRepository
	Bounces   BounceChecker
	Renderer  Renderer
	Transport Transport
}

// Scheduler runs followup scheduling passes in both operating modes.
// Policy, calendar, and templates are read once per pass so a batch always
// evaluates against a single consistent snapshot.
type Scheduler struct {
	emails    EmailRepository
	attempts  AttemptRepository
	ledger    *ledger.Builder
	templates TemplateRepository
	settings  SettingsRepository
	bounces   BounceChecker
	renderer  Renderer
	transport Transport

	mailbox     string
	sendTimeout time.Duration
	nowFn       func() time.Time
}

// NewScheduler creates a followup scheduler.
func NewScheduler(deps Deps) *Scheduler {
	return &Scheduler{
		emails:      deps.Emails,
		attempts:    deps.Attempts,
		ledger:      ledger.NewBuilder(deps.History),
		templates:   deps.Templates,
		settings:    deps.Settings,
		bounces:     deps.Bounces,
		renderer:    deps.Renderer,
		transport:   deps.Transport,
		sendTimeout: DefaultSendTimeout,
		nowFn:       time.Now,
	}
}

// SetMailbox restricts candidate selection to one sender address (debugging).
func (s *Scheduler) SetMailbox(mailbox string) { s.mailbox = mailbox }

// SetSendTimeout overrides the per-email transport timeout.
func (s *Scheduler) SetSendTimeout(d time.Duration) { s.sendTimeout = d }

// SetNow overrides the clock (tests).
func (s *Scheduler) SetNow(now func() time.Time) { s.nowFn = now }

// snapshot is the per-batch read of shared configuration.
type snapshot struct {
	policy    domain.FollowupPolicy
	calendar  workinghours.Config
	templates []domain.FollowupTemplate
}

func (s *Scheduler) loadSnapshot(ctx context.Context) (*snapshot, error) {
	policy, err := s.settings.FollowupPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load followup policy: %w", err)
	}
	if problems := policy.Validate(); len(problems) > 0 {
		logger.Warn("followup policy invalid, using defaults", "problems", fmt.Sprint(problems))
		policy = domain.DefaultFollowupPolicy()
	}

	calendar, err := s.settings.WorkingHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	if problems := calendar.Validate(); len(problems) > 0 {
		logger.Warn("working hours config invalid, using defaults", "problems", fmt.Sprint(problems))
		calendar = workinghours.Default()
	}

	templates, err := s.templates.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	return &snapshot{policy: policy, calendar: calendar, templates: templates}, nil
}

// RunScheduling executes one continuous-mode pass: eligible emails get a new
// attempt persisted in 'scheduled' state with a working-hours-adjusted
// scheduled_for; a separate delivery step sends them later. The returned
// error is non-nil only for fatal conditions (configuration or candidate
// fetch failures); per-email failures are collected in the summary.
func (s *Scheduler) RunScheduling(ctx context.Context) (BatchSummary, error) {
	now := s.nowFn()
	sum := BatchSummary{Mode: "continuous", StartedAt: now}

	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return s.fail(sum, err), err
	}
	emails, err := s.emails.ListPending(ctx, s.mailbox)
	if err != nil {
		err = fmt.Errorf("list pending emails: %w", err)
		return s.fail(sum, err), err
	}

	for _, email := range emails {
		sum.EmailsAnalyzed++
		decision, summary, err := s.evaluate(ctx, email, snap, now)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", email.ID, err))
			continue
		}
		if decision == nil {
			continue // bounced, excluded from candidacy
		}
		if !decision.Eligible {
			s.handleIneligible(ctx, email, *decision)
			continue
		}

		sum.EmailsEligible++
		if err := s.scheduleAttempt(ctx, email, *decision, summary, snap, now); err != nil {
			if errors.Is(err, ErrDuplicateSequence) {
				logger.Debug("attempt already scheduled", "email", email.ID.String(), "sequence", fmt.Sprint(decision.NextSequence))
				continue
			}
			sum.FollowupsFailed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", email.ID, err))
			continue
		}
		sum.FollowupsScheduled++
	}

	sum.Success = true
	sum.FinishedAt = s.nowFn()
	logger.Info("scheduling pass complete",
		"analyzed", fmt.Sprint(sum.EmailsAnalyzed),
		"eligible", fmt.Sprint(sum.EmailsEligible),
		"scheduled", fmt.Sprint(sum.FollowupsScheduled),
		"errors", fmt.Sprint(len(sum.Errors)))
	return sum, nil
}

// RunSlot executes one fixed-slot pass: eligible emails are sent immediately
// through the transport and recorded as sent (or failed, with the reason
// kept). Returns ErrUnknownSlot for identifiers outside the known set.
func (s *Scheduler) RunSlot(ctx context.Context, slot string) (BatchSummary, error) {
	now := s.nowFn()
	sum := BatchSummary{Mode: "slot", Slot: slot, StartedAt: now}

	if !ValidSlot(slot) {
		err := fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
		return s.fail(sum, err), err
	}

	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return s.fail(sum, err), err
	}
	emails, err := s.emails.ListPending(ctx, s.mailbox)
	if err != nil {
		err = fmt.Errorf("list pending emails: %w", err)
		return s.fail(sum, err), err
	}

	for _, email := range emails {
		sum.EmailsAnalyzed++
		decision, _, err := s.evaluate(ctx, email, snap, now)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", email.ID, err))
			continue
		}
		if decision == nil {
			continue
		}
		if !decision.Eligible {
			s.handleIneligible(ctx, email, *decision)
			continue
		}

		sum.EmailsEligible++
		if err := s.sendNow(ctx, email, *decision, snap, now); err != nil {
			if errors.Is(err, ErrDuplicateSequence) {
				continue
			}
			sum.FollowupsFailed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", email.ID, err))
			continue
		}
		sum.FollowupsSent++

		// Reaching the final sequence in this pass hands the thread to a human.
		if decision.NextSequence == snap.policy.MaxFollowups {
			if err := s.emails.UpdateStatus(ctx, email.ID, domain.EmailManualHandling); err != nil {
				sum.Errors = append(sum.Errors, fmt.Sprintf("%s: transition to manual handling: %v", email.ID, err))
			}
		}
	}

	sum.Success = true
	sum.FinishedAt = s.nowFn()
	logger.Info("slot pass complete",
		"slot", slot,
		"analyzed", fmt.Sprint(sum.EmailsAnalyzed),
		"sent", fmt.Sprint(sum.FollowupsSent),
		"failed", fmt.Sprint(sum.FollowupsFailed))
	return sum, nil
}

// evaluate runs the bounce filter, ledger aggregation, and eligibility rules
// for one candidate. A nil decision with nil error means the email is
// excluded from candidacy entirely (non-retryable bounce).
func (s *Scheduler) evaluate(ctx context.Context, email domain.TrackedEmail, snap *snapshot, now time.Time) (*eligibility.Decision, ledger.Summary, error) {
	bounce, err := s.bounces.BounceStatus(ctx, email.ID)
	if err != nil {
		return nil, ledger.Summary{}, fmt.Errorf("bounce lookup: %w", err)
	}
	if bounce.Excluded() {
		return nil, ledger.Summary{}, nil
	}

	summary, err := s.ledger.Summarize(ctx, email, now, snap.calendar.Location())
	if err != nil {
		return nil, ledger.Summary{}, err
	}

	taken, err := s.attempts.HasActiveAttempt(ctx, email.ID, summary.NextSequence())
	if err != nil {
		return nil, ledger.Summary{}, fmt.Errorf("idempotence check: %w", err)
	}

	decision := eligibility.Evaluate(eligibility.Input{
		Email:             email,
		Summary:           summary,
		Policy:            snap.policy,
		Templates:         snap.templates,
		NextSequenceTaken: taken,
		Now:               now,
	})
	return &decision, summary, nil
}

// handleIneligible applies terminal status transitions so capped or expired
// emails stop being re-evaluated on every pass.
func (s *Scheduler) handleIneligible(ctx context.Context, email domain.TrackedEmail, d eligibility.Decision) {
	var status domain.EmailStatus
	switch {
	case d.CapReached:
		status = domain.EmailMaxReached
	case d.DeadlineExceeded:
		status = domain.EmailExpired
	default:
		return
	}
	if err := s.emails.UpdateStatus(ctx, email.ID, status); err != nil {
		logger.Warn("status transition failed", "email", email.ID.String(), "status", string(status), "error", err.Error())
	}
}

// scheduleAttempt renders and persists one attempt in 'scheduled' state.
// The target instant is last activity plus the level's minimum delay,
// shifted forward to working hours when needed.
func (s *Scheduler) scheduleAttempt(ctx context.Context, email domain.TrackedEmail, d eligibility.Decision, summary ledger.Summary, snap *snapshot, now time.Time) error {
	subject, body, err := s.renderer.Render(*d.Template, email, d.NextSequence)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	delay := snap.policy.MinDelayHours(d.NextSequence, d.Template)
	target := summary.LastActivityAt.Add(time.Duration(delay * float64(time.Hour)))
	adjusted, wasAdjusted := workinghours.NextWorkingInstant(target, snap.calendar)

	attempt := &domain.FollowupAttempt{
		ID:                      uuid.New(),
		EmailID:                 email.ID,
		TemplateID:              d.Template.ID,
		Sequence:                d.NextSequence,
		Subject:                 subject,
		Body:                    body,
		ScheduledFor:            adjusted,
		Status:                  domain.AttemptScheduled,
		AdjustedForWorkingHours: wasAdjusted,
		CreatedAt:               now,
	}
	if wasAdjusted {
		attempt.AdjustmentHours = adjusted.Sub(target).Hours()
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		return err
	}
	logger.Info("followup scheduled",
		"email", email.ID.String(),
		"sequence", fmt.Sprint(attempt.Sequence),
		"scheduled_for", attempt.ScheduledFor.Format(time.RFC3339),
		"adjusted", fmt.Sprint(wasAdjusted))
	return nil
}

// sendNow renders and delivers one followup immediately, recording the
// attempt as sent or failed. Transport failures are recorded, never retried
// within the same pass.
func (s *Scheduler) sendNow(ctx context.Context, email domain.TrackedEmail, d eligibility.Decision, snap *snapshot, now time.Time) error {
	subject, body, err := s.renderer.Render(*d.Template, email, d.NextSequence)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	attempt := &domain.FollowupAttempt{
		ID:           uuid.New(),
		EmailID:      email.ID,
		TemplateID:   d.Template.ID,
		Sequence:     d.NextSequence,
		Subject:      subject,
		Body:         body,
		ScheduledFor: now,
		Status:       domain.AttemptSent,
		CreatedAt:    now,
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	sendErr := s.transport.Send(sendCtx, domain.OutboundMessage{
		From:           email.Sender,
		To:             email.Recipients,
		Subject:        subject,
		Body:           body,
		ConversationID: email.ConversationID,
	})

	if sendErr != nil {
		attempt.Status = domain.AttemptFailed
		attempt.FailureReason = sendErr.Error()
	} else {
		sentAt := s.nowFn()
		attempt.SentAt = &sentAt
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		return err
	}
	if sendErr != nil {
		return fmt.Errorf("send: %w", sendErr)
	}
	return nil
}

// DeliverDue is the continuous-mode delivery step: it sends attempts whose
// scheduled_for has arrived and marks them sent or failed. The email's
// status is re-read at delivery time: the scheduling-to-delivery window can
// span days once working hours are applied, and an attempt whose email has
// since left the pending state (responded, stopped, bounced) is cancelled
// instead of sent. Returns the number delivered. Per-attempt failures are
// recorded and skipped.
func (s *Scheduler) DeliverDue(ctx context.Context, limit int) (int, error) {
	now := s.nowFn()
	due, err := s.attempts.ListDue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due attempts: %w", err)
	}

	delivered := 0
	for _, attempt := range due {
		email, err := s.emails.Get(ctx, attempt.EmailID)
		if err != nil {
			logger.Warn("due attempt without email", "attempt", attempt.ID.String(), "error", err.Error())
			if markErr := s.attempts.MarkFailed(ctx, attempt.ID, "tracked email missing"); markErr != nil {
				logger.Error("mark failed", "attempt", attempt.ID.String(), "error", markErr.Error())
			}
			continue
		}

		if email.Status != domain.EmailPending {
			logger.Info("cancelling stale attempt", "attempt", attempt.ID.String(), "email_status", string(email.Status))
			if err := s.attempts.Cancel(ctx, attempt.ID); err != nil {
				logger.Error("cancel attempt", "attempt", attempt.ID.String(), "error", err.Error())
			}
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		sendErr := s.transport.Send(sendCtx, domain.OutboundMessage{
			From:           email.Sender,
			To:             email.Recipients,
			Subject:        attempt.Subject,
			Body:           attempt.Body,
			ConversationID: email.ConversationID,
		})
		cancel()

		if sendErr != nil {
			if err := s.attempts.MarkFailed(ctx, attempt.ID, sendErr.Error()); err != nil {
				logger.Error("mark failed", "attempt", attempt.ID.String(), "error", err.Error())
			}
			continue
		}
		if err := s.attempts.MarkSent(ctx, attempt.ID, s.nowFn()); err != nil {
			logger.Error("mark sent", "attempt", attempt.ID.String(), "error", err.Error())
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (s *Scheduler) fail(sum BatchSummary, err error) BatchSummary {
	sum.Success = false
	sum.Errors = append(sum.Errors, err.Error())
	sum.FinishedAt = s.nowFn()
	logger.Error("scheduling pass aborted", "mode", sum.Mode, "error", err.Error())
	return sum
}
