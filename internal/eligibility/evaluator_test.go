package eligibility

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignite/followup-engine/internal/domain"
	"github.com/ignite/followup-engine/internal/ledger"
)

var now = time.Date(2026, time.August, 26, 12, 0, 0, 0, time.UTC)

func templates() []domain.FollowupTemplate {
	return []domain.FollowupTemplate{
		{ID: uuid.New(), Sequence: 1, SubjectPattern: "Re: {{subject}}", BodyPattern: "first", DelayHours: 24, Active: true},
		{ID: uuid.New(), Sequence: 2, SubjectPattern: "Re: {{subject}}", BodyPattern: "second", DelayHours: 48, Active: true},
		{ID: uuid.New(), Sequence: 3, SubjectPattern: "Re: {{subject}}", BodyPattern: "third", DelayHours: 72, Active: true},
	}
}

func baseInput() Input {
	email := domain.TrackedEmail{
		ID:     uuid.New(),
		SentAt: now.Add(-48 * time.Hour),
		Status: domain.EmailPending,
	}
	return Input{
		Email: email,
		Summary: ledger.Summary{
			LastActivityAt:   email.SentAt,
			LastActivityType: ledger.ActivityOriginal,
		},
		Policy:    domain.DefaultFollowupPolicy(),
		Templates: templates(),
		Now:       now,
	}
}

func TestEvaluateEligibleFirstFollowup(t *testing.T) {
	d := Evaluate(baseInput())

	assert.True(t, d.Eligible, "reason: %s", d.Reason)
	assert.Equal(t, 1, d.NextSequence)
	assert.Equal(t, 1, d.Template.Sequence)
}

func TestEvaluateTotalCap(t *testing.T) {
	in := baseInput()
	in.Summary.TotalFollowups = in.Policy.MaxFollowups

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.True(t, d.CapReached)

	// Elapsed time never overrides the cap.
	in.Now = now.Add(1000 * time.Hour)
	d = Evaluate(in)
	assert.False(t, d.Eligible)
}

// Two automatic plus one manual followup meet a cap of three; a fourth is
// never eligible.
func TestEvaluateManualFollowupsCountTowardCap(t *testing.T) {
	in := baseInput()
	at := now.Add(-30 * time.Hour)
	in.Summary.TotalFollowups = 3
	in.Summary.LastAutomatic = &domain.FollowupAttempt{Sequence: 2, SentAt: &at}

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.True(t, d.CapReached)
}

func TestEvaluateSequenceCap(t *testing.T) {
	in := baseInput()
	at := now.Add(-80 * time.Hour)
	in.Summary.TotalFollowups = 1 // manual records removed, sequence still advanced
	in.Summary.LastAutomatic = &domain.FollowupAttempt{Sequence: 3, SentAt: &at}

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.Equal(t, 4, d.NextSequence)
	assert.True(t, d.CapReached)
}

func TestEvaluateDailyCap(t *testing.T) {
	in := baseInput()
	in.Summary.SentToday = in.Policy.MaxPerDay

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.Contains(t, d.Reason, "daily cap")
	assert.False(t, d.CapReached)
}

func TestEvaluateIdempotenceGuard(t *testing.T) {
	in := baseInput()
	in.NextSequenceTaken = true

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.Contains(t, d.Reason, "already scheduled")
}

func TestEvaluateMinimumDelay(t *testing.T) {
	in := baseInput()
	in.Summary.LastActivityAt = now.Add(-10 * time.Hour) // template 1 wants 24h

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.Contains(t, d.Reason, "since last activity")
}

func TestEvaluatePolicyDelayOverride(t *testing.T) {
	in := baseInput()
	in.Summary.LastActivityAt = now.Add(-10 * time.Hour)
	in.Policy.DelayOverrideHours = map[int]float64{1: 4}

	d := Evaluate(in)
	assert.True(t, d.Eligible, "reason: %s", d.Reason)
}

// An email past the total timeframe is never eligible, even with zero
// followups sent.
func TestEvaluateTimeframeDeadline(t *testing.T) {
	in := baseInput()
	in.Email.SentAt = now.Add(-time.Duration(in.Policy.TotalTimeframeHours+1) * time.Hour)
	in.Summary.LastActivityAt = in.Email.SentAt

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.True(t, d.DeadlineExceeded)
}

// The deadline flag must be set even when a later condition would already
// skip the email; otherwise the email never reaches its terminal status.
func TestEvaluateTimeframeDeadlineBeatsMissingTemplate(t *testing.T) {
	in := baseInput()
	in.Email.SentAt = now.Add(-time.Duration(in.Policy.TotalTimeframeHours+1) * time.Hour)
	in.Summary.LastActivityAt = in.Email.SentAt
	in.Templates = nil

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.True(t, d.DeadlineExceeded)
}

func TestEvaluateTimeframeDeadlineBeatsUnmetDelay(t *testing.T) {
	in := baseInput()
	in.Email.SentAt = now.Add(-time.Duration(in.Policy.TotalTimeframeHours+1) * time.Hour)
	in.Summary.LastActivityAt = now.Add(-time.Hour) // delay not met

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.True(t, d.DeadlineExceeded)
}

func TestEvaluateNoTemplateForLevel(t *testing.T) {
	in := baseInput()
	in.Templates = in.Templates[1:] // drop level 1

	d := Evaluate(in)
	assert.False(t, d.Eligible)
	assert.Contains(t, d.Reason, "no active template")
}

func TestEvaluateInactiveTemplateIgnored(t *testing.T) {
	in := baseInput()
	in.Templates[0].Active = false

	d := Evaluate(in)
	assert.False(t, d.Eligible)
}

// With duplicate active templates at a level, snapshot order decides.
func TestEvaluateDuplicateTemplatesFirstWins(t *testing.T) {
	in := baseInput()
	dup := in.Templates[0]
	dup.ID = uuid.New()
	dup.BodyPattern = "shadowed"
	in.Templates = append(in.Templates, dup)

	d := Evaluate(in)
	assert.True(t, d.Eligible)
	assert.Equal(t, "first", d.Template.BodyPattern)
}

func TestEvaluateSecondFollowupDelayFromLastActivity(t *testing.T) {
	in := baseInput()
	at := now.Add(-20 * time.Hour)
	in.Email.SentAt = now.Add(-100 * time.Hour)
	in.Summary.TotalFollowups = 1
	in.Summary.LastAutomatic = &domain.FollowupAttempt{Sequence: 1, SentAt: &at}
	in.Summary.LastActivityAt = at
	in.Summary.LastActivityType = ledger.ActivityAutomatic

	// Template 2 wants 48h since last activity; only 20h have passed.
	d := Evaluate(in)
	assert.False(t, d.Eligible)

	in.Now = now.Add(30 * time.Hour)
	d = Evaluate(in)
	assert.True(t, d.Eligible, "reason: %s", d.Reason)
	assert.Equal(t, 2, d.NextSequence)
}
