package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the states of an automated followup attempt.
type AttemptStatus string

const (
	AttemptScheduled AttemptStatus = "scheduled"
	AttemptSent      AttemptStatus = "sent"
	AttemptFailed    AttemptStatus = "failed"
	AttemptCancelled AttemptStatus = "cancelled"
)

// FollowupAttempt is one scheduled-or-sent automated followup. At most one
// non-cancelled attempt exists per (email, sequence) pair; the database
// enforces this with a partial unique index.
type FollowupAttempt struct {
	ID           uuid.UUID     `json:"id"`
	EmailID      uuid.UUID     `json:"email_id"`
	TemplateID   uuid.UUID     `json:"template_id"`
	Sequence     int           `json:"sequence"`
	Subject      string        `json:"subject"`
	Body         string        `json:"body"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
	Status       AttemptStatus `json:"status"`
	FailureReason string       `json:"failure_reason,omitempty"`

	// Diagnostics recorded at scheduling time.
	AdjustedForWorkingHours bool    `json:"adjusted_for_working_hours"`
	AdjustmentHours         float64 `json:"adjustment_hours,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ManualFollowup is an externally-detected, human-sent followup. The engine
// never creates these; it only counts them toward the followup caps.
type ManualFollowup struct {
	ID         uuid.UUID `json:"id"`
	EmailID    uuid.UUID `json:"email_id"`
	Sequence   int       `json:"sequence"`
	DetectedAt time.Time `json:"detected_at"`
}

// FollowupTemplate is a reusable message template bound to one sequence level.
// Subject and body use Liquid placeholders ({{recipient_name}}, {{subject}}, ...).
type FollowupTemplate struct {
	ID             uuid.UUID `json:"id"`
	Sequence       int       `json:"sequence"`
	SubjectPattern string    `json:"subject_pattern"`
	BodyPattern    string    `json:"body_pattern"`
	DelayHours     float64   `json:"delay_hours"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// FollowupPolicy is the process-wide followup configuration, loaded once per
// scheduling pass so a batch always sees a single consistent snapshot.
type FollowupPolicy struct {
	MaxFollowups        int             `json:"max_followups"`
	MaxPerDay           int             `json:"max_per_day"`
	TotalTimeframeHours float64         `json:"total_timeframe_hours"`
	DelayOverrideHours  map[int]float64 `json:"delay_override_hours,omitempty"`
}

// DefaultDelayHours is the minimum delay applied to a sequence level when
// neither the policy nor the template specifies one.
const DefaultDelayHours = 24.0

// DefaultFollowupPolicy returns the documented fallback policy used when the
// settings store has no (or malformed) policy configured.
func DefaultFollowupPolicy() FollowupPolicy {
	return FollowupPolicy{
		MaxFollowups:        3,
		MaxPerDay:           2,
		TotalTimeframeHours: 720, // 30 days
	}
}

// MinDelayHours resolves the minimum delay for a sequence level: policy
// override first, then the template's own delay, then the default.
func (p FollowupPolicy) MinDelayHours(sequence int, tpl *FollowupTemplate) float64 {
	if d, ok := p.DelayOverrideHours[sequence]; ok && d > 0 {
		return d
	}
	if tpl != nil && tpl.DelayHours > 0 {
		return tpl.DelayHours
	}
	return DefaultDelayHours
}

// Validate returns a list of violations; an empty list means the policy is usable.
func (p FollowupPolicy) Validate() []string {
	var problems []string
	if p.MaxFollowups <= 0 {
		problems = append(problems, "max_followups must be positive")
	}
	if p.MaxPerDay <= 0 {
		problems = append(problems, "max_per_day must be positive")
	}
	if p.TotalTimeframeHours <= 0 {
		problems = append(problems, "total_timeframe_hours must be positive")
	}
	for seq, d := range p.DelayOverrideHours {
		if seq < 1 {
			problems = append(problems, "delay override sequence levels are 1-based")
		}
		if d <= 0 {
			problems = append(problems, "delay overrides must be positive")
		}
	}
	return problems
}
