package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmailStatus enumerates the lifecycle states of a tracked email.
// Transitions only move forward: a bounced or responded email never
// returns to pending.
type EmailStatus string

const (
	EmailPending        EmailStatus = "pending"
	EmailResponded      EmailStatus = "responded"
	EmailStopped        EmailStatus = "stopped"
	EmailMaxReached     EmailStatus = "max_reached"
	EmailBounced        EmailStatus = "bounced"
	EmailExpired        EmailStatus = "expired"
	EmailManualHandling EmailStatus = "requires_manual_handling"
)

// TrackedEmail is an outbound email being monitored for a reply. Created by
// the inbound-detection collaborator; this engine only reads it and moves its
// status forward.
type TrackedEmail struct {
	ID             uuid.UUID   `json:"id"`
	Sender         string      `json:"sender"`
	Recipients     []string    `json:"recipients"`
	Subject        string      `json:"subject"`
	SentAt         time.Time   `json:"sent_at"`
	Status         EmailStatus `json:"status"`
	BounceType     *string     `json:"bounce_type,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	RecipientName  string      `json:"recipient_name,omitempty"`
	SenderName     string      `json:"sender_name,omitempty"`
}

// BounceStatus is the bounce-lookup result for a tracked email.
// A non-retryable bounce permanently excludes the email from followups.
type BounceStatus struct {
	HasBounced bool   `json:"has_bounced"`
	BounceType string `json:"bounce_type,omitempty"`
	CanRetry   bool   `json:"can_retry"`
}

// Excluded reports whether the bounce state disqualifies the email
// from any further followup.
func (b BounceStatus) Excluded() bool {
	return b.HasBounced && !b.CanRetry
}

// OutboundMessage is the fully-rendered message handed to a mail transport.
// ConversationID, when set, threads the message as a reply to the original
// email at the provider.
type OutboundMessage struct {
	From           string   `json:"from"`
	To             []string `json:"to"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	ConversationID string   `json:"conversation_id,omitempty"`
}
