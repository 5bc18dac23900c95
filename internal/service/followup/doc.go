// Package followup implements the followup scheduling engine.
//
// The Scheduler orchestrates one batch pass: pull pending tracked emails,
// drop bounced ones, aggregate each email's activity ledger, run the
// eligibility rules, and either persist a scheduled attempt (continuous
// mode) or send immediately (fixed-slot mode). It depends on repository
// interfaces defined in this package and should never import from api/.
//
// Repository implementations live in repository/postgres/.
package followup
