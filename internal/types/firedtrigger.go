package types

import "time"

// FiredTrigger is one in-flight fire-instance ledger row (spec §3, §4.5).
// It is inserted at acquisition, updated at fire, and deleted at completion
// or cluster recovery.
type FiredTrigger struct {
	// FireInstanceID is globally unique, minted by the owning scheduler
	// instance (spec §3 invariant: unique across all instances).
	FireInstanceID string

	TriggerKey TriggerKey
	Volatile   bool

	InstanceID string
	FiredTime  time.Time
	State      EntryState

	// JobKey, Stateful and RequestsRecovery are populated once the job is
	// bound, at or after firing (spec §3).
	JobKey           JobKey
	JobBound         bool
	Stateful         bool
	RequestsRecovery bool
}
