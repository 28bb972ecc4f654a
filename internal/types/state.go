package types

// TriggerState is the string-valued state persisted in the base trigger row
// (spec §4.4). DELETED is never persisted; it is returned by state queries
// when the row is absent, matching the original JDBC store's behaviour.
type TriggerState string

const (
	StateWaiting       TriggerState = "WAITING"
	StateAcquired      TriggerState = "ACQUIRED"
	StateExecuting     TriggerState = "EXECUTING"
	StatePaused        TriggerState = "PAUSED"
	StateBlocked       TriggerState = "BLOCKED"
	StatePausedBlocked TriggerState = "PAUSED_BLOCKED"
	StateComplete      TriggerState = "COMPLETE"
	StateError         TriggerState = "ERROR"
	StateDeleted       TriggerState = "DELETED"
)

// MisfireInstruction is the integer policy code persisted on the trigger row
// (spec §3, §4.7). The concrete values mirror the reference Quartz store so
// that a façade ported from the same source needs no remapping.
type MisfireInstruction int

const (
	// MisfireInstructionSmartPolicy lets the trigger variant pick a default.
	MisfireInstructionSmartPolicy MisfireInstruction = 0
	// MisfireInstructionFireNow sets next-fire-time to now.
	MisfireInstructionFireNow MisfireInstruction = 1
	// MisfireInstructionDoNothing advances next-fire-time past now using the
	// variant's natural schedule, without an extra fire.
	MisfireInstructionDoNothing MisfireInstruction = 2
	// MisfireInstructionRescheduleNowWithExistingCount sets next-fire-time to
	// now, keeping the existing times-triggered count and repeat interval.
	MisfireInstructionRescheduleNowWithExistingCount MisfireInstruction = 3
)

// EntryState is the state of a fired-trigger ledger entry (spec §3).
type EntryState string

const (
	EntryAcquired  EntryState = "ACQUIRED"
	EntryExecuting EntryState = "EXECUTING"
)
