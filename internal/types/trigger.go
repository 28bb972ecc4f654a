package types

import "time"

// TriggerType discriminates the trigger variant, persisted as TRIGGER_TYPE
// (spec §3, §6, §9's "variant polymorphism over triggers" note).
type TriggerType string

const (
	TriggerTypeSimple TriggerType = "SIMPLE"
	TriggerTypeCron   TriggerType = "CRON"
	TriggerTypeBlob   TriggerType = "BLOB"
)

// SimpleTrigger is the variant payload for a fixed-count, fixed-interval
// repeat schedule.
type SimpleTrigger struct {
	// RepeatCount is the number of additional times the trigger fires after
	// its first fire; -1 means repeat indefinitely.
	RepeatCount int64
	// RepeatIntervalMs is the interval between fires, in milliseconds.
	RepeatIntervalMs int64
	TimesTriggered   int64
}

// RepeatIndefinitely is the sentinel RepeatCount value meaning "forever".
const RepeatIndefinitely int64 = -1

// CronTrigger is the variant payload for a cron-expression schedule.
type CronTrigger struct {
	CronExpression string
	TimeZoneID     string
}

// BlobTrigger is the extensibility escape hatch: an opaque, previously
// serialised trigger payload the store persists and returns unexamined.
type BlobTrigger struct {
	Data []byte
}

// Trigger is the base trigger row plus exactly one populated variant
// payload, selected by Type (spec §3 invariant: "exactly one variant row
// exists per base trigger row").
type Trigger struct {
	Key    TriggerKey
	JobKey JobKey

	Description string
	Volatile    bool

	// NextFireTime is nil iff the trigger has no further scheduled fires
	// (spec §3 invariant). Encoded on disk as -1 (spec §9's Open Question,
	// resolved uniformly: nil in memory, -1 on disk, always).
	NextFireTime *time.Time
	PrevFireTime *time.Time

	StartTime time.Time
	EndTime   *time.Time

	CalendarName string // empty means "no calendar"

	MisfireInstruction MisfireInstruction
	State              TriggerState

	JobDataMap *JobDataMap // may be nil; an empty map is distinct from "no override"

	Type   TriggerType
	Simple *SimpleTrigger
	Cron   *CronTrigger
	Blob   *BlobTrigger

	Listeners []string
}

// HasCalendar reports whether the trigger references a calendar.
func (t *Trigger) HasCalendar() bool {
	return t.CalendarName != ""
}
