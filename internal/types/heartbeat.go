package types

import "time"

// SchedulerState is one scheduler-instance heartbeat row (spec §3, §4.6).
type SchedulerState struct {
	InstanceID       string
	LastCheckinTime  time.Time
	CheckinIntervalMs int64
	// Recoverer is the instance-id of the peer currently processing this
	// instance's recovery, if any.
	Recoverer string
}

// Failed reports whether the heartbeat is stale as of now, per the
// "last-checkin + 2 x interval is in the past" rule (spec §4.6).
func (s SchedulerState) Failed(now time.Time) bool {
	deadline := s.LastCheckinTime.Add(2 * time.Duration(s.CheckinIntervalMs) * 1_000_000)
	return now.After(deadline)
}
