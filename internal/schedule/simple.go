package schedule

import (
	"fmt"
	"time"

	"github.com/quartzdb/jobstore/internal/types"
)

// SimpleCalculator implements Calculator for SimpleTrigger: a fixed-count,
// fixed-interval repeat schedule.
type SimpleCalculator struct{}

// First returns the trigger's configured StartTime as its first fire.
func (SimpleCalculator) First(t *types.Trigger) (*time.Time, error) {
	if t.Simple == nil {
		return nil, fmt.Errorf("simple calculator: trigger %s has no SimpleTrigger payload", t.Key)
	}
	ft := t.StartTime
	return &ft, nil
}

// Next advances TimesTriggered and returns the next fire time, or nil if the
// repeat count has been exhausted.
func (SimpleCalculator) Next(t *types.Trigger, now time.Time) (*time.Time, error) {
	if t.Simple == nil {
		return nil, fmt.Errorf("simple calculator: trigger %s has no SimpleTrigger payload", t.Key)
	}
	s := t.Simple
	if s.RepeatCount != types.RepeatIndefinitely && s.TimesTriggered > s.RepeatCount {
		return nil, nil
	}
	base := now
	if t.NextFireTime != nil {
		base = *t.NextFireTime
	} else if t.PrevFireTime != nil {
		base = *t.PrevFireTime
	}
	s.TimesTriggered++
	if s.RepeatCount != types.RepeatIndefinitely && s.TimesTriggered > s.RepeatCount {
		return nil, nil
	}
	next := base.Add(time.Duration(s.RepeatIntervalMs) * time.Millisecond)
	if t.EndTime != nil && next.After(*t.EndTime) {
		return nil, nil
	}
	return &next, nil
}
