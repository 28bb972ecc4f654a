package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quartzdb/jobstore/internal/types"
)

// cronParser accepts the standard five-field cron syntax, matching the
// expression format a façade ported from the reference Quartz store would
// already be generating (minute-resolution, no seconds field).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronCalculator implements Calculator for CronTrigger, using
// github.com/robfig/cron/v3 to compute "what fires next" (spec §1: cron
// arithmetic is an external collaborator; this is its concrete adapter).
type CronCalculator struct{}

func (CronCalculator) schedule(t *types.Trigger) (cron.Schedule, *time.Location, error) {
	if t.Cron == nil {
		return nil, nil, fmt.Errorf("cron calculator: trigger %s has no CronTrigger payload", t.Key)
	}
	loc := time.UTC
	if t.Cron.TimeZoneID != "" {
		l, err := time.LoadLocation(t.Cron.TimeZoneID)
		if err != nil {
			return nil, nil, fmt.Errorf("cron calculator: invalid time zone %q: %w", t.Cron.TimeZoneID, err)
		}
		loc = l
	}
	sched, err := cronParser.Parse(t.Cron.CronExpression)
	if err != nil {
		return nil, nil, fmt.Errorf("cron calculator: invalid cron expression %q: %w", t.Cron.CronExpression, err)
	}
	return sched, loc, nil
}

// First returns the first fire at or after the trigger's StartTime.
func (c CronCalculator) First(t *types.Trigger) (*time.Time, error) {
	sched, loc, err := c.schedule(t)
	if err != nil {
		return nil, err
	}
	// Schedule.Next is strictly-after, so step back 1ns to include StartTime.
	next := sched.Next(t.StartTime.In(loc).Add(-time.Nanosecond))
	return &next, nil
}

// Next returns the fire after now per the cron schedule, bounded by the
// trigger's EndTime if set.
func (c CronCalculator) Next(t *types.Trigger, now time.Time) (*time.Time, error) {
	sched, loc, err := c.schedule(t)
	if err != nil {
		return nil, err
	}
	next := sched.Next(now.In(loc))
	if t.EndTime != nil && next.After(*t.EndTime) {
		return nil, nil
	}
	return &next, nil
}
