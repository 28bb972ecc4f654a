package schedule

import (
	"time"

	"github.com/quartzdb/jobstore/internal/types"
)

// Calculator computes the next fire time for one trigger variant. The store
// dispatches to the calculator registered for a trigger's Type whenever it
// needs to advance NextFireTime: at fire dispatch (spec §4.5) and at misfire
// policy application (spec §4.7). InsertTrigger does not call it; a trigger
// is stored with the NextFireTime the caller sets.
type Calculator interface {
	// First computes the first fire time at or after startTime.
	First(t *types.Trigger) (*time.Time, error)
	// Next computes the fire time after the trigger's current
	// NextFireTime/PrevFireTime, mutating the variant's own bookkeeping
	// (e.g. SimpleTrigger.TimesTriggered) as a side effect.
	Next(t *types.Trigger, now time.Time) (*time.Time, error)
}

// Registry dispatches to the Calculator registered for a trigger's Type.
type Registry struct {
	byType map[types.TriggerType]Calculator
}

// NewRegistry returns a Registry pre-populated with the standard Simple and
// Cron calculators. Blob triggers, whose arithmetic is opaque to this store
// by design (spec §3), are not registered by default; register one
// explicitly if a façade's blob payload format defines a schedule.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[types.TriggerType]Calculator)}
	r.Register(types.TriggerTypeSimple, SimpleCalculator{})
	r.Register(types.TriggerTypeCron, CronCalculator{})
	return r
}

// Register associates typ with calc, overriding any existing registration.
func (r *Registry) Register(typ types.TriggerType, calc Calculator) {
	r.byType[typ] = calc
}

// For returns the calculator registered for typ, or ErrNoCalculator.
func (r *Registry) For(typ types.TriggerType) (Calculator, error) {
	calc, ok := r.byType[typ]
	if !ok {
		return nil, ErrNoCalculator(typ)
	}
	return calc, nil
}

// ErrNoCalculator reports a trigger type with no registered Calculator.
type ErrNoCalculator types.TriggerType

func (e ErrNoCalculator) Error() string {
	return "schedule: no calculator registered for trigger type " + string(e)
}
