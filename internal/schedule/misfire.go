package schedule

import (
	"time"

	"github.com/quartzdb/jobstore/internal/types"
)

// ApplyMisfirePolicy mutates t's NextFireTime (and, for SimpleTrigger,
// TimesTriggered) according to t's MisfireInstruction, resolving
// MisfireInstructionSmartPolicy to a variant-appropriate default first
// (spec §4.7). now is the instant the misfire is being handled at.
func ApplyMisfirePolicy(registry *Registry, t *types.Trigger, now time.Time) error {
	calc, err := registry.For(t.Type)
	if err != nil {
		return err
	}

	instr := t.MisfireInstruction
	if instr == types.MisfireInstructionSmartPolicy {
		instr = smartDefault(t)
	}

	switch instr {
	case types.MisfireInstructionFireNow:
		fireNow := now
		t.NextFireTime = &fireNow
		return nil

	case types.MisfireInstructionRescheduleNowWithExistingCount:
		fireNow := now
		t.NextFireTime = &fireNow
		// Existing times-triggered/interval are left untouched: unlike
		// FireNow this instruction is documentation that the trigger's
		// repeat bookkeeping should not be reset, only its clock.
		return nil

	case types.MisfireInstructionDoNothing:
		return advancePastNow(calc, t, now)

	default:
		return advancePastNow(calc, t, now)
	}
}

// smartDefault picks the default instruction the Quartz reference store
// applies per variant when MisfireInstructionSmartPolicy is configured: a
// cron trigger simply fires now; a simple trigger with a finite repeat
// count reschedules now keeping its existing count, while an indefinitely
// repeating simple trigger also just fires now (there is no "remaining
// count" to preserve).
func smartDefault(t *types.Trigger) types.MisfireInstruction {
	if t.Type == types.TriggerTypeSimple && t.Simple != nil && t.Simple.RepeatCount != types.RepeatIndefinitely {
		return types.MisfireInstructionRescheduleNowWithExistingCount
	}
	return types.MisfireInstructionFireNow
}

// advancePastNow repeatedly advances t's NextFireTime until it is nil (no
// further fires) or strictly after now. For a CronTrigger this resolves in a
// single iteration, since CronCalculator.Next computes relative to now; for a
// SimpleTrigger it walks forward by RepeatIntervalMs from the missed
// fire time, and each skipped occurrence increments TimesTriggered.
func advancePastNow(calc Calculator, t *types.Trigger, now time.Time) error {
	for {
		next, err := calc.Next(t, now)
		if err != nil {
			return err
		}
		t.NextFireTime = next
		if next == nil || next.After(now) {
			return nil
		}
	}
}
