package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzdb/jobstore/internal/types"
)

func TestSimpleCalculatorNext(t *testing.T) {
	calc := SimpleCalculator{}
	trigger := &types.Trigger{
		Type:      types.TriggerTypeSimple,
		StartTime: time.UnixMilli(1000),
		Simple:    &types.SimpleTrigger{RepeatCount: 2, RepeatIntervalMs: 1000},
	}
	next := time.UnixMilli(1000)
	trigger.NextFireTime = &next

	now := time.UnixMilli(1000)
	got, err := calc.Next(trigger, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2000), got.UnixMilli())
	assert.Equal(t, int64(1), trigger.Simple.TimesTriggered)

	trigger.NextFireTime = got
	got, err = calc.Next(trigger, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3000), got.UnixMilli())

	trigger.NextFireTime = got
	got, err = calc.Next(trigger, now)
	require.NoError(t, err)
	assert.Nil(t, got, "repeat count exhausted")
}

func TestCronCalculatorNext(t *testing.T) {
	calc := CronCalculator{}
	trigger := &types.Trigger{
		Type:      types.TriggerTypeCron,
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Cron:      &types.CronTrigger{CronExpression: "0 * * * *", TimeZoneID: "UTC"},
	}
	now := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	got, err := calc.Next(trigger, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 11, got.Hour())
	assert.Equal(t, 0, got.Minute())
}

func TestApplyMisfirePolicyFireNow(t *testing.T) {
	registry := NewRegistry()
	past := time.UnixMilli(3000)
	trigger := &types.Trigger{
		Type:               types.TriggerTypeSimple,
		StartTime:          time.UnixMilli(0),
		NextFireTime:       &past,
		MisfireInstruction: types.MisfireInstructionFireNow,
		Simple:             &types.SimpleTrigger{RepeatCount: types.RepeatIndefinitely, RepeatIntervalMs: 1000},
	}
	now := time.UnixMilli(10000)
	err := ApplyMisfirePolicy(registry, trigger, now)
	require.NoError(t, err)
	require.NotNil(t, trigger.NextFireTime)
	assert.Equal(t, now.UnixMilli(), trigger.NextFireTime.UnixMilli())
}

func TestApplyMisfirePolicyDoNothingAdvancesSimple(t *testing.T) {
	registry := NewRegistry()
	missed := time.UnixMilli(1000)
	trigger := &types.Trigger{
		Type:               types.TriggerTypeSimple,
		StartTime:          time.UnixMilli(1000),
		NextFireTime:       &missed,
		MisfireInstruction: types.MisfireInstructionDoNothing,
		Simple:             &types.SimpleTrigger{RepeatCount: types.RepeatIndefinitely, RepeatIntervalMs: 1000},
	}
	now := time.UnixMilli(3500)
	err := ApplyMisfirePolicy(registry, trigger, now)
	require.NoError(t, err)
	require.NotNil(t, trigger.NextFireTime)
	assert.True(t, trigger.NextFireTime.After(now))
}
