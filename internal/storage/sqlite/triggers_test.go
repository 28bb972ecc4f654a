package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzdb/jobstore/internal/types"
)

func newSimpleTestTrigger(name, group string, jobKey types.JobKey, startMs, repeatCount, intervalMs int64) *types.Trigger {
	start := unixMillis(startMs)
	return &types.Trigger{
		Key:         types.TriggerKey{Name: name, Group: group},
		JobKey:      jobKey,
		Description: "a test trigger",
		NextFireTime: &start,
		StartTime:   start,
		State:       types.StateWaiting,
		Type:        types.TriggerTypeSimple,
		Simple:      &types.SimpleTrigger{RepeatCount: repeatCount, RepeatIntervalMs: intervalMs},
		Listeners:   []string{"l1"},
	}
}

func newCronTestTrigger(name, group string, jobKey types.JobKey, startMs int64, expr string) *types.Trigger {
	start := unixMillis(startMs)
	return &types.Trigger{
		Key:         types.TriggerKey{Name: name, Group: group},
		JobKey:      jobKey,
		NextFireTime: &start,
		StartTime:   start,
		State:       types.StateWaiting,
		Type:        types.TriggerTypeCron,
		Cron:        &types.CronTrigger{CronExpression: expr, TimeZoneID: "UTC"},
	}
}

// TestTriggerRoundTrip is spec §8 invariant 7.
func TestTriggerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	got, err := s.GetTrigger(ctx, trig.Key)
	require.NoError(t, err)
	assert.Equal(t, trig.JobKey, got.JobKey)
	assert.Equal(t, trig.State, got.State)
	assert.Equal(t, trig.Type, got.Type)
	require.NotNil(t, got.Simple)
	assert.Equal(t, trig.Simple.RepeatCount, got.Simple.RepeatCount)
	assert.Equal(t, trig.Simple.RepeatIntervalMs, got.Simple.RepeatIntervalMs)
	assert.Equal(t, trig.Listeners, got.Listeners)
	require.NotNil(t, got.NextFireTime)
	assert.Equal(t, trig.NextFireTime.UnixMilli(), got.NextFireTime.UnixMilli())
}

func TestTriggerWithNilNextFireTimeRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 0, 1000)
	trig.NextFireTime = nil
	trig.State = types.StateComplete
	require.NoError(t, s.InsertTrigger(ctx, trig))

	got, err := s.GetTrigger(ctx, trig.Key)
	require.NoError(t, err)
	assert.Nil(t, got.NextFireTime, "nil next-fire-time must round-trip through the -1 sentinel")
}

func TestInsertTriggerDuplicateFails(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	err := s.InsertTrigger(ctx, newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrObjectAlreadyExists)
}

func TestDeleteCalendarInUseFails(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))
	require.NoError(t, s.InsertCalendar(ctx, &types.Calendar{Name: "cal1", Data: []byte("holidays")}))

	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	trig.CalendarName = "cal1"
	require.NoError(t, s.InsertTrigger(ctx, trig))

	err := s.DeleteCalendar(ctx, "cal1")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCalendarInUse)

	_, err = s.GetCalendar(ctx, "cal1")
	require.NoError(t, err, "calendar must remain after a failed delete")
}

func TestGetTriggerStateReturnsDeletedForAbsentRow(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	state, err := s.GetTriggerState(ctx, types.TriggerKey{Name: "nope", Group: "g1"})
	require.NoError(t, err)
	assert.Equal(t, types.StateDeleted, state)
}

// TestPauseResumeTriggerGroup is spec §8 scenario 5.
func TestPauseResumeTriggerGroup(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	waiting := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, waiting))

	blocked := newSimpleTestTrigger("t2", "g1", job.Key, 1000, 3, 1000)
	blocked.State = types.StateBlocked
	require.NoError(t, s.InsertTrigger(ctx, blocked))

	require.NoError(t, s.PauseTriggerGroup(ctx, "g1"))

	paused, err := s.IsTriggerGroupPaused(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, paused)

	gotWaiting, err := s.GetTrigger(ctx, waiting.Key)
	require.NoError(t, err)
	assert.Equal(t, types.StatePaused, gotWaiting.State)

	gotBlocked, err := s.GetTrigger(ctx, blocked.Key)
	require.NoError(t, err)
	assert.Equal(t, types.StatePausedBlocked, gotBlocked.State)

	require.NoError(t, s.ResumeTriggerGroup(ctx, "g1"))

	paused, err = s.IsTriggerGroupPaused(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, paused)

	gotWaiting, err = s.GetTrigger(ctx, waiting.Key)
	require.NoError(t, err)
	assert.Equal(t, types.StateWaiting, gotWaiting.State)

	gotBlocked, err = s.GetTrigger(ctx, blocked.Key)
	require.NoError(t, err)
	assert.Equal(t, types.StateBlocked, gotBlocked.State)
}

// TestDeleteTriggerDeletesOrphanedNonDurableJob is spec.md §3's invariant: a
// non-durable job exists only while at least one trigger references it.
func TestDeleteTriggerDeletesOrphanedNonDurableJob(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	job.Durable = false
	require.NoError(t, s.InsertJob(ctx, job))

	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	require.NoError(t, s.DeleteTrigger(ctx, trig.Key))

	exists, err := s.JobExists(ctx, job.Key)
	require.NoError(t, err)
	assert.False(t, exists, "deleting a non-durable job's last trigger must delete the job")
}

// TestDeleteTriggerKeepsNonDurableJobWithRemainingTriggers is the negative
// side of the same invariant: the job survives while another trigger still
// references it.
func TestDeleteTriggerKeepsNonDurableJobWithRemainingTriggers(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	job.Durable = false
	require.NoError(t, s.InsertJob(ctx, job))

	trig1 := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig1))
	trig2 := newSimpleTestTrigger("t2", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig2))

	require.NoError(t, s.DeleteTrigger(ctx, trig1.Key))

	exists, err := s.JobExists(ctx, job.Key)
	require.NoError(t, err)
	assert.True(t, exists, "job must survive while another trigger still references it")
}

// TestDeleteTriggerKeepsDurableJobOrphaned is the durable-job side of the
// same invariant: a durable job survives even with no triggers left.
func TestDeleteTriggerKeepsDurableJobOrphaned(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1") // Durable: true
	require.NoError(t, s.InsertJob(ctx, job))

	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	require.NoError(t, s.DeleteTrigger(ctx, trig.Key))

	exists, err := s.JobExists(ctx, job.Key)
	require.NoError(t, err)
	assert.True(t, exists, "a durable job must survive losing its last trigger")
}

func TestGetTriggersForJob(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))
	require.NoError(t, s.InsertTrigger(ctx, newSimpleTestTrigger("t1", "g1", job.Key, 1000, 1, 1000)))
	require.NoError(t, s.InsertTrigger(ctx, newCronTestTrigger("t2", "g1", job.Key, 1000, "0 * * * *")))

	triggers, err := s.GetTriggersForJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Len(t, triggers, 2)
}
