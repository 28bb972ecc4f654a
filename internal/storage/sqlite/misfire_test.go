package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzdb/jobstore/internal/types"
)

// TestScanMisfiredTriggersFireNow is spec §8 scenario 6: threshold 5000 at
// now=10000 over a waiting trigger with next-fire-time=3000 and instruction
// "fire now" updates next-fire-time to 10000 and leaves state WAITING.
func TestScanMisfiredTriggersFireNow(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")
	s.cfg.MisfireThresholdMs = 5000

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	trig := newSimpleTestTrigger("t1", "g1", job.Key, 0, 3, 1000)
	missed := unixMillis(3000)
	trig.NextFireTime = &missed
	trig.MisfireInstruction = types.MisfireInstructionFireNow
	require.NoError(t, s.InsertTrigger(ctx, trig))

	n, err := s.ScanMisfiredTriggers(ctx, unixMillis(10000), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetTrigger(ctx, trig.Key)
	require.NoError(t, err)
	assert.Equal(t, types.StateWaiting, got.State)
	require.NotNil(t, got.NextFireTime)
	assert.Equal(t, int64(10000), got.NextFireTime.UnixMilli())
}

func TestScanMisfiredTriggersIgnoresTriggersWithinThreshold(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")
	s.cfg.MisfireThresholdMs = 5000

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	trig := newSimpleTestTrigger("t1", "g1", job.Key, 0, 3, 1000)
	missed := unixMillis(9000)
	trig.NextFireTime = &missed
	require.NoError(t, s.InsertTrigger(ctx, trig))

	n, err := s.ScanMisfiredTriggers(ctx, unixMillis(10000), "")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a trigger less than the threshold past due has not misfired")
}

func TestScanMisfiredTriggersGroupFilter(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")
	s.cfg.MisfireThresholdMs = 5000

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	missed := unixMillis(3000)

	t1 := newSimpleTestTrigger("t1", "g1", job.Key, 0, 3, 1000)
	t1.NextFireTime = &missed
	t1.MisfireInstruction = types.MisfireInstructionFireNow
	require.NoError(t, s.InsertTrigger(ctx, t1))

	t2 := newSimpleTestTrigger("t2", "other", job.Key, 0, 3, 1000)
	t2.NextFireTime = &missed
	t2.MisfireInstruction = types.MisfireInstructionFireNow
	require.NoError(t, s.InsertTrigger(ctx, t2))

	n, err := s.ScanMisfiredTriggers(ctx, unixMillis(10000), "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got2, err := s.GetTrigger(ctx, t2.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), got2.NextFireTime.UnixMilli(), "a group-filtered scan must not touch other groups")
}
