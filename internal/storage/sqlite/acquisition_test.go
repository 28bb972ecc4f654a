package sqlite

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzdb/jobstore/internal/types"
)

// TestAcquireNextTriggers is spec §8 scenario 2.
func TestAcquireNextTriggers(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))
	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	acquired, err := s.AcquireNextTriggers(ctx, unixMillis(1000), 1000, 10)
	require.NoError(t, err)
	require.Len(t, acquired, 1)
	assert.Equal(t, types.StateAcquired, acquired[0].Trigger.State)

	got, err := s.GetTrigger(ctx, trig.Key)
	require.NoError(t, err)
	assert.Equal(t, types.StateAcquired, got.State)
}

// TestAcquireNextTriggersRaceResolvesToOneWinner is spec §8 scenario 3 and
// invariant 4: two instances racing on the same trigger never both win.
func TestAcquireNextTriggersRaceResolvesToOneWinner(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))
	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	first, err := s.AcquireNextTriggers(ctx, unixMillis(1000), 1000, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := s.AcquireNextTriggers(ctx, unixMillis(1000), 1000, 10)
	require.NoError(t, err)
	assert.Empty(t, second, "a trigger already ACQUIRED must not be acquired twice")
}

// TestAcquireNextTriggersConcurrentCallersResolveToOneWinner is spec §4.8:
// correctness under concurrent acquisition from arbitrarily many schedulers
// racing on the same rows. numClaimers goroutines call AcquireNextTriggers
// against the same store and the same single candidate trigger; exactly one
// must win the conditional WAITING -> ACQUIRED update.
func TestAcquireNextTriggersConcurrentCallersResolveToOneWinner(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))
	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	const numClaimers = 10
	var wg sync.WaitGroup
	var wonCount atomic.Int32
	var fireInstanceIDs sync.Map

	for i := 0; i < numClaimers; i++ {
		wg.Add(1)
		go func(claimerID int) {
			defer wg.Done()
			acquired, err := s.AcquireNextTriggers(ctx, unixMillis(1000), 1000, 10)
			if err != nil {
				t.Errorf("claimer %d: AcquireNextTriggers failed: %v", claimerID, err)
				return
			}
			if len(acquired) == 1 {
				wonCount.Add(1)
				fireInstanceIDs.Store(claimerID, acquired[0].FireInstanceID)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wonCount.Load(), "exactly one concurrent caller must acquire the trigger")

	got, err := s.GetTrigger(ctx, trig.Key)
	require.NoError(t, err)
	assert.Equal(t, types.StateAcquired, got.State)

	var fireCount int
	fireInstanceIDs.Range(func(_, _ any) bool {
		fireCount++
		return true
	})
	assert.Equal(t, 1, fireCount, fmt.Sprintf("expected exactly one FIRED_TRIGGERS entry, got %d", fireCount))
}

func TestFireNonStatefulReturnsToWaiting(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))
	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	acquired, err := s.AcquireNextTriggers(ctx, unixMillis(1000), 1000, 10)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	result, err := s.Fire(ctx, acquired[0].FireInstanceID, job)
	require.NoError(t, err)
	assert.Equal(t, types.StateWaiting, result.Trigger.State)
	require.NotNil(t, result.Trigger.NextFireTime)
	assert.Equal(t, int64(2000), result.Trigger.NextFireTime.UnixMilli())
}

// TestFireStatefulJobBlocksSiblingTriggers covers spec §4.5's stateful-job
// fan-out and invariant 5.
func TestFireStatefulJobBlocksSiblingTriggers(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	job.Stateful = true
	require.NoError(t, s.InsertJob(ctx, job))

	t1 := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, t1))
	t2 := newSimpleTestTrigger("t2", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, t2))

	acquired, err := s.AcquireNextTriggers(ctx, unixMillis(1000), 1000, 10)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	_, err = s.Fire(ctx, acquired[0].FireInstanceID, job)
	require.NoError(t, err)

	fired := acquired[0].Trigger.Key
	var siblingKey types.TriggerKey
	if fired == t1.Key {
		siblingKey = t2.Key
	} else {
		siblingKey = t1.Key
	}

	sibling, err := s.GetTrigger(ctx, siblingKey)
	require.NoError(t, err)
	assert.Equal(t, types.StateBlocked, sibling.State, "every other trigger of a stateful job must move to BLOCKED")
}

// TestTriggeredJobCompleteUnblocksSiblings covers spec §4.5's completion
// cascade: BLOCKED -> WAITING for the rest of a stateful job's triggers.
func TestTriggeredJobCompleteUnblocksSiblings(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	job.Stateful = true
	require.NoError(t, s.InsertJob(ctx, job))

	t1 := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, t1))
	t2 := newSimpleTestTrigger("t2", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, t2))

	acquired, err := s.AcquireNextTriggers(ctx, unixMillis(1000), 1000, 10)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	_, err = s.Fire(ctx, acquired[0].FireInstanceID, job)
	require.NoError(t, err)

	require.NoError(t, s.TriggeredJobComplete(ctx, acquired[0].FireInstanceID, job, types.InstructionNoop))

	fired := acquired[0].Trigger.Key
	var siblingKey types.TriggerKey
	if fired == t1.Key {
		siblingKey = t2.Key
	} else {
		siblingKey = t1.Key
	}
	sibling, err := s.GetTrigger(ctx, siblingKey)
	require.NoError(t, err)
	assert.Equal(t, types.StateWaiting, sibling.State)
}

func TestTriggeredJobCompletePersistsDirtyJobData(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))
	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	acquired, err := s.AcquireNextTriggers(ctx, unixMillis(1000), 1000, 10)
	require.NoError(t, err)

	_, err = s.Fire(ctx, acquired[0].FireInstanceID, job)
	require.NoError(t, err)

	job.JobDataMap.Put("counter", int64(1))
	require.NoError(t, s.TriggeredJobComplete(ctx, acquired[0].FireInstanceID, job, types.InstructionNoop))

	got, err := s.GetJob(ctx, job.Key)
	require.NoError(t, err)
	v, ok := got.JobDataMap.Get("counter")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
}
