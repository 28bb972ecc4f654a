package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzdb/jobstore/internal/types"
)

func TestSchedulerCheckinAndShutdown(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	require.NoError(t, s.SchedulerCheckin(ctx, unixMillis(1000)))
	states, err := allSchedulerStatesForTest(ctx, s)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "instance-1", states[0].InstanceID)

	require.NoError(t, s.SchedulerShutdown(ctx))
	states, err = allSchedulerStatesForTest(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func allSchedulerStatesForTest(ctx context.Context, s *Store) ([]types.SchedulerState, error) {
	var out []types.SchedulerState
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		states, err := allSchedulerStates(ctx, conn, s.gw)
		out = states
		return err
	})
	return out, err
}

// TestRecoverFailedInstances is spec §8 scenario 4: a dead instance's
// orphaned fire-instance, for a job requesting recovery, produces a
// synthetic recovery trigger carrying the original trigger identity and
// fired time, and the dead instance's heartbeat row is removed.
func TestRecoverFailedInstances(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-b")

	job := newTestJob("j1", "g1")
	job.RequestsRecovery = true
	require.NoError(t, s.InsertJob(ctx, job))
	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	// Simulate instance A: stale heartbeat plus an EXECUTING fired-trigger
	// entry bound to the job.
	require.NoError(t, s.gw.withTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlUpsertSchedulerState), "instance-a", int64(0), int64(1000))
		if err != nil {
			return err
		}
		_, err = conn.ExecContext(ctx, s.gw.sql(sqlInsertFiredTrigger),
			"fire-1", trig.Key.Name, trig.Key.Group, 0, "instance-a", int64(1000),
			string(types.EntryExecuting), job.Key.Name, job.Key.Group, 0, 1)
		return err
	}))

	recovered, err := s.RecoverFailedInstances(ctx, unixMillis(100_000))
	require.NoError(t, err)
	assert.Contains(t, recovered, "instance-a")

	names, err := s.GetTriggerNamesInGroup(ctx, types.RecoveryGroup)
	require.NoError(t, err)
	require.Len(t, names, 1)

	recoveryTrigger, err := s.GetTrigger(ctx, types.TriggerKey{Name: names[0], Group: types.RecoveryGroup})
	require.NoError(t, err)
	assert.Equal(t, types.MisfireInstructionFireNow, recoveryTrigger.MisfireInstruction)

	origName, _ := recoveryTrigger.JobDataMap.Get(origTriggerNameKey)
	assert.Equal(t, "t1", origName)
	origGroup, _ := recoveryTrigger.JobDataMap.Get(origTriggerGroupKey)
	assert.Equal(t, "g1", origGroup)
	origFireTime, _ := recoveryTrigger.JobDataMap.Get(origFiredTimeKey)
	assert.Equal(t, int64(1000), origFireTime)

	states, err := allSchedulerStatesForTest(ctx, s)
	require.NoError(t, err)
	for _, st := range states {
		assert.NotEqual(t, "instance-a", st.InstanceID, "dead instance's heartbeat row must be removed")
	}
}
