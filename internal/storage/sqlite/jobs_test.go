package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzdb/jobstore/internal/types"
)

func newTestJob(name, group string) *types.Job {
	data := types.NewJobDataMap()
	data.Put("greeting", "hello")
	return &types.Job{
		Key:        types.JobKey{Name: name, Group: group},
		Description: "a test job",
		JobClass:   "example.Job",
		Durable:    true,
		JobDataMap: data,
		Listeners:  []string{"audit", "metrics"},
	}
}

// TestInsertJobDuplicateFails is spec §8 scenario 1: inserting the same job
// identity twice fails the second time with ErrObjectAlreadyExists.
func TestInsertJobDuplicateFails(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	err := s.InsertJob(ctx, newTestJob("j1", "g1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrObjectAlreadyExists)
}

func TestJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	got, err := s.GetJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, job.Description, got.Description)
	assert.Equal(t, job.JobClass, got.JobClass)
	assert.True(t, got.Durable)
	assert.ElementsMatch(t, job.Listeners, got.Listeners)
	v, ok := got.JobDataMap.Get("greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	exists, err := s.JobExists(ctx, job.Key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestJobNotFound(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	_, err := s.GetJob(ctx, types.JobKey{Name: "missing", Group: "g1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUpdateJobReplacesListeners(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	job.Listeners = []string{"onlyone"}
	job.Description = "updated"
	require.NoError(t, s.UpdateJob(ctx, job))

	got, err := s.GetJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)
	assert.Equal(t, []string{"onlyone"}, got.Listeners)
}

func TestDeleteJobCascadesTriggers(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	job := newTestJob("j1", "g1")
	require.NoError(t, s.InsertJob(ctx, job))

	trig := newSimpleTestTrigger("t1", "g1", job.Key, 1000, 3, 1000)
	require.NoError(t, s.InsertTrigger(ctx, trig))

	require.NoError(t, s.DeleteJob(ctx, job.Key))

	exists, err := s.TriggerExists(ctx, trig.Key)
	require.NoError(t, err)
	assert.False(t, exists, "trigger rows should cascade-delete with their job")
}

func TestJobGroupQueries(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, "instance-1")

	require.NoError(t, s.InsertJob(ctx, newTestJob("j1", "g1")))
	require.NoError(t, s.InsertJob(ctx, newTestJob("j2", "g1")))
	require.NoError(t, s.InsertJob(ctx, newTestJob("j3", "g2")))

	groups, err := s.GetJobGroupNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g1", "g2"}, groups)

	names, err := s.GetJobNamesInGroup(ctx, "g1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"j1", "j2"}, names)
}
