// Package storage defines the backend-agnostic contract the Scheduler
// façade drives: CRUD over jobs/triggers/calendars, the trigger state
// machine, acquisition/firing/completion, cluster heartbeats and recovery,
// and misfire scanning (spec §2, §4). internal/storage/sqlite is this
// module's one concrete implementation.
package storage

import (
	"context"
	"time"

	"github.com/quartzdb/jobstore/internal/types"
)

// AcquiredTrigger pairs a trigger claimed by AcquireNextTriggers with the
// fire-instance-id minted for its ledger entry (spec §4.5).
type AcquiredTrigger struct {
	Trigger        *types.Trigger
	FireInstanceID string
}

// FireResult is what Fire returns after the ACQUIRED -> EXECUTING
// transition: the trigger as persisted (with its recomputed NextFireTime
// and post-fire State) and the fired-trigger ledger entry now bound to the
// job (spec §4.5).
type FireResult struct {
	Trigger      *types.Trigger
	FiredTrigger *types.FiredTrigger
}

// Store is the full surface the Scheduler façade drives against a single
// transactional backend.
type Store interface {
	// Jobs (spec §4.3)
	InsertJob(ctx context.Context, job *types.Job) error
	UpdateJob(ctx context.Context, job *types.Job) error
	DeleteJob(ctx context.Context, key types.JobKey) error
	GetJob(ctx context.Context, key types.JobKey) (*types.Job, error)
	JobExists(ctx context.Context, key types.JobKey) (bool, error)
	GetJobGroupNames(ctx context.Context) ([]string, error)
	GetJobNamesInGroup(ctx context.Context, group string) ([]string, error)

	// Triggers (spec §4.3, §4.4)
	InsertTrigger(ctx context.Context, trigger *types.Trigger) error
	UpdateTrigger(ctx context.Context, trigger *types.Trigger) error
	DeleteTrigger(ctx context.Context, key types.TriggerKey) error
	GetTrigger(ctx context.Context, key types.TriggerKey) (*types.Trigger, error)
	TriggerExists(ctx context.Context, key types.TriggerKey) (bool, error)
	GetTriggerGroupNames(ctx context.Context) ([]string, error)
	GetTriggerNamesInGroup(ctx context.Context, group string) ([]string, error)
	GetTriggerKeysForJob(ctx context.Context, jobKey types.JobKey) ([]types.TriggerKey, error)
	GetTriggerState(ctx context.Context, key types.TriggerKey) (types.TriggerState, error)

	// Listener accessors (spec §9 supplemented feature: spec.md §4.3 only
	// requires that cascades exist; this adds the accessor surface a
	// façade needs to actually manage registered listener names).
	AddJobListener(ctx context.Context, key types.JobKey, listenerName string) error
	RemoveJobListener(ctx context.Context, key types.JobKey, listenerName string) error
	GetJobListenerNames(ctx context.Context, key types.JobKey) ([]string, error)
	AddTriggerListener(ctx context.Context, key types.TriggerKey, listenerName string) error
	RemoveTriggerListener(ctx context.Context, key types.TriggerKey, listenerName string) error
	GetTriggerListenerNames(ctx context.Context, key types.TriggerKey) ([]string, error)

	// GetTriggerNamesForJob/GetTriggersForJob (spec §9 supplemented
	// feature): convenience reads of a job's triggers for the façade.
	GetTriggerNamesForJob(ctx context.Context, jobKey types.JobKey) ([]types.TriggerKey, error)
	GetTriggersForJob(ctx context.Context, jobKey types.JobKey) ([]*types.Trigger, error)

	// Calendars (spec §4.3)
	InsertCalendar(ctx context.Context, cal *types.Calendar) error
	UpdateCalendar(ctx context.Context, cal *types.Calendar) error
	DeleteCalendar(ctx context.Context, name string) error
	GetCalendar(ctx context.Context, name string) (*types.Calendar, error)
	GetCalendarNames(ctx context.Context) ([]string, error)

	// Pause / resume (spec §4.4)
	PauseTrigger(ctx context.Context, key types.TriggerKey) error
	ResumeTrigger(ctx context.Context, key types.TriggerKey) error
	PauseTriggerGroup(ctx context.Context, group string) error
	ResumeTriggerGroup(ctx context.Context, group string) error
	IsTriggerGroupPaused(ctx context.Context, group string) (bool, error)
	GetPausedTriggerGroups(ctx context.Context) ([]string, error)

	// Acquisition, firing, completion (spec §4.5)
	AcquireNextTriggers(ctx context.Context, now time.Time, windowMs int64, maxCount int) ([]*AcquiredTrigger, error)
	Fire(ctx context.Context, fireInstanceID string, job *types.Job) (*FireResult, error)
	TriggeredJobComplete(ctx context.Context, fireInstanceID string, job *types.Job, instruction types.CompletionInstruction) error

	// Cluster manager (spec §4.6)
	SchedulerCheckin(ctx context.Context, now time.Time) error
	SchedulerShutdown(ctx context.Context) error
	RecoverFailedInstances(ctx context.Context, now time.Time) ([]string, error)

	// Misfire handler (spec §4.7)
	ScanMisfiredTriggers(ctx context.Context, now time.Time, groupFilter string) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
