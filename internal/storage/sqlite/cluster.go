package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quartzdb/jobstore/internal/types"
)

const (
	origTriggerNameKey  = "QRTZ_FAILED_JOB_ORIG_TRIGGER_NAME"
	origTriggerGroupKey = "QRTZ_FAILED_JOB_ORIG_TRIGGER_GROUP"
	origFiredTimeKey    = "QRTZ_FAILED_JOB_ORIG_TRIGGER_FIRETIME_IN_MILLISECONDS"
)

// SchedulerCheckin refreshes this instance's heartbeat row (spec §4.6 step a).
func (s *Store) SchedulerCheckin(ctx context.Context, now time.Time) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlUpsertSchedulerState),
			s.cfg.InstanceID, timeToMillis(now), s.cfg.ClusterCheckinIntervalMs)
		if err == nil {
			s.checkinCounter.Add(ctx, 1)
		}
		return err
	})
	return types.WrapPersistence("SchedulerCheckin", err)
}

// SchedulerShutdown removes this instance's own heartbeat row.
func (s *Store) SchedulerShutdown(ctx context.Context) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteSchedulerState), s.cfg.InstanceID)
		return err
	})
	return types.WrapPersistence("SchedulerShutdown", err)
}

// RecoverFailedInstances reads every heartbeat row, classifies failed peers
// (last-checkin + 2*interval in the past), claims recovery of each, walks
// their fired-trigger ledger, and returns the instance-ids recovered
// (spec §4.6). It acquires the STATE_ACCESS advisory lock row for the
// duration of the scan, per spec §5's "operations that must serialise
// across the cluster".
func (s *Store) RecoverFailedInstances(ctx context.Context, now time.Time) ([]string, error) {
	const op = "RecoverFailedInstances"
	var recovered []string

	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		held, err := acquireLock(ctx, conn, s.gw, lockStateAccess, s.cfg.InstanceID)
		if err != nil {
			return err
		}
		if !held {
			s.logger.Info("sqlite: STATE_ACCESS lock already held; skipping recovery scan this tick")
			return nil
		}
		defer func() {
			if _, err := releaseLock(ctx, conn, s.gw, lockStateAccess, s.cfg.InstanceID); err != nil {
				s.logger.Warn("sqlite: failed to release STATE_ACCESS lock", "error", err)
			}
		}()

		states, err := allSchedulerStates(ctx, conn, s.gw)
		if err != nil {
			return err
		}

		for _, st := range states {
			if st.InstanceID == s.cfg.InstanceID || !st.Failed(now) {
				continue
			}
			claimed, err := claimRecovery(ctx, conn, s.gw, st.InstanceID, s.cfg.InstanceID)
			if err != nil {
				return err
			}
			if !claimed {
				continue
			}
			if err := s.recoverInstance(ctx, conn, st.InstanceID); err != nil {
				return err
			}
			recovered = append(recovered, st.InstanceID)
		}
		return nil
	})
	if err != nil {
		return nil, types.WrapPersistence(op, err)
	}
	return recovered, nil
}

func (s *Store) recoverInstance(ctx context.Context, conn *sql.Conn, deadInstance string) error {
	rows, err := conn.QueryContext(ctx, s.gw.sql(sqlFiredTriggersByInstance), deadInstance)
	if err != nil {
		return err
	}
	var entries []*types.FiredTrigger
	for rows.Next() {
		var (
			entryID, triggerName, triggerGroup, instance, state string
			volatile, firedMs, stateful, requestsRecov          int64
			jobName, jobGroup                                   sql.NullString
		)
		if err := rows.Scan(&entryID, &triggerName, &triggerGroup, &volatile, &instance, &firedMs, &state, &jobName, &jobGroup, &stateful, &requestsRecov); err != nil {
			rows.Close()
			return err
		}
		entries = append(entries, &types.FiredTrigger{
			FireInstanceID:   entryID,
			TriggerKey:       types.TriggerKey{Name: triggerName, Group: triggerGroup},
			Volatile:         intToBool(volatile),
			InstanceID:       instance,
			FiredTime:        millisToTime(firedMs),
			State:            types.EntryState(state),
			JobKey:           types.JobKey{Name: jobName.String, Group: jobGroup.String},
			JobBound:         jobName.Valid && jobName.String != "",
			Stateful:         intToBool(stateful),
			RequestsRecovery: intToBool(requestsRecov),
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, entry := range entries {
		if entry.JobBound && entry.RequestsRecovery {
			if err := s.createRecoveryTrigger(ctx, conn, entry); err != nil {
				return err
			}
		}
		if entry.JobBound && entry.Stateful {
			if _, err := conn.ExecContext(ctx, s.gw.sql(sqlStateUpdateByJob),
				string(types.StateWaiting), entry.JobKey.Name, entry.JobKey.Group, string(types.StateBlocked)); err != nil {
				return err
			}
			if _, err := conn.ExecContext(ctx, s.gw.sql(sqlStateUpdateByJob),
				string(types.StatePaused), entry.JobKey.Name, entry.JobKey.Group, string(types.StatePausedBlocked)); err != nil {
				return err
			}
		}
		if _, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteFiredTrigger), entry.FireInstanceID); err != nil {
			return err
		}
	}

	_, err = conn.ExecContext(ctx, s.gw.sql(sqlDeleteSchedulerState), deadInstance)
	return err
}

// createRecoveryTrigger builds the synthetic "recover_*" simple trigger in
// the reserved recovery group, copying the original trigger's job-data map
// (if the trigger still exists) and augmenting it with the three
// orig-trigger-identity entries (spec §4.6, §8 scenario 4).
func (s *Store) createRecoveryTrigger(ctx context.Context, conn *sql.Conn, entry *types.FiredTrigger) error {
	dataMap := types.NewJobDataMap()
	if orig, err := scanTrigger(ctx, conn, s.gw, s.codec, entry.TriggerKey); err == nil && orig.JobDataMap != nil {
		dataMap = types.FromMap(orig.JobDataMap.WithoutTransient())
	}
	dataMap.Put(origTriggerNameKey, entry.TriggerKey.Name)
	dataMap.Put(origTriggerGroupKey, entry.TriggerKey.Group)
	dataMap.Put(origFiredTimeKey, entry.FiredTime.UnixMilli())

	data, err := s.codec.Encode(dataMap)
	if err != nil {
		return fmt.Errorf("recovery trigger job data: %w", err)
	}

	recoveryName := fmt.Sprintf("recover_%s", entry.FireInstanceID)
	firedMs := timeToMillis(entry.FiredTime)

	_, err = conn.ExecContext(ctx, s.gw.sql(sqlInsertTrigger),
		recoveryName, types.RecoveryGroup, entry.JobKey.Name, entry.JobKey.Group, "recovery of "+entry.TriggerKey.String(),
		firedMs, -1, string(types.StateWaiting), string(types.TriggerTypeSimple),
		firedMs, -1, nil, int64(types.MisfireInstructionFireNow), 0, data)
	if err != nil {
		return fmt.Errorf("insert recovery trigger: %w", err)
	}
	_, err = conn.ExecContext(ctx, s.gw.sql(sqlInsertSimple), recoveryName, types.RecoveryGroup, int64(0), int64(0), int64(0))
	if err != nil {
		return fmt.Errorf("insert recovery trigger simple payload: %w", err)
	}
	return nil
}

func allSchedulerStates(ctx context.Context, conn *sql.Conn, gw *gateway) ([]types.SchedulerState, error) {
	rows, err := conn.QueryContext(ctx, gw.sql(sqlSelectAllSchedulerState))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.SchedulerState
	for rows.Next() {
		var (
			instance              string
			lastCheckin, interval int64
			recoverer             sql.NullString
		)
		if err := rows.Scan(&instance, &lastCheckin, &interval, &recoverer); err != nil {
			return nil, err
		}
		out = append(out, types.SchedulerState{
			InstanceID:        instance,
			LastCheckinTime:   millisToTime(lastCheckin),
			CheckinIntervalMs: interval,
			Recoverer:         recoverer.String,
		})
	}
	return out, rows.Err()
}

func claimRecovery(ctx context.Context, conn *sql.Conn, gw *gateway, deadInstance, selfInstance string) (bool, error) {
	res, err := conn.ExecContext(ctx, gw.sql(sqlClaimRecovery), selfInstance, deadInstance, selfInstance)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func acquireLock(ctx context.Context, conn *sql.Conn, gw *gateway, name, holder string) (bool, error) {
	res, err := conn.ExecContext(ctx, gw.sql(sqlAcquireLock), holder, name)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func releaseLock(ctx context.Context, conn *sql.Conn, gw *gateway, name, holder string) (bool, error) {
	res, err := conn.ExecContext(ctx, gw.sql(sqlReleaseLock), name, holder)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
