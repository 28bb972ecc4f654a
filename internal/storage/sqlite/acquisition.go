package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quartzdb/jobstore/internal/storage"
	"github.com/quartzdb/jobstore/internal/types"
)

// AcquireNextTriggers claims up to maxCount WAITING triggers whose
// next-fire-time is at or before now+windowMs, ordered by next-fire-time
// ascending (spec §4.5). Each claim is a conditional WAITING -> ACQUIRED
// update; a zero row-count means another instance won the race for that
// trigger, and the candidate is simply skipped (spec §4.8: lost races are
// never errors). At most one trigger of a stateful job is claimed per call.
func (s *Store) AcquireNextTriggers(ctx context.Context, now time.Time, windowMs int64, maxCount int) ([]*storage.AcquiredTrigger, error) {
	const op = "AcquireNextTriggers"
	var out []*storage.AcquiredTrigger

	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		cutoff := timeToMillis(now.Add(time.Duration(windowMs) * time.Millisecond))
		// Over-fetch candidates so losing a CAS race still leaves enough of
		// the ordered set to try the next one (spec §4.4: "the loser retries
		// acquisition against the remaining candidate set").
		rows, err := conn.QueryContext(ctx, s.gw.sql(sqlCandidateTriggers), string(types.StateWaiting), cutoff, maxCount*4)
		if err != nil {
			return err
		}
		var candidates []types.TriggerKey
		for rows.Next() {
			var name, group string
			if err := rows.Scan(&name, &group); err != nil {
				rows.Close()
				return err
			}
			candidates = append(candidates, types.TriggerKey{Name: name, Group: group})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		claimedStatefulJobs := make(map[types.JobKey]bool)
		for _, key := range candidates {
			if len(out) >= maxCount {
				break
			}
			var jobKey types.JobKey
			var stateful int64
			if err := conn.QueryRowContext(ctx, s.gw.sql(sqlTriggerJobKey), key.Name, key.Group).Scan(&jobKey.Name, &jobKey.Group); err != nil {
				return err
			}
			if err := conn.QueryRowContext(ctx, s.gw.sql(sqlSelectJob), jobKey.Name, jobKey.Group).Scan(
				new(string), new(string), new(int64), new(int64), &stateful, new(int64), new([]byte)); err != nil {
				return err
			}
			if intToBool(stateful) && claimedStatefulJobs[jobKey] {
				continue // another trigger of this stateful job was claimed above
			}
			res, err := conn.ExecContext(ctx, s.gw.sql(sqlConditionalStateUpdate),
				string(types.StateAcquired), key.Name, key.Group, string(types.StateWaiting))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue // lost the race; try the next candidate
			}
			claimedStatefulJobs[jobKey] = claimedStatefulJobs[jobKey] || intToBool(stateful)

			t, err := scanTrigger(ctx, conn, s.gw, s.codec, key)
			if err != nil {
				return err
			}

			fireInstanceID := uuid.NewString()
			firedTime := now
			if t.NextFireTime != nil {
				firedTime = *t.NextFireTime
			}
			if _, err := conn.ExecContext(ctx, s.gw.sql(sqlInsertFiredTrigger),
				fireInstanceID, key.Name, key.Group, boolToInt(t.Volatile), s.cfg.InstanceID,
				timeToMillis(firedTime), string(types.EntryAcquired), "", "", 0, 0); err != nil {
				return err
			}

			out = append(out, &storage.AcquiredTrigger{Trigger: t, FireInstanceID: fireInstanceID})
			s.acquiredCounter.Add(ctx, 1)
		}
		return nil
	})
	if err != nil {
		return nil, types.WrapPersistence(op, err)
	}
	return out, nil
}

// Fire upgrades the fired-trigger entry to EXECUTING and advances the
// trigger: COMPLETE if it has no further fires, BLOCKED (propagated to every
// sibling trigger of a stateful job) if the job is stateful, otherwise back
// to WAITING (spec §4.5).
func (s *Store) Fire(ctx context.Context, fireInstanceID string, job *types.Job) (*storage.FireResult, error) {
	const op = "Fire"
	var result *storage.FireResult

	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		entry, err := loadFiredTrigger(ctx, conn, s.gw, fireInstanceID)
		if err != nil {
			return err
		}

		t, err := scanTrigger(ctx, conn, s.gw, s.codec, entry.TriggerKey)
		if err != nil {
			return err
		}

		calc, err := s.schedule.For(t.Type)
		if err != nil {
			return err
		}
		base := baseFireTime(t)
		next, err := calc.Next(t, base)
		if err != nil {
			return err
		}
		t.PrevFireTime = t.NextFireTime
		t.NextFireTime = next

		switch {
		case next == nil:
			t.State = types.StateComplete
		case job.Stateful:
			t.State = types.StateBlocked
			if _, err := conn.ExecContext(ctx, s.gw.sql(sqlStateUpdateByJob),
				string(types.StateBlocked), t.JobKey.Name, t.JobKey.Group, string(types.StateWaiting)); err != nil {
				return err
			}
		default:
			t.State = types.StateWaiting
		}

		if err := persistTriggerFireTimes(ctx, conn, s.gw, t); err != nil {
			return err
		}

		entry.State = types.EntryExecuting
		entry.JobKey = job.Key
		entry.JobBound = true
		entry.Stateful = job.Stateful
		entry.RequestsRecovery = job.RequestsRecovery
		if err := updateFiredTriggerState(ctx, conn, s.gw, entry); err != nil {
			return err
		}

		result = &storage.FireResult{Trigger: t, FiredTrigger: entry}
		return nil
	})
	if err != nil {
		return nil, types.WrapPersistence(op, err)
	}
	return result, nil
}

func baseFireTime(t *types.Trigger) time.Time {
	if t.NextFireTime != nil {
		return *t.NextFireTime
	}
	return t.StartTime
}

func persistTriggerFireTimes(ctx context.Context, conn *sql.Conn, gw *gateway, t *types.Trigger) error {
	_, err := conn.ExecContext(ctx, gw.sql(sqlSetTriggerFireTimes),
		string(t.State), nullableTimeToMillis(t.NextFireTime), nullableTimeToMillis(t.PrevFireTime), t.Key.Name, t.Key.Group)
	if err == nil && t.Type == types.TriggerTypeSimple && t.Simple != nil {
		_, err = conn.ExecContext(ctx, gw.sql(sqlUpdateSimple),
			t.Simple.RepeatCount, t.Simple.RepeatIntervalMs, t.Simple.TimesTriggered, t.Key.Name, t.Key.Group)
	}
	return err
}

func loadFiredTrigger(ctx context.Context, conn *sql.Conn, gw *gateway, fireInstanceID string) (*types.FiredTrigger, error) {
	var (
		triggerName, triggerGroup, instance, state string
		volatile, firedMs, stateful, requestsRecov int64
		jobName, jobGroup                          sql.NullString
	)
	row := conn.QueryRowContext(ctx, gw.sql(sqlSelectFiredTrigger), fireInstanceID)
	if err := row.Scan(&triggerName, &triggerGroup, &volatile, &instance, &firedMs, &state, &jobName, &jobGroup, &stateful, &requestsRecov); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &types.FiredTrigger{
		FireInstanceID:   fireInstanceID,
		TriggerKey:       types.TriggerKey{Name: triggerName, Group: triggerGroup},
		Volatile:         intToBool(volatile),
		InstanceID:       instance,
		FiredTime:        millisToTime(firedMs),
		State:            types.EntryState(state),
		JobKey:           types.JobKey{Name: jobName.String, Group: jobGroup.String},
		JobBound:         jobName.Valid && jobName.String != "",
		Stateful:         intToBool(stateful),
		RequestsRecovery: intToBool(requestsRecov),
	}, nil
}

func updateFiredTriggerState(ctx context.Context, conn *sql.Conn, gw *gateway, entry *types.FiredTrigger) error {
	_, err := conn.ExecContext(ctx, gw.sql(sqlUpdateFiredTriggerState),
		string(entry.State), entry.JobKey.Name, entry.JobKey.Group,
		boolToInt(entry.Stateful), boolToInt(entry.RequestsRecovery), entry.FireInstanceID)
	return err
}
