package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quartzdb/jobstore/internal/schedule"
	"github.com/quartzdb/jobstore/internal/types"
)

// ScanMisfiredTriggers enumerates WAITING triggers whose next-fire-time has
// passed by more than the configured misfire threshold, optionally
// restricted to groupFilter, and applies each one's misfire instruction
// (spec §4.7). It acquires the TRIGGER_ACCESS advisory lock for the
// duration of the scan (spec §5).
func (s *Store) ScanMisfiredTriggers(ctx context.Context, now time.Time, groupFilter string) (int, error) {
	const op = "ScanMisfiredTriggers"
	var count int

	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		held, err := acquireLock(ctx, conn, s.gw, lockTriggerAccess, s.cfg.InstanceID)
		if err != nil {
			return err
		}
		if !held {
			s.logger.Info("sqlite: TRIGGER_ACCESS lock already held; skipping misfire scan this tick")
			return nil
		}
		defer func() {
			if _, err := releaseLock(ctx, conn, s.gw, lockTriggerAccess, s.cfg.InstanceID); err != nil {
				s.logger.Warn("sqlite: failed to release TRIGGER_ACCESS lock", "error", err)
			}
		}()

		cutoff := timeToMillis(now) - s.cfg.MisfireThresholdMs

		var rows *sql.Rows
		if groupFilter == "" {
			rows, err = conn.QueryContext(ctx, s.gw.sql(sqlMisfireCandidates), string(types.StateWaiting), cutoff)
		} else {
			rows, err = conn.QueryContext(ctx, s.gw.sql(sqlMisfireCandidatesByGroup), string(types.StateWaiting), cutoff, groupFilter)
		}
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

		for _, key := range candidates {
			t, err := scanTrigger(ctx, conn, s.gw, s.codec, key)
			if err != nil {
				return err
			}
			if t.State != types.StateWaiting {
				continue // claimed by another instance since the scan
			}
			if err := schedule.ApplyMisfirePolicy(s.schedule, t, now); err != nil {
				return err
			}
			if t.NextFireTime == nil {
				t.State = types.StateComplete
			}
			res, err := conn.ExecContext(ctx, s.gw.sql(sqlUpdateFireTimes),
				string(t.State), nullableTimeToMillis(t.NextFireTime), nullableTimeToMillis(t.PrevFireTime),
				key.Name, key.Group, string(types.StateWaiting))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if t.Type == types.TriggerTypeSimple && t.Simple != nil {
				if _, err := conn.ExecContext(ctx, s.gw.sql(sqlUpdateSimple),
					t.Simple.RepeatCount, t.Simple.RepeatIntervalMs, t.Simple.TimesTriggered, key.Name, key.Group); err != nil {
					return err
				}
			}
			count++
			s.misfiredCounter.Add(ctx, 1)
		}
		return nil
	})
	if err != nil {
		return 0, types.WrapPersistence(op, err)
	}
	return count, nil
}
