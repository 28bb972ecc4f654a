package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quartzdb/jobstore/internal/codec"
	"github.com/quartzdb/jobstore/internal/types"
)

// InsertTrigger persists the base trigger row, its listener rows, and
// exactly one variant row selected by t.Type (spec §3 invariant: "exactly
// one variant row exists per base trigger row").
func (s *Store) InsertTrigger(ctx context.Context, t *types.Trigger) error {
	const op = "InsertTrigger"
	data, err := s.codec.Encode(t.JobDataMap)
	if err != nil {
		return types.WrapPersistence(op, err)
	}

	err = s.gw.withTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlInsertTrigger),
			t.Key.Name, t.Key.Group, t.JobKey.Name, t.JobKey.Group, t.Description,
			nullableTimeToMillis(t.NextFireTime), nullableTimeToMillis(t.PrevFireTime),
			string(t.State), string(t.Type), timeToMillis(t.StartTime), nullableTimeToMillis(t.EndTime),
			nullString(t.CalendarName), int64(t.MisfireInstruction), boolToInt(t.Volatile), data)
		if err != nil {
			if isUniqueViolation(err) {
				return types.ErrObjectAlreadyExists
			}
			return err
		}
		if err := insertVariant(ctx, conn, s.gw, t); err != nil {
			return err
		}
		return insertListeners(ctx, conn, s.gw.sql(sqlInsertTriggerListener), t.Key.Name, t.Key.Group, t.Listeners)
	})
	return types.WrapPersistence(op, err)
}

// UpdateTrigger overwrites the base row, the variant row, and the listener
// set for an existing trigger.
func (s *Store) UpdateTrigger(ctx context.Context, t *types.Trigger) error {
	const op = "UpdateTrigger"
	data, err := s.codec.Encode(t.JobDataMap)
	if err != nil {
		return types.WrapPersistence(op, err)
	}

	err = s.gw.withTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, s.gw.sql(sqlUpdateTrigger),
			t.JobKey.Name, t.JobKey.Group, t.Description,
			nullableTimeToMillis(t.NextFireTime), nullableTimeToMillis(t.PrevFireTime),
			string(t.State), timeToMillis(t.StartTime), nullableTimeToMillis(t.EndTime),
			nullString(t.CalendarName), int64(t.MisfireInstruction), boolToInt(t.Volatile), data,
			t.Key.Name, t.Key.Group)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		if err := updateVariant(ctx, conn, s.gw, t); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteTriggerListeners), t.Key.Name, t.Key.Group); err != nil {
			return err
		}
		return insertListeners(ctx, conn, s.gw.sql(sqlInsertTriggerListener), t.Key.Name, t.Key.Group, t.Listeners)
	})
	return types.WrapPersistence(op, err)
}

// DeleteTrigger removes the base trigger row. Its variant and listener rows
// cascade per the schema. A non-durable job exists only while at least one
// trigger references it (spec §3), so if this was the job's last trigger and
// the job is not durable, the job row is deleted too.
func (s *Store) DeleteTrigger(ctx context.Context, key types.TriggerKey) error {
	const op = "DeleteTrigger"
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		var jobName, jobGroup string
		row := conn.QueryRowContext(ctx, s.gw.sql(sqlTriggerJobKey), key.Name, key.Group)
		if err := row.Scan(&jobName, &jobGroup); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.ErrNotFound
			}
			return err
		}

		res, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteTrigger), key.Name, key.Group)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}

		return deleteJobIfOrphanedAndNonDurable(ctx, conn, s.gw, types.JobKey{Name: jobName, Group: jobGroup})
	})
	return types.WrapPersistence(op, err)
}

// deleteJobIfOrphanedAndNonDurable deletes jobKey's job row if it has no
// remaining triggers and is not durable (spec §3).
func deleteJobIfOrphanedAndNonDurable(ctx context.Context, conn *sql.Conn, gw *gateway, jobKey types.JobKey) error {
	var durable int64
	row := conn.QueryRowContext(ctx, gw.sql(sqlJobDurable), jobKey.Name, jobKey.Group)
	if err := row.Scan(&durable); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if intToBool(durable) {
		return nil
	}

	var one int
	row = conn.QueryRowContext(ctx, gw.sql(sqlJobHasTriggers), jobKey.Name, jobKey.Group)
	if err := row.Scan(&one); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	} else {
		return nil // another trigger still references the job
	}

	_, err := conn.ExecContext(ctx, gw.sql(sqlDeleteJob), jobKey.Name, jobKey.Group)
	return err
}

// GetTrigger loads the base row, its variant payload, and its listeners.
func (s *Store) GetTrigger(ctx context.Context, key types.TriggerKey) (*types.Trigger, error) {
	const op = "GetTrigger"
	var trig *types.Trigger
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		t, err := scanTrigger(ctx, conn, s.gw, s.codec, key)
		if err != nil {
			return err
		}
		trig = t
		return nil
	})
	if err != nil {
		return nil, types.WrapPersistence(op, err)
	}
	return trig, nil
}

func scanTrigger(ctx context.Context, conn *sql.Conn, gw *gateway, c *codec.Codec, key types.TriggerKey) (*types.Trigger, error) {
	var (
		jobName, jobGroup, description                    string
		nextFireMs, prevFireMs, startMs, endMs              int64
		state, typ                                          string
		calendarName                                        sql.NullString
		misfireInstr                                        int64
		volatile                                            int64
		data                                                 []byte
	)
	row := conn.QueryRowContext(ctx, gw.sql(sqlSelectTrigger), key.Name, key.Group)
	if err := row.Scan(&jobName, &jobGroup, &description, &nextFireMs, &prevFireMs, &state, &typ,
		&startMs, &endMs, &calendarName, &misfireInstr, &volatile, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}

	dataMap, err := c.Decode(data)
	if err != nil {
		return nil, err
	}

	t := &types.Trigger{
		Key:                key,
		JobKey:             types.JobKey{Name: jobName, Group: jobGroup},
		Description:        description,
		Volatile:           intToBool(volatile),
		NextFireTime:       millisToNullableTime(nextFireMs),
		PrevFireTime:       millisToNullableTime(prevFireMs),
		StartTime:          millisToTime(startMs),
		EndTime:            millisToNullableTime(endMs),
		CalendarName:       calendarName.String,
		MisfireInstruction: types.MisfireInstruction(misfireInstr),
		State:              types.TriggerState(state),
		JobDataMap:         dataMap,
		Type:               types.TriggerType(typ),
	}

	if err := loadVariant(ctx, conn, gw, t); err != nil {
		return nil, err
	}

	listeners, err := selectListenerNames(ctx, conn, gw.sql(sqlSelectTriggerListenerNames), key.Name, key.Group)
	if err != nil {
		return nil, err
	}
	t.Listeners = listeners
	return t, nil
}

// TriggerExists reports whether a trigger row exists for key.
func (s *Store) TriggerExists(ctx context.Context, key types.TriggerKey) (bool, error) {
	exists, err := s.rowExists(ctx, sqlTriggerExists, key.Name, key.Group)
	return exists, types.WrapPersistence("TriggerExists", err)
}

// GetTriggerGroupNames returns every distinct trigger group present.
func (s *Store) GetTriggerGroupNames(ctx context.Context) ([]string, error) {
	names, err := s.selectStrings(ctx, sqlTriggerGroupNames)
	return names, types.WrapPersistence("GetTriggerGroupNames", err)
}

// GetTriggerNamesInGroup returns every trigger name within group.
func (s *Store) GetTriggerNamesInGroup(ctx context.Context, group string) ([]string, error) {
	names, err := s.selectStrings(ctx, sqlTriggerNamesInGroup, group)
	return names, types.WrapPersistence("GetTriggerNamesInGroup", err)
}

// GetTriggerKeysForJob returns the keys of every trigger attached to jobKey.
func (s *Store) GetTriggerKeysForJob(ctx context.Context, jobKey types.JobKey) ([]types.TriggerKey, error) {
	keys, err := s.triggerKeysForJob(ctx, jobKey)
	return keys, types.WrapPersistence("GetTriggerKeysForJob", err)
}

// GetTriggerNamesForJob returns the same keys as GetTriggerKeysForJob under
// the supplemented-feature name.
func (s *Store) GetTriggerNamesForJob(ctx context.Context, jobKey types.JobKey) ([]types.TriggerKey, error) {
	keys, err := s.triggerKeysForJob(ctx, jobKey)
	return keys, types.WrapPersistence("GetTriggerNamesForJob", err)
}

func (s *Store) triggerKeysForJob(ctx context.Context, jobKey types.JobKey) ([]types.TriggerKey, error) {
	var out []types.TriggerKey
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, s.gw.sql(sqlTriggerKeysForJob), jobKey.Name, jobKey.Group)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name, group string
			if err := rows.Scan(&name, &group); err != nil {
				return err
			}
			out = append(out, types.TriggerKey{Name: name, Group: group})
		}
		return rows.Err()
	})
	return out, err
}

// GetTriggersForJob loads every full trigger attached to jobKey (spec §9
// supplemented feature). The stateful-job BLOCKED/unblock fan-out does not
// use it; it updates trigger states by job key directly.
func (s *Store) GetTriggersForJob(ctx context.Context, jobKey types.JobKey) ([]*types.Trigger, error) {
	const op = "GetTriggersForJob"
	var out []*types.Trigger
	keys, err := s.triggerKeysForJob(ctx, jobKey)
	if err != nil {
		return nil, types.WrapPersistence(op, err)
	}
	err = s.gw.withConn(ctx, func(conn *sql.Conn) error {
		for _, k := range keys {
			t, err := scanTrigger(ctx, conn, s.gw, s.codec, k)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, types.WrapPersistence(op, err)
	}
	return out, nil
}

// GetTriggerState returns a trigger's persisted state, or StateDeleted if
// the row is absent (matching the reference store's convention that
// DELETED is never itself a stored value, spec §4.4).
func (s *Store) GetTriggerState(ctx context.Context, key types.TriggerKey) (types.TriggerState, error) {
	var state types.TriggerState
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, s.gw.sql(sqlTriggerState), key.Name, key.Group)
		var raw string
		if err := row.Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				state = types.StateDeleted
				return nil
			}
			return err
		}
		state = types.TriggerState(raw)
		return nil
	})
	if err != nil {
		return "", types.WrapPersistence("GetTriggerState", err)
	}
	return state, nil
}

// AddTriggerListener registers listenerName against key.
func (s *Store) AddTriggerListener(ctx context.Context, key types.TriggerKey, listenerName string) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		return addListener(ctx, conn, s.gw.sql(sqlSelectTriggerListenerNames), s.gw.sql(sqlInsertTriggerListener), key.Name, key.Group, listenerName)
	})
	return types.WrapPersistence("AddTriggerListener", err)
}

// RemoveTriggerListener deregisters listenerName from key.
func (s *Store) RemoveTriggerListener(ctx context.Context, key types.TriggerKey, listenerName string) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteTriggerListenerByName), key.Name, key.Group, listenerName)
		return err
	})
	return types.WrapPersistence("RemoveTriggerListener", err)
}

// GetTriggerListenerNames returns key's listener names in registration order.
func (s *Store) GetTriggerListenerNames(ctx context.Context, key types.TriggerKey) ([]string, error) {
	var names []string
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		names, err = selectListenerNames(ctx, conn, s.gw.sql(sqlSelectTriggerListenerNames), key.Name, key.Group)
		return err
	})
	return names, types.WrapPersistence("GetTriggerListenerNames", err)
}

func insertVariant(ctx context.Context, conn *sql.Conn, gw *gateway, t *types.Trigger) error {
	switch t.Type {
	case types.TriggerTypeSimple:
		if t.Simple == nil {
			return fmt.Errorf("insert trigger %s: SIMPLE type requires a SimpleTrigger payload", t.Key)
		}
		_, err := conn.ExecContext(ctx, gw.sql(sqlInsertSimple), t.Key.Name, t.Key.Group,
			t.Simple.RepeatCount, t.Simple.RepeatIntervalMs, t.Simple.TimesTriggered)
		return err
	case types.TriggerTypeCron:
		if t.Cron == nil {
			return fmt.Errorf("insert trigger %s: CRON type requires a CronTrigger payload", t.Key)
		}
		_, err := conn.ExecContext(ctx, gw.sql(sqlInsertCron), t.Key.Name, t.Key.Group, t.Cron.CronExpression, t.Cron.TimeZoneID)
		return err
	case types.TriggerTypeBlob:
		if t.Blob == nil {
			return fmt.Errorf("insert trigger %s: BLOB type requires a BlobTrigger payload", t.Key)
		}
		_, err := conn.ExecContext(ctx, gw.sql(sqlInsertBlob), t.Key.Name, t.Key.Group, t.Blob.Data)
		return err
	default:
		return fmt.Errorf("insert trigger %s: unknown trigger type %q", t.Key, t.Type)
	}
}

func updateVariant(ctx context.Context, conn *sql.Conn, gw *gateway, t *types.Trigger) error {
	switch t.Type {
	case types.TriggerTypeSimple:
		if t.Simple == nil {
			return fmt.Errorf("update trigger %s: SIMPLE type requires a SimpleTrigger payload", t.Key)
		}
		_, err := conn.ExecContext(ctx, gw.sql(sqlUpdateSimple),
			t.Simple.RepeatCount, t.Simple.RepeatIntervalMs, t.Simple.TimesTriggered, t.Key.Name, t.Key.Group)
		return err
	case types.TriggerTypeCron:
		if t.Cron == nil {
			return fmt.Errorf("update trigger %s: CRON type requires a CronTrigger payload", t.Key)
		}
		_, err := conn.ExecContext(ctx, gw.sql(sqlUpdateCron), t.Cron.CronExpression, t.Cron.TimeZoneID, t.Key.Name, t.Key.Group)
		return err
	case types.TriggerTypeBlob:
		if t.Blob == nil {
			return fmt.Errorf("update trigger %s: BLOB type requires a BlobTrigger payload", t.Key)
		}
		_, err := conn.ExecContext(ctx, gw.sql(sqlUpdateBlob), t.Blob.Data, t.Key.Name, t.Key.Group)
		return err
	default:
		return fmt.Errorf("update trigger %s: unknown trigger type %q", t.Key, t.Type)
	}
}

func loadVariant(ctx context.Context, conn *sql.Conn, gw *gateway, t *types.Trigger) error {
	switch t.Type {
	case types.TriggerTypeSimple:
		var repeatCount, repeatInterval, timesTriggered int64
		row := conn.QueryRowContext(ctx, gw.sql(sqlSelectSimple), t.Key.Name, t.Key.Group)
		if err := row.Scan(&repeatCount, &repeatInterval, &timesTriggered); err != nil {
			return fmt.Errorf("load simple trigger %s: %w", t.Key, err)
		}
		t.Simple = &types.SimpleTrigger{RepeatCount: repeatCount, RepeatIntervalMs: repeatInterval, TimesTriggered: timesTriggered}
		return nil
	case types.TriggerTypeCron:
		var expr string
		var tz sql.NullString
		row := conn.QueryRowContext(ctx, gw.sql(sqlSelectCron), t.Key.Name, t.Key.Group)
		if err := row.Scan(&expr, &tz); err != nil {
			return fmt.Errorf("load cron trigger %s: %w", t.Key, err)
		}
		t.Cron = &types.CronTrigger{CronExpression: expr, TimeZoneID: tz.String}
		return nil
	case types.TriggerTypeBlob:
		var data []byte
		row := conn.QueryRowContext(ctx, gw.sql(sqlSelectBlob), t.Key.Name, t.Key.Group)
		if err := row.Scan(&data); err != nil {
			return fmt.Errorf("load blob trigger %s: %w", t.Key, err)
		}
		t.Blob = &types.BlobTrigger{Data: data}
		return nil
	default:
		return fmt.Errorf("load trigger %s: unknown trigger type %q", t.Key, t.Type)
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
