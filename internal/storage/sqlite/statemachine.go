package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/quartzdb/jobstore/internal/types"
)

// PauseTrigger moves a single trigger WAITING/ACQUIRED -> PAUSED or
// BLOCKED -> PAUSED_BLOCKED (spec §4.4). A trigger already paused or complete
// is left untouched; an absent trigger yields ErrNotFound.
func (s *Store) PauseTrigger(ctx context.Context, key types.TriggerKey) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		current, err := currentState(ctx, conn, s.gw, key)
		if err != nil {
			return err
		}
		target := types.StatePaused
		if current == types.StateBlocked {
			target = types.StatePausedBlocked
		}
		if current != types.StateWaiting && current != types.StateAcquired && current != types.StateBlocked {
			return nil
		}
		_, err = conn.ExecContext(ctx, s.gw.sql(sqlConditionalStateUpdate), string(target), key.Name, key.Group, string(current))
		return err
	})
	return types.WrapPersistence("PauseTrigger", err)
}

// ResumeTrigger moves PAUSED -> WAITING and PAUSED_BLOCKED -> BLOCKED,
// unless the trigger's group is itself paused, in which case it is left
// paused (matching the reference store's group-override behaviour).
func (s *Store) ResumeTrigger(ctx context.Context, key types.TriggerKey) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		current, err := currentState(ctx, conn, s.gw, key)
		if err != nil {
			return err
		}
		if current != types.StatePaused && current != types.StatePausedBlocked {
			return nil
		}
		groupPaused, err := groupIsPaused(ctx, conn, s.gw, key.Group)
		if err != nil {
			return err
		}
		if groupPaused {
			return nil
		}
		target := types.StateWaiting
		if current == types.StatePausedBlocked {
			target = types.StateBlocked
		}
		_, err = conn.ExecContext(ctx, s.gw.sql(sqlConditionalStateUpdate), string(target), key.Name, key.Group, string(current))
		return err
	})
	return types.WrapPersistence("ResumeTrigger", err)
}

// PauseTriggerGroup records group as paused and pauses every trigger
// currently in it (spec §8 scenario 5).
func (s *Store) PauseTriggerGroup(ctx context.Context, group string) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, s.gw.sql(sqlInsertPausedGroup), group); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, s.gw.sql(sqlStateUpdateByGroupIn2),
			string(types.StatePaused), group, string(types.StateWaiting), string(types.StateAcquired)); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlStateUpdateByGroup),
			string(types.StatePausedBlocked), group, string(types.StateBlocked))
		return err
	})
	return types.WrapPersistence("PauseTriggerGroup", err)
}

// ResumeTriggerGroup un-pauses group and resumes every trigger in it
// (spec §8 scenario 5: "Resume inverts exactly that").
func (s *Store) ResumeTriggerGroup(ctx context.Context, group string) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, s.gw.sql(sqlDeletePausedGroup), group); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, s.gw.sql(sqlStateUpdateByGroup),
			string(types.StateWaiting), group, string(types.StatePaused)); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlStateUpdateByGroup),
			string(types.StateBlocked), group, string(types.StatePausedBlocked))
		return err
	})
	return types.WrapPersistence("ResumeTriggerGroup", err)
}

// IsTriggerGroupPaused reports whether group has been paused (spec §9
// supplemented feature, alongside the bare pause/resume operations).
func (s *Store) IsTriggerGroupPaused(ctx context.Context, group string) (bool, error) {
	exists, err := s.rowExists(ctx, sqlIsGroupPaused, group)
	return exists, types.WrapPersistence("IsTriggerGroupPaused", err)
}

// GetPausedTriggerGroups returns every paused group name.
func (s *Store) GetPausedTriggerGroups(ctx context.Context) ([]string, error) {
	names, err := s.selectStrings(ctx, sqlPausedGroupNames)
	return names, types.WrapPersistence("GetPausedTriggerGroups", err)
}

func currentState(ctx context.Context, conn *sql.Conn, gw *gateway, key types.TriggerKey) (types.TriggerState, error) {
	row := conn.QueryRowContext(ctx, gw.sql(sqlTriggerState), key.Name, key.Group)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.StateDeleted, types.ErrNotFound
		}
		return "", err
	}
	return types.TriggerState(raw), nil
}

func groupIsPaused(ctx context.Context, conn *sql.Conn, gw *gateway, group string) (bool, error) {
	row := conn.QueryRowContext(ctx, gw.sql(sqlIsGroupPaused), group)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
