package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/quartzdb/jobstore/internal/types"
)

// InsertCalendar persists a new calendar row under an opaque name.
func (s *Store) InsertCalendar(ctx context.Context, cal *types.Calendar) error {
	const op = "InsertCalendar"
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlInsertCalendar), cal.Name, cal.Data)
		if err != nil && isUniqueViolation(err) {
			return types.ErrObjectAlreadyExists
		}
		return err
	})
	return types.WrapPersistence(op, err)
}

// UpdateCalendar overwrites an existing calendar's payload.
func (s *Store) UpdateCalendar(ctx context.Context, cal *types.Calendar) error {
	const op = "UpdateCalendar"
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, s.gw.sql(sqlUpdateCalendar), cal.Data, cal.Name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		return nil
	})
	return types.WrapPersistence(op, err)
}

// DeleteCalendar removes a calendar row, refusing with ErrCalendarInUse if
// any trigger still references it (spec §4.3 invariant: a calendar in use
// cannot be deleted).
func (s *Store) DeleteCalendar(ctx context.Context, name string) error {
	const op = "DeleteCalendar"
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		inUse, err := s.calendarInUse(ctx, conn, name)
		if err != nil {
			return err
		}
		if inUse {
			return types.ErrCalendarInUse
		}
		res, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteCalendar), name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		return nil
	})
	return types.WrapPersistence(op, err)
}

func (s *Store) calendarInUse(ctx context.Context, conn *sql.Conn, name string) (bool, error) {
	row := conn.QueryRowContext(ctx, s.gw.sql(sqlTriggersUsingCalendar), name)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetCalendar loads a calendar by name.
func (s *Store) GetCalendar(ctx context.Context, name string) (*types.Calendar, error) {
	const op = "GetCalendar"
	var cal *types.Calendar
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		var data []byte
		row := conn.QueryRowContext(ctx, s.gw.sql(sqlSelectCalendar), name)
		if err := row.Scan(&data); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.ErrNotFound
			}
			return err
		}
		cal = &types.Calendar{Name: name, Data: data}
		return nil
	})
	if err != nil {
		return nil, types.WrapPersistence(op, err)
	}
	return cal, nil
}

// GetCalendarNames returns every calendar name in no particular order.
func (s *Store) GetCalendarNames(ctx context.Context) ([]string, error) {
	names, err := s.selectStrings(ctx, sqlCalendarNames)
	return names, types.WrapPersistence("GetCalendarNames", err)
}
