package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/quartzdb/jobstore/internal/types"
)

// InsertJob persists a new job row plus its listener rows inside one
// transaction, failing with ErrObjectAlreadyExists if the (name, group)
// identity is already taken (spec §4.3).
func (s *Store) InsertJob(ctx context.Context, job *types.Job) error {
	const op = "InsertJob"
	data, err := s.codec.Encode(job.JobDataMap)
	if err != nil {
		return types.WrapPersistence(op, err)
	}

	err = s.gw.withTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlInsertJob),
			job.Key.Name, job.Key.Group, job.Description, job.JobClass,
			boolToInt(job.Durable), boolToInt(job.Volatile), boolToInt(job.Stateful),
			boolToInt(job.RequestsRecovery), data)
		if err != nil {
			if isUniqueViolation(err) {
				return types.ErrObjectAlreadyExists
			}
			return err
		}
		return insertListeners(ctx, conn, s.gw.sql(sqlInsertJobListener), job.Key.Name, job.Key.Group, job.Listeners)
	})
	return types.WrapPersistence(op, err)
}

// UpdateJob overwrites an existing job row and replaces its listener set.
func (s *Store) UpdateJob(ctx context.Context, job *types.Job) error {
	const op = "UpdateJob"
	data, err := s.codec.Encode(job.JobDataMap)
	if err != nil {
		return types.WrapPersistence(op, err)
	}

	err = s.gw.withTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, s.gw.sql(sqlUpdateJob),
			job.Description, job.JobClass, boolToInt(job.Durable), boolToInt(job.Volatile),
			boolToInt(job.Stateful), boolToInt(job.RequestsRecovery), data,
			job.Key.Name, job.Key.Group)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		if _, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteJobListeners), job.Key.Name, job.Key.Group); err != nil {
			return err
		}
		return insertListeners(ctx, conn, s.gw.sql(sqlInsertJobListener), job.Key.Name, job.Key.Group, job.Listeners)
	})
	return types.WrapPersistence(op, err)
}

// DeleteJob removes a job row. Trigger and listener rows referencing it are
// removed by the schema's ON DELETE CASCADE.
func (s *Store) DeleteJob(ctx context.Context, key types.JobKey) error {
	const op = "DeleteJob"
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteJob), key.Name, key.Group)
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

// GetJob loads a job row and its listener names.
func (s *Store) GetJob(ctx context.Context, key types.JobKey) (*types.Job, error) {
	const op = "GetJob"
	var job *types.Job
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		var (
			description, class                                       string
			durable, volatile, stateful, requestsRecovery             int64
			data                                                      []byte
		)
		row := conn.QueryRowContext(ctx, s.gw.sql(sqlSelectJob), key.Name, key.Group)
		if err := row.Scan(&description, &class, &durable, &volatile, &stateful, &requestsRecovery, &data); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.ErrNotFound
			}
			return err
		}
		dataMap, err := s.codec.Decode(data)
		if err != nil {
			return err
		}
		listeners, err := selectListenerNames(ctx, conn, s.gw.sql(sqlSelectJobListenerNames), key.Name, key.Group)
		if err != nil {
			return err
		}
		job = &types.Job{
			Key: key, Description: description, JobClass: class,
			Durable: intToBool(durable), Volatile: intToBool(volatile),
			Stateful: intToBool(stateful), RequestsRecovery: intToBool(requestsRecovery),
			JobDataMap: dataMap, Listeners: listeners,
		}
		return nil
	})
	if err != nil {
		return nil, types.WrapPersistence(op, err)
	}
	return job, nil
}

// JobExists reports whether a job row exists for key.
func (s *Store) JobExists(ctx context.Context, key types.JobKey) (bool, error) {
	exists, err := s.rowExists(ctx, sqlJobExists, key.Name, key.Group)
	return exists, types.WrapPersistence("JobExists", err)
}

// GetJobGroupNames returns every distinct job group present.
func (s *Store) GetJobGroupNames(ctx context.Context) ([]string, error) {
	names, err := s.selectStrings(ctx, sqlJobGroupNames)
	return names, types.WrapPersistence("GetJobGroupNames", err)
}

// GetJobNamesInGroup returns every job name within group.
func (s *Store) GetJobNamesInGroup(ctx context.Context, group string) ([]string, error) {
	names, err := s.selectStrings(ctx, sqlJobNamesInGroup, group)
	return names, types.WrapPersistence("GetJobNamesInGroup", err)
}

// AddJobListener registers listenerName against key, appended after any
// existing listeners for that job.
func (s *Store) AddJobListener(ctx context.Context, key types.JobKey, listenerName string) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		return addListener(ctx, conn, s.gw.sql(sqlSelectJobListenerNames), s.gw.sql(sqlInsertJobListener), key.Name, key.Group, listenerName)
	})
	return types.WrapPersistence("AddJobListener", err)
}

// RemoveJobListener deregisters listenerName from key.
func (s *Store) RemoveJobListener(ctx context.Context, key types.JobKey, listenerName string) error {
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteJobListenerByName), key.Name, key.Group, listenerName)
		return err
	})
	return types.WrapPersistence("RemoveJobListener", err)
}

// GetJobListenerNames returns key's listener names in registration order.
func (s *Store) GetJobListenerNames(ctx context.Context, key types.JobKey) ([]string, error) {
	var names []string
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		names, err = selectListenerNames(ctx, conn, s.gw.sql(sqlSelectJobListenerNames), key.Name, key.Group)
		return err
	})
	return names, types.WrapPersistence("GetJobListenerNames", err)
}

// rowExists runs a "SELECT 1 ... LIMIT implied by PK" query and reports
// whether it returned a row.
func (s *Store) rowExists(ctx context.Context, tmpl string, args ...any) (bool, error) {
	var found bool
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, s.gw.sql(tmpl), args...)
		var one int
		if err := row.Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (s *Store) selectStrings(ctx context.Context, tmpl string, args ...any) ([]string, error) {
	var out []string
	err := s.gw.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, s.gw.sql(tmpl), args...)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := rows.Close(); cerr != nil {
				s.logger.Warn("sqlite: failed to close rows", "error", cerr)
			}
		}()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	return out, err
}

func insertListeners(ctx context.Context, conn *sql.Conn, insertSQL, name, group string, listeners []string) error {
	for seq, listener := range listeners {
		if _, err := conn.ExecContext(ctx, insertSQL, name, group, listener, seq); err != nil {
			return fmt.Errorf("insert listener %q: %w", listener, err)
		}
	}
	return nil
}

func selectListenerNames(ctx context.Context, conn *sql.Conn, selectSQL, name, group string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, selectSQL, name, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func addListener(ctx context.Context, conn *sql.Conn, selectSQL, insertSQL, name, group, listenerName string) error {
	existing, err := selectListenerNames(ctx, conn, selectSQL, name, group)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, insertSQL, name, group, listenerName, len(existing))
	return err
}

// isUniqueViolation reports whether err looks like a SQLite primary-key or
// unique-constraint violation (grounded on the teacher's errors.go, which
// classifies driver errors by substring match on the same family of
// SQLite error text rather than a typed error value).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
