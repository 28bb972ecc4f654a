// Package sqlite implements the job store (internal/storage.Store) on top
// of a single SQLite database, accessed through github.com/ncruces/go-sqlite3
// (pure Go, no cgo). It is the SQL Gateway (spec §4.1), the Job/Trigger/
// Calendar Repository (spec §4.3), the Fired-Trigger Ledger (spec §4.5),
// the trigger State Machine (spec §4.4), Acquisition & Completion
// (spec §4.5), the Cluster Manager (spec §4.6) and the Misfire Handler
// (spec §4.7), all in one package the way the teacher keeps one storage
// backend's concerns together under internal/storage/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Named SQL Gateway statement templates (spec §4.1). Every template carries
// a {PREFIX} placeholder substituted once per execution by gw.sql.
const (
	sqlInsertJob = `INSERT INTO {PREFIX}JOB_DETAILS
		(JOB_NAME, JOB_GROUP, DESCRIPTION, JOB_CLASS, IS_DURABLE, IS_VOLATILE, IS_STATEFUL, REQUESTS_RECOVERY, JOB_DATA)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpdateJob = `UPDATE {PREFIX}JOB_DETAILS SET
		DESCRIPTION = ?, JOB_CLASS = ?, IS_DURABLE = ?, IS_VOLATILE = ?, IS_STATEFUL = ?, REQUESTS_RECOVERY = ?, JOB_DATA = ?
		WHERE JOB_NAME = ? AND JOB_GROUP = ?`

	sqlUpdateJobDataOnly = `UPDATE {PREFIX}JOB_DETAILS SET JOB_DATA = ? WHERE JOB_NAME = ? AND JOB_GROUP = ?`

	sqlDeleteJob  = `DELETE FROM {PREFIX}JOB_DETAILS WHERE JOB_NAME = ? AND JOB_GROUP = ?`
	sqlSelectJob  = `SELECT DESCRIPTION, JOB_CLASS, IS_DURABLE, IS_VOLATILE, IS_STATEFUL, REQUESTS_RECOVERY, JOB_DATA
		FROM {PREFIX}JOB_DETAILS WHERE JOB_NAME = ? AND JOB_GROUP = ?`
	sqlJobExists          = `SELECT 1 FROM {PREFIX}JOB_DETAILS WHERE JOB_NAME = ? AND JOB_GROUP = ?`
	sqlJobGroupNames      = `SELECT DISTINCT JOB_GROUP FROM {PREFIX}JOB_DETAILS`
	sqlJobNamesInGroup    = `SELECT JOB_NAME FROM {PREFIX}JOB_DETAILS WHERE JOB_GROUP = ?`
	sqlJobHasTriggers     = `SELECT 1 FROM {PREFIX}TRIGGERS WHERE JOB_NAME = ? AND JOB_GROUP = ? LIMIT 1`
	sqlJobDurable         = `SELECT IS_DURABLE FROM {PREFIX}JOB_DETAILS WHERE JOB_NAME = ? AND JOB_GROUP = ?`

	sqlInsertJobListener      = `INSERT INTO {PREFIX}JOB_LISTENERS (JOB_NAME, JOB_GROUP, LISTENER_NAME, SEQ) VALUES (?, ?, ?, ?)`
	sqlDeleteJobListeners     = `DELETE FROM {PREFIX}JOB_LISTENERS WHERE JOB_NAME = ? AND JOB_GROUP = ?`
	sqlSelectJobListenerNames = `SELECT LISTENER_NAME FROM {PREFIX}JOB_LISTENERS WHERE JOB_NAME = ? AND JOB_GROUP = ? ORDER BY SEQ`

	sqlInsertTrigger = `INSERT INTO {PREFIX}TRIGGERS
		(TRIGGER_NAME, TRIGGER_GROUP, JOB_NAME, JOB_GROUP, DESCRIPTION, NEXT_FIRE_TIME, PREV_FIRE_TIME,
		 TRIGGER_STATE, TRIGGER_TYPE, START_TIME, END_TIME, CALENDAR_NAME, MISFIRE_INSTR, IS_VOLATILE, JOB_DATA)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpdateTrigger = `UPDATE {PREFIX}TRIGGERS SET
		JOB_NAME = ?, JOB_GROUP = ?, DESCRIPTION = ?, NEXT_FIRE_TIME = ?, PREV_FIRE_TIME = ?,
		TRIGGER_STATE = ?, START_TIME = ?, END_TIME = ?, CALENDAR_NAME = ?, MISFIRE_INSTR = ?, IS_VOLATILE = ?, JOB_DATA = ?
		WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`

	sqlDeleteTrigger   = `DELETE FROM {PREFIX}TRIGGERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlTriggerJobKey   = `SELECT JOB_NAME, JOB_GROUP FROM {PREFIX}TRIGGERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlSelectTrigger = `SELECT JOB_NAME, JOB_GROUP, DESCRIPTION, NEXT_FIRE_TIME, PREV_FIRE_TIME, TRIGGER_STATE,
		TRIGGER_TYPE, START_TIME, END_TIME, CALENDAR_NAME, MISFIRE_INSTR, IS_VOLATILE, JOB_DATA
		FROM {PREFIX}TRIGGERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlTriggerExists       = `SELECT 1 FROM {PREFIX}TRIGGERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlTriggerGroupNames   = `SELECT DISTINCT TRIGGER_GROUP FROM {PREFIX}TRIGGERS`
	sqlTriggerNamesInGroup = `SELECT TRIGGER_NAME FROM {PREFIX}TRIGGERS WHERE TRIGGER_GROUP = ?`
	sqlTriggerKeysForJob   = `SELECT TRIGGER_NAME, TRIGGER_GROUP FROM {PREFIX}TRIGGERS WHERE JOB_NAME = ? AND JOB_GROUP = ?`
	sqlTriggerState        = `SELECT TRIGGER_STATE FROM {PREFIX}TRIGGERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlTriggersUsingCalendar = `SELECT 1 FROM {PREFIX}TRIGGERS WHERE CALENDAR_NAME = ? LIMIT 1`

	sqlInsertSimple = `INSERT INTO {PREFIX}SIMPLE_TRIGGERS (TRIGGER_NAME, TRIGGER_GROUP, REPEAT_COUNT, REPEAT_INTERVAL, TIMES_TRIGGERED) VALUES (?, ?, ?, ?, ?)`
	sqlUpdateSimple = `UPDATE {PREFIX}SIMPLE_TRIGGERS SET REPEAT_COUNT = ?, REPEAT_INTERVAL = ?, TIMES_TRIGGERED = ? WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlSelectSimple = `SELECT REPEAT_COUNT, REPEAT_INTERVAL, TIMES_TRIGGERED FROM {PREFIX}SIMPLE_TRIGGERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`

	sqlInsertCron = `INSERT INTO {PREFIX}CRON_TRIGGERS (TRIGGER_NAME, TRIGGER_GROUP, CRON_EXPRESSION, TIME_ZONE_ID) VALUES (?, ?, ?, ?)`
	sqlUpdateCron = `UPDATE {PREFIX}CRON_TRIGGERS SET CRON_EXPRESSION = ?, TIME_ZONE_ID = ? WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlSelectCron = `SELECT CRON_EXPRESSION, TIME_ZONE_ID FROM {PREFIX}CRON_TRIGGERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`

	sqlInsertBlob = `INSERT INTO {PREFIX}BLOB_TRIGGERS (TRIGGER_NAME, TRIGGER_GROUP, BLOB_DATA) VALUES (?, ?, ?)`
	sqlUpdateBlob = `UPDATE {PREFIX}BLOB_TRIGGERS SET BLOB_DATA = ? WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlSelectBlob = `SELECT BLOB_DATA FROM {PREFIX}BLOB_TRIGGERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`

	sqlInsertTriggerListener      = `INSERT INTO {PREFIX}TRIGGER_LISTENERS (TRIGGER_NAME, TRIGGER_GROUP, LISTENER_NAME, SEQ) VALUES (?, ?, ?, ?)`
	sqlDeleteTriggerListeners     = `DELETE FROM {PREFIX}TRIGGER_LISTENERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlSelectTriggerListenerNames = `SELECT LISTENER_NAME FROM {PREFIX}TRIGGER_LISTENERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ? ORDER BY SEQ`

	sqlInsertCalendar     = `INSERT INTO {PREFIX}CALENDARS (CALENDAR_NAME, CALENDAR) VALUES (?, ?)`
	sqlUpdateCalendar     = `UPDATE {PREFIX}CALENDARS SET CALENDAR = ? WHERE CALENDAR_NAME = ?`
	sqlDeleteCalendar     = `DELETE FROM {PREFIX}CALENDARS WHERE CALENDAR_NAME = ?`
	sqlSelectCalendar     = `SELECT CALENDAR FROM {PREFIX}CALENDARS WHERE CALENDAR_NAME = ?`
	sqlCalendarNames      = `SELECT CALENDAR_NAME FROM {PREFIX}CALENDARS`
	sqlCalendarExists     = `SELECT 1 FROM {PREFIX}CALENDARS WHERE CALENDAR_NAME = ?`

	sqlInsertPausedGroup  = `INSERT INTO {PREFIX}PAUSED_TRIGGER_GRPS (TRIGGER_GROUP) VALUES (?) ON CONFLICT (TRIGGER_GROUP) DO NOTHING`
	sqlDeletePausedGroup  = `DELETE FROM {PREFIX}PAUSED_TRIGGER_GRPS WHERE TRIGGER_GROUP = ?`
	sqlIsGroupPaused      = `SELECT 1 FROM {PREFIX}PAUSED_TRIGGER_GRPS WHERE TRIGGER_GROUP = ?`
	sqlPausedGroupNames   = `SELECT TRIGGER_GROUP FROM {PREFIX}PAUSED_TRIGGER_GRPS`

	sqlConditionalStateUpdate = `UPDATE {PREFIX}TRIGGERS SET TRIGGER_STATE = ? WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ? AND TRIGGER_STATE = ?`
	sqlConditionalStateUpdateIn2 = `UPDATE {PREFIX}TRIGGERS SET TRIGGER_STATE = ? WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ? AND TRIGGER_STATE IN (?, ?)`
	sqlStateUpdateByGroup     = `UPDATE {PREFIX}TRIGGERS SET TRIGGER_STATE = ? WHERE TRIGGER_GROUP = ? AND TRIGGER_STATE = ?`
	sqlStateUpdateByGroupIn2  = `UPDATE {PREFIX}TRIGGERS SET TRIGGER_STATE = ? WHERE TRIGGER_GROUP = ? AND TRIGGER_STATE IN (?, ?)`
	sqlStateUpdateByJob       = `UPDATE {PREFIX}TRIGGERS SET TRIGGER_STATE = ? WHERE JOB_NAME = ? AND JOB_GROUP = ? AND TRIGGER_STATE = ?`
	sqlUpdateFireTimes        = `UPDATE {PREFIX}TRIGGERS SET TRIGGER_STATE = ?, NEXT_FIRE_TIME = ?, PREV_FIRE_TIME = ? WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ? AND TRIGGER_STATE = ?`

	sqlCandidateTriggers = `SELECT TRIGGER_NAME, TRIGGER_GROUP FROM {PREFIX}TRIGGERS
		WHERE TRIGGER_STATE = ? AND NEXT_FIRE_TIME <= ? ORDER BY NEXT_FIRE_TIME ASC LIMIT ?`
	sqlMisfireCandidates = `SELECT TRIGGER_NAME, TRIGGER_GROUP FROM {PREFIX}TRIGGERS
		WHERE TRIGGER_STATE = ? AND NEXT_FIRE_TIME < ? AND NEXT_FIRE_TIME > -1`
	sqlMisfireCandidatesByGroup = `SELECT TRIGGER_NAME, TRIGGER_GROUP FROM {PREFIX}TRIGGERS
		WHERE TRIGGER_STATE = ? AND NEXT_FIRE_TIME < ? AND NEXT_FIRE_TIME > -1 AND TRIGGER_GROUP = ?`

	sqlInsertFiredTrigger = `INSERT INTO {PREFIX}FIRED_TRIGGERS
		(ENTRY_ID, TRIGGER_NAME, TRIGGER_GROUP, IS_VOLATILE, INSTANCE_NAME, FIRED_TIME, ENTRY_STATE, JOB_NAME, JOB_GROUP, IS_STATEFUL, REQUESTS_RECOVERY)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateFiredTriggerState = `UPDATE {PREFIX}FIRED_TRIGGERS SET ENTRY_STATE = ?, JOB_NAME = ?, JOB_GROUP = ?, IS_STATEFUL = ?, REQUESTS_RECOVERY = ? WHERE ENTRY_ID = ?`
	sqlDeleteFiredTrigger      = `DELETE FROM {PREFIX}FIRED_TRIGGERS WHERE ENTRY_ID = ?`
	sqlSelectFiredTrigger      = `SELECT TRIGGER_NAME, TRIGGER_GROUP, IS_VOLATILE, INSTANCE_NAME, FIRED_TIME, ENTRY_STATE, JOB_NAME, JOB_GROUP, IS_STATEFUL, REQUESTS_RECOVERY
		FROM {PREFIX}FIRED_TRIGGERS WHERE ENTRY_ID = ?`
	sqlFiredTriggersByInstance = `SELECT ENTRY_ID, TRIGGER_NAME, TRIGGER_GROUP, IS_VOLATILE, INSTANCE_NAME, FIRED_TIME, ENTRY_STATE, JOB_NAME, JOB_GROUP, IS_STATEFUL, REQUESTS_RECOVERY
		FROM {PREFIX}FIRED_TRIGGERS WHERE INSTANCE_NAME = ?`
	sqlDeleteFiredTriggersByInstance = `DELETE FROM {PREFIX}FIRED_TRIGGERS WHERE INSTANCE_NAME = ?`
	sqlDeleteFiredTriggersByTrigger  = `DELETE FROM {PREFIX}FIRED_TRIGGERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`

	sqlUpsertSchedulerState = `INSERT INTO {PREFIX}SCHEDULER_STATE (INSTANCE_NAME, LAST_CHECKIN_TIME, CHECKIN_INTERVAL, RECOVERER)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT (INSTANCE_NAME) DO UPDATE SET LAST_CHECKIN_TIME = excluded.LAST_CHECKIN_TIME, CHECKIN_INTERVAL = excluded.CHECKIN_INTERVAL`
	sqlDeleteSchedulerState   = `DELETE FROM {PREFIX}SCHEDULER_STATE WHERE INSTANCE_NAME = ?`
	sqlSelectAllSchedulerState = `SELECT INSTANCE_NAME, LAST_CHECKIN_TIME, CHECKIN_INTERVAL, RECOVERER FROM {PREFIX}SCHEDULER_STATE`
	sqlClaimRecovery          = `UPDATE {PREFIX}SCHEDULER_STATE SET RECOVERER = ? WHERE INSTANCE_NAME = ? AND (RECOVERER IS NULL OR RECOVERER = ?)`

	sqlDeleteJobListenerByName     = `DELETE FROM {PREFIX}JOB_LISTENERS WHERE JOB_NAME = ? AND JOB_GROUP = ? AND LISTENER_NAME = ?`
	sqlDeleteTriggerListenerByName = `DELETE FROM {PREFIX}TRIGGER_LISTENERS WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ? AND LISTENER_NAME = ?`

	sqlSetTriggerFireTimes     = `UPDATE {PREFIX}TRIGGERS SET TRIGGER_STATE = ?, NEXT_FIRE_TIME = ?, PREV_FIRE_TIME = ? WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlSetTriggerState         = `UPDATE {PREFIX}TRIGGERS SET TRIGGER_STATE = ? WHERE TRIGGER_NAME = ? AND TRIGGER_GROUP = ?`
	sqlSetTriggerStateByJob    = `UPDATE {PREFIX}TRIGGERS SET TRIGGER_STATE = ? WHERE JOB_NAME = ? AND JOB_GROUP = ?`

	sqlAcquireLock = `UPDATE {PREFIX}LOCKS SET HOLDER = ? WHERE LOCK_NAME = ? AND HOLDER IS NULL`
	sqlReleaseLock = `UPDATE {PREFIX}LOCKS SET HOLDER = NULL WHERE LOCK_NAME = ? AND HOLDER = ?`
	sqlSeedLock    = `INSERT INTO {PREFIX}LOCKS (LOCK_NAME, HOLDER) VALUES (?, NULL) ON CONFLICT (LOCK_NAME) DO NOTHING`
)

const (
	lockTriggerAccess = "TRIGGER_ACCESS"
	lockStateAccess   = "STATE_ACCESS"
)

// gateway owns the database handle, the configured table prefix, and the
// logger every component in this package shares. It is the SQL Gateway of
// spec §4.1: it substitutes {PREFIX} once per execution and scopes every
// connection/result-set it hands out.
type gateway struct {
	db     *sql.DB
	prefix string
	logger *slog.Logger
}

// sql returns tmpl with {PREFIX} substituted for the configured prefix.
func (g *gateway) sql(tmpl string) string {
	return substitutePrefix(tmpl, g.prefix)
}

// withConn acquires a dedicated connection, invokes fn, and releases the
// connection on every exit path including a panic recovered and re-raised
// by the caller's own defer chain. Close failures are logged, never
// propagated, because they cannot shadow the operation's own result
// (spec §4.1: "failures during release are swallowed (logged only)").
func (g *gateway) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			g.logger.Warn("sql gateway: failed to release connection", "error", cerr)
		}
	}()
	return fn(conn)
}

// withTx runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection, retrying transient SQLITE_BUSY/driver errors with
// exponential backoff (grounded on the teacher's dolt.withRetry /
// newServerRetryBackoff pattern). fn's error rolls the transaction back;
// a nil error commits. Resource release follows withConn's rules.
func (g *gateway) withTx(ctx context.Context, fn func(conn *sql.Conn) error) error {
	return g.withConn(ctx, func(conn *sql.Conn) error {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 10 * time.Second

		return backoff.Retry(func() error {
			if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
				if isBusy(err) {
					return err
				}
				return backoff.Permanent(err)
			}

			committed := false
			defer func() {
				if !committed {
					if _, rerr := conn.ExecContext(context.Background(), "ROLLBACK"); rerr != nil {
						g.logger.Warn("sql gateway: rollback failed", "error", rerr)
					}
				}
			}()

			if err := fn(conn); err != nil {
				if isBusy(err) {
					return err
				}
				return backoff.Permanent(err)
			}

			if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
				if isBusy(err) {
					return err
				}
				return backoff.Permanent(err)
			}
			committed = true
			return nil
		}, bo)
	})
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}
