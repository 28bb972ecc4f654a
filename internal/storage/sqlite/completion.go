package sqlite

import (
	"context"
	"database/sql"

	"github.com/quartzdb/jobstore/internal/types"
)

// TriggeredJobComplete removes the fired-trigger entry and, for stateful
// jobs, cascades BLOCKED -> WAITING and PAUSED_BLOCKED -> PAUSED for every
// other trigger of the same job; it then applies instruction and persists
// the job-data map if the job marked it dirty (spec §4.5).
func (s *Store) TriggeredJobComplete(ctx context.Context, fireInstanceID string, job *types.Job, instruction types.CompletionInstruction) error {
	const op = "TriggeredJobComplete"
	err := s.gw.withTx(ctx, func(conn *sql.Conn) error {
		entry, err := loadFiredTrigger(ctx, conn, s.gw, fireInstanceID)
		if err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, s.gw.sql(sqlDeleteFiredTrigger), fireInstanceID); err != nil {
			return err
		}

		if job.Stateful {
			if _, err := conn.ExecContext(ctx, s.gw.sql(sqlStateUpdateByJob),
				string(types.StateWaiting), job.Key.Name, job.Key.Group, string(types.StateBlocked)); err != nil {
				return err
			}
			if _, err := conn.ExecContext(ctx, s.gw.sql(sqlStateUpdateByJob),
				string(types.StatePaused), job.Key.Name, job.Key.Group, string(types.StatePausedBlocked)); err != nil {
				return err
			}
		}

		if err := applyCompletionInstruction(ctx, conn, s.gw, entry.TriggerKey, job.Key, instruction); err != nil {
			return err
		}

		if job.JobDataMap != nil && job.JobDataMap.Dirty() {
			data, err := s.codec.Encode(job.JobDataMap)
			if err != nil {
				return err
			}
			if _, err := conn.ExecContext(ctx, s.gw.sql(sqlUpdateJobDataOnly), data, job.Key.Name, job.Key.Group); err != nil {
				return err
			}
			job.JobDataMap.MarkClean()
		}
		return nil
	})
	return types.WrapPersistence(op, err)
}

func applyCompletionInstruction(ctx context.Context, conn *sql.Conn, gw *gateway, triggerKey types.TriggerKey, jobKey types.JobKey, instruction types.CompletionInstruction) error {
	switch instruction {
	case types.InstructionSetTriggerComplete:
		_, err := conn.ExecContext(ctx, gw.sql(sqlSetTriggerState), string(types.StateComplete), triggerKey.Name, triggerKey.Group)
		return err
	case types.InstructionSetAllJobTriggersComplete:
		_, err := conn.ExecContext(ctx, gw.sql(sqlSetTriggerStateByJob), string(types.StateComplete), jobKey.Name, jobKey.Group)
		return err
	case types.InstructionSetTriggerError:
		_, err := conn.ExecContext(ctx, gw.sql(sqlSetTriggerState), string(types.StateError), triggerKey.Name, triggerKey.Group)
		return err
	case types.InstructionSetAllJobTriggersError:
		_, err := conn.ExecContext(ctx, gw.sql(sqlSetTriggerStateByJob), string(types.StateError), jobKey.Name, jobKey.Group)
		return err
	default:
		return nil
	}
}
