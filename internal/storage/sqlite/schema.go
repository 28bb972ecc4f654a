package sqlite

import "strings"

// schemaDDL is the persisted schema (spec §6), written with a {PREFIX}
// placeholder that applySchema substitutes for the configured table prefix,
// matching the SQL Gateway's table-prefix substitution contract (spec §4.1).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS {PREFIX}JOB_DETAILS (
	JOB_NAME TEXT NOT NULL,
	JOB_GROUP TEXT NOT NULL,
	DESCRIPTION TEXT,
	JOB_CLASS TEXT NOT NULL,
	IS_DURABLE INTEGER NOT NULL DEFAULT 0,
	IS_VOLATILE INTEGER NOT NULL DEFAULT 0,
	IS_STATEFUL INTEGER NOT NULL DEFAULT 0,
	REQUESTS_RECOVERY INTEGER NOT NULL DEFAULT 0,
	JOB_DATA BLOB,
	PRIMARY KEY (JOB_NAME, JOB_GROUP)
);

CREATE TABLE IF NOT EXISTS {PREFIX}JOB_LISTENERS (
	JOB_NAME TEXT NOT NULL,
	JOB_GROUP TEXT NOT NULL,
	LISTENER_NAME TEXT NOT NULL,
	SEQ INTEGER NOT NULL,
	PRIMARY KEY (JOB_NAME, JOB_GROUP, LISTENER_NAME),
	FOREIGN KEY (JOB_NAME, JOB_GROUP) REFERENCES {PREFIX}JOB_DETAILS(JOB_NAME, JOB_GROUP) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS {PREFIX}TRIGGERS (
	TRIGGER_NAME TEXT NOT NULL,
	TRIGGER_GROUP TEXT NOT NULL,
	JOB_NAME TEXT NOT NULL,
	JOB_GROUP TEXT NOT NULL,
	DESCRIPTION TEXT,
	NEXT_FIRE_TIME INTEGER NOT NULL,
	PREV_FIRE_TIME INTEGER NOT NULL DEFAULT -1,
	TRIGGER_STATE TEXT NOT NULL,
	TRIGGER_TYPE TEXT NOT NULL,
	START_TIME INTEGER NOT NULL,
	END_TIME INTEGER NOT NULL DEFAULT -1,
	CALENDAR_NAME TEXT,
	MISFIRE_INSTR INTEGER NOT NULL DEFAULT 0,
	IS_VOLATILE INTEGER NOT NULL DEFAULT 0,
	JOB_DATA BLOB,
	PRIMARY KEY (TRIGGER_NAME, TRIGGER_GROUP),
	FOREIGN KEY (JOB_NAME, JOB_GROUP) REFERENCES {PREFIX}JOB_DETAILS(JOB_NAME, JOB_GROUP) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS {PREFIX}IDX_T_NFT ON {PREFIX}TRIGGERS(TRIGGER_STATE, NEXT_FIRE_TIME);
CREATE INDEX IF NOT EXISTS {PREFIX}IDX_T_JOB ON {PREFIX}TRIGGERS(JOB_NAME, JOB_GROUP);

CREATE TABLE IF NOT EXISTS {PREFIX}SIMPLE_TRIGGERS (
	TRIGGER_NAME TEXT NOT NULL,
	TRIGGER_GROUP TEXT NOT NULL,
	REPEAT_COUNT INTEGER NOT NULL,
	REPEAT_INTERVAL INTEGER NOT NULL,
	TIMES_TRIGGERED INTEGER NOT NULL,
	PRIMARY KEY (TRIGGER_NAME, TRIGGER_GROUP),
	FOREIGN KEY (TRIGGER_NAME, TRIGGER_GROUP) REFERENCES {PREFIX}TRIGGERS(TRIGGER_NAME, TRIGGER_GROUP) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS {PREFIX}CRON_TRIGGERS (
	TRIGGER_NAME TEXT NOT NULL,
	TRIGGER_GROUP TEXT NOT NULL,
	CRON_EXPRESSION TEXT NOT NULL,
	TIME_ZONE_ID TEXT,
	PRIMARY KEY (TRIGGER_NAME, TRIGGER_GROUP),
	FOREIGN KEY (TRIGGER_NAME, TRIGGER_GROUP) REFERENCES {PREFIX}TRIGGERS(TRIGGER_NAME, TRIGGER_GROUP) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS {PREFIX}BLOB_TRIGGERS (
	TRIGGER_NAME TEXT NOT NULL,
	TRIGGER_GROUP TEXT NOT NULL,
	BLOB_DATA BLOB,
	PRIMARY KEY (TRIGGER_NAME, TRIGGER_GROUP),
	FOREIGN KEY (TRIGGER_NAME, TRIGGER_GROUP) REFERENCES {PREFIX}TRIGGERS(TRIGGER_NAME, TRIGGER_GROUP) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS {PREFIX}TRIGGER_LISTENERS (
	TRIGGER_NAME TEXT NOT NULL,
	TRIGGER_GROUP TEXT NOT NULL,
	LISTENER_NAME TEXT NOT NULL,
	SEQ INTEGER NOT NULL,
	PRIMARY KEY (TRIGGER_NAME, TRIGGER_GROUP, LISTENER_NAME),
	FOREIGN KEY (TRIGGER_NAME, TRIGGER_GROUP) REFERENCES {PREFIX}TRIGGERS(TRIGGER_NAME, TRIGGER_GROUP) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS {PREFIX}CALENDARS (
	CALENDAR_NAME TEXT NOT NULL PRIMARY KEY,
	CALENDAR BLOB
);

CREATE TABLE IF NOT EXISTS {PREFIX}PAUSED_TRIGGER_GRPS (
	TRIGGER_GROUP TEXT NOT NULL PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS {PREFIX}FIRED_TRIGGERS (
	ENTRY_ID TEXT NOT NULL PRIMARY KEY,
	TRIGGER_NAME TEXT NOT NULL,
	TRIGGER_GROUP TEXT NOT NULL,
	IS_VOLATILE INTEGER NOT NULL DEFAULT 0,
	INSTANCE_NAME TEXT NOT NULL,
	FIRED_TIME INTEGER NOT NULL,
	ENTRY_STATE TEXT NOT NULL,
	JOB_NAME TEXT,
	JOB_GROUP TEXT,
	IS_STATEFUL INTEGER NOT NULL DEFAULT 0,
	REQUESTS_RECOVERY INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS {PREFIX}IDX_FT_INST ON {PREFIX}FIRED_TRIGGERS(INSTANCE_NAME);
CREATE INDEX IF NOT EXISTS {PREFIX}IDX_FT_TRIG ON {PREFIX}FIRED_TRIGGERS(TRIGGER_NAME, TRIGGER_GROUP);

CREATE TABLE IF NOT EXISTS {PREFIX}SCHEDULER_STATE (
	INSTANCE_NAME TEXT NOT NULL PRIMARY KEY,
	LAST_CHECKIN_TIME INTEGER NOT NULL,
	CHECKIN_INTERVAL INTEGER NOT NULL,
	RECOVERER TEXT
);

CREATE TABLE IF NOT EXISTS {PREFIX}LOCKS (
	LOCK_NAME TEXT NOT NULL PRIMARY KEY,
	HOLDER TEXT
);
`

// lockNames are the well-known advisory lock rows seeded at schema creation
// (spec §5: "a row-level advisory lock on a well-known lock row").
var lockNames = []string{"TRIGGER_ACCESS", "STATE_ACCESS"}

func substitutePrefix(tmpl, prefix string) string {
	return strings.ReplaceAll(tmpl, "{PREFIX}", prefix)
}
