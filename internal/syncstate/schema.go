package syncstate

// schemaVersion is stored in sync_meta; bump it together with migrations.
const schemaVersion = "1"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_cursors (
	task_id            TEXT PRIMARY KEY,
	remote_path        TEXT NOT NULL,
	local_updated_at   INTEGER NOT NULL,
	remote_modified_at INTEGER NOT NULL,
	remote_etag        TEXT NOT NULL DEFAULT '',
	synced_at          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_ops (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	list_id     TEXT NOT NULL,
	task_id     TEXT NOT NULL,
	kind        TEXT NOT NULL CHECK (kind IN ('create', 'update', 'delete', 'move')),
	path        TEXT NOT NULL DEFAULT '',
	old_path    TEXT NOT NULL DEFAULT '',
	enqueued_at INTEGER NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dead_letters (
	seq         INTEGER PRIMARY KEY,
	list_id     TEXT NOT NULL,
	task_id     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	path        TEXT NOT NULL DEFAULT '',
	old_path    TEXT NOT NULL DEFAULT '',
	enqueued_at INTEGER NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL,
	failed_at   INTEGER NOT NULL,
	reported    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
