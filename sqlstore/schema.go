package sqlstore

// Schema is the DDL applied once to a freshly created database. Index
// entries, schema state, and heartbeats all live in shared tables keyed
// by collection rather than one physical table per collection/index --
// simpler to migrate and reason about than dynamic ALTER TABLE, at the
// cost of a collection/index_name column on every row.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         BLOB NOT NULL,
	doc        TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS index_entries (
	collection    TEXT NOT NULL,
	index_name    TEXT NOT NULL,
	encoded_value BLOB NOT NULL,
	record_id     BLOB NOT NULL,
	PRIMARY KEY (collection, index_name, encoded_value, record_id)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS index_entries_record
	ON index_entries (collection, record_id);

CREATE TABLE IF NOT EXISTS schema_state (
	collection     TEXT NOT NULL,
	name           TEXT NOT NULL,
	key_fn_blob    BLOB NOT NULL,
	value_type     TEXT NOT NULL,
	state          TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	last_seen_at   INTEGER NOT NULL,
	retiring_since INTEGER NOT NULL,
	PRIMARY KEY (collection, name)
);

CREATE TABLE IF NOT EXISTS heartbeats (
	collection TEXT NOT NULL,
	process    TEXT NOT NULL,
	declared   TEXT NOT NULL,
	at         INTEGER NOT NULL,
	PRIMARY KEY (collection, process)
);
`

const (
	insertRecordQuery = `INSERT INTO records (collection, id, doc) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET doc = excluded.doc`
	getRecordQuery    = `SELECT doc FROM records WHERE collection = ? AND id = ?`
	deleteRecordQuery = `DELETE FROM records WHERE collection = ? AND id = ?`
	scanRecordsQuery  = `SELECT id, doc FROM records WHERE collection = ? ORDER BY id`
	peekRecordQuery   = `SELECT doc FROM records WHERE collection = ? LIMIT 1`

	insertIndexEntryQuery = `INSERT OR REPLACE INTO index_entries (collection, index_name, encoded_value, record_id) VALUES (?, ?, ?, ?)`
	deleteIndexEntryQuery = `DELETE FROM index_entries WHERE collection = ? AND index_name = ? AND encoded_value = ? AND record_id = ?`
	deleteIndexAllQuery   = `DELETE FROM index_entries WHERE collection = ? AND index_name = ?`
	deleteForRecordQuery  = `DELETE FROM index_entries WHERE collection = ? AND record_id = ?`

	upsertSchemaQuery = `INSERT INTO schema_state
		(collection, name, key_fn_blob, value_type, state, created_at, last_seen_at, retiring_since)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, name) DO UPDATE SET
			key_fn_blob = excluded.key_fn_blob,
			value_type = excluded.value_type,
			state = excluded.state,
			created_at = excluded.created_at,
			last_seen_at = excluded.last_seen_at,
			retiring_since = excluded.retiring_since`
	readSchemaQuery = `SELECT name, key_fn_blob, value_type, state, created_at, last_seen_at, retiring_since
		FROM schema_state WHERE collection = ?`
	readSchemaEntryQuery = `SELECT name, key_fn_blob, value_type, state, created_at, last_seen_at, retiring_since
		FROM schema_state WHERE collection = ? AND name = ?`
	dropSchemaQuery = `DELETE FROM schema_state WHERE collection = ? AND name = ?`

	upsertHeartbeatQuery = `INSERT INTO heartbeats (collection, process, declared, at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, process) DO UPDATE SET declared = excluded.declared, at = excluded.at`
	pruneHeartbeatsQuery = `DELETE FROM heartbeats WHERE at < ?`
	liveDeclaredQuery    = `SELECT declared FROM heartbeats WHERE collection = ? AND at >= ?`
)
