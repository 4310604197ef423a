package archive

// Schema is applied on every open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS timeline_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	incident_id TEXT NOT NULL,
	db_id INTEGER NOT NULL,
	business_id TEXT,
	origin TEXT,
	kind TEXT NOT NULL,
	round_id INTEGER NOT NULL DEFAULT 0,
	content TEXT,
	created_at DATETIME,
	archived_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(incident_id, db_id)
);
CREATE INDEX IF NOT EXISTS idx_entries_incident ON timeline_entries(incident_id);
CREATE INDEX IF NOT EXISTS idx_entries_kind ON timeline_entries(incident_id, kind);

CREATE TABLE IF NOT EXISTS execution_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	incident_id TEXT NOT NULL,
	task_key TEXT NOT NULL,
	result TEXT,
	status TEXT NOT NULL,
	submitted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_incident ON execution_results(incident_id);

CREATE TABLE IF NOT EXISTS connection_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	incident_id TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conn_incident ON connection_events(incident_id);
`
