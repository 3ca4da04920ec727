package db

// SchemaVersion is the current database schema version
const SchemaVersion = 2

const schema = `
-- Visit status transitions
CREATE TABLE IF NOT EXISTS visit_journal (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    visit_id INTEGER DEFAULT 0,
    customer_name TEXT DEFAULT '',
    from_status TEXT NOT NULL,
    to_status TEXT NOT NULL,
    cause TEXT NOT NULL,
    detail TEXT DEFAULT '',
    timestamp TEXT NOT NULL
);

-- Backend calls made by the sync client
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    op TEXT NOT NULL,
    status_code INTEGER DEFAULT 0,
    error TEXT DEFAULT '',
    timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_visit_journal_visit ON visit_journal(visit_id);
CREATE INDEX IF NOT EXISTS idx_sync_history_op ON sync_history(op);
`
