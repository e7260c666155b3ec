package store

// Amounts are stored as decimal TEXT: u64 values do not fit sqlite's signed INTEGER.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
    uri                  TEXT PRIMARY KEY,
    approved_amount      TEXT NOT NULL,
    fetched_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id               TEXT NOT NULL,
    budget               TEXT NOT NULL,
    collection           TEXT NOT NULL,
    taken_at             TEXT NOT NULL,
    expense_count        INTEGER NOT NULL,
    total_approved       TEXT NOT NULL,
    total_spent          TEXT NOT NULL,
    total_remaining      TEXT NOT NULL,
    total_overage        TEXT NOT NULL,
    reconciled           INTEGER NOT NULL,
    warnings             INTEGER NOT NULL,
    over_budget          INTEGER NOT NULL,
    suspicious           INTEGER NOT NULL,
    stale                INTEGER NOT NULL,
    skipped              INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_budget ON snapshots(budget, taken_at);
`
