package postgres

const schema = `
-- Bugs table
-- seq preserves insertion order for duplicate scans
CREATE TABLE IF NOT EXISTS bugs (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL NOT NULL,
    title TEXT NOT NULL CHECK(LENGTH(title) <= 500),
    description TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    tags TEXT[] NOT NULL DEFAULT '{}',
    severity TEXT NOT NULL DEFAULT 'Medium',
    status TEXT NOT NULL DEFAULT 'Open',
    reports INTEGER NOT NULL DEFAULT 1 CHECK(reports >= 1),
    reporters TEXT[] NOT NULL DEFAULT '{}',
    test_url TEXT NOT NULL DEFAULT '',
    screenshot TEXT NOT NULL DEFAULT '',
    embedding REAL[],
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    closed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_bugs_test_url ON bugs(test_url);
CREATE INDEX IF NOT EXISTS idx_bugs_status ON bugs(status);
CREATE INDEX IF NOT EXISTS idx_bugs_category ON bugs(test_url, category);
CREATE INDEX IF NOT EXISTS idx_bugs_seq ON bugs(seq);

-- Developers table
CREATE TABLE IF NOT EXISTS developers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL UNIQUE,
    assigned_urls TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Bug events table (audit trail)
CREATE TABLE IF NOT EXISTS bug_events (
    id BIGSERIAL PRIMARY KEY,
    bug_id TEXT NOT NULL REFERENCES bugs(id) ON DELETE CASCADE,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    comment TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bug_events_bug ON bug_events(bug_id);
`
