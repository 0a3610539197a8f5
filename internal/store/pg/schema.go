package pg

import "context"

// Schema is applied idempotently at startup when migrations are enabled.
const schema = `
CREATE TABLE IF NOT EXISTS siwe_user (
    id            UUID PRIMARY KEY,
    login         TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'subscriber',
    registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS siwe_user_meta (
    user_id    UUID NOT NULL REFERENCES siwe_user(id) ON DELETE CASCADE,
    meta_key   TEXT NOT NULL,
    meta_value TEXT NOT NULL,
    PRIMARY KEY (user_id, meta_key)
);

CREATE INDEX IF NOT EXISTS siwe_user_meta_kv ON siwe_user_meta (meta_key, meta_value);

CREATE TABLE IF NOT EXISTS siwe_session (
    token      UUID PRIMARY KEY,
    user_id    UUID NOT NULL REFERENCES siwe_user(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS siwe_session_user ON siwe_session (user_id);
`

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}
