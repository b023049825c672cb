package database

// applied in order by Migrate; each statement must stay idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS visitors (
		id               TEXT PRIMARY KEY,
		fingerprint_hash TEXT,
		first_seen_at    TIMESTAMPTZ NOT NULL,
		last_seen_at     TIMESTAMPTZ NOT NULL,
		visit_count      INTEGER NOT NULL DEFAULT 1,
		first_touch      JSONB NOT NULL DEFAULT '{}'::jsonb,
		device           JSONB NOT NULL DEFAULT '{}'::jsonb,
		email_hash       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visitors_email_hash ON visitors (email_hash) WHERE email_hash IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_visitors_fingerprint ON visitors (fingerprint_hash) WHERE fingerprint_hash IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS touches (
		id              TEXT PRIMARY KEY,
		visitor_id      TEXT NOT NULL,
		context_id      TEXT,
		type            TEXT NOT NULL,
		utm_source      TEXT NOT NULL DEFAULT '',
		utm_medium      TEXT NOT NULL DEFAULT '',
		utm_campaign    TEXT NOT NULL DEFAULT '',
		utm_term        TEXT NOT NULL DEFAULT '',
		utm_content     TEXT NOT NULL DEFAULT '',
		gclid           TEXT NOT NULL DEFAULT '',
		fbclid          TEXT NOT NULL DEFAULT '',
		msclkid         TEXT NOT NULL DEFAULT '',
		dclid           TEXT NOT NULL DEFAULT '',
		promo_code      TEXT NOT NULL DEFAULT '',
		referrer        TEXT,
		referrer_domain TEXT,
		landing_page    TEXT,
		page_url        TEXT NOT NULL DEFAULT '',
		touch_data      JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_touches_visitor_created ON touches (visitor_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_touches_context_type_created ON touches (context_id, type, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_touches_created ON touches (created_at)`,

	`CREATE TABLE IF NOT EXISTS handoffs (
		id                   UUID PRIMARY KEY,
		token                TEXT NOT NULL UNIQUE,
		visitor_id           TEXT NOT NULL REFERENCES visitors (id) ON DELETE CASCADE,
		context_id           TEXT,
		destination_url      TEXT NOT NULL,
		redirect_url         TEXT NOT NULL,
		account_number       TEXT,
		attribution_snapshot JSONB NOT NULL DEFAULT '{}'::jsonb,
		status               TEXT NOT NULL DEFAULT 'redirected'
		                     CHECK (status IN ('redirected', 'completed', 'expired')),
		completion_data      JSONB,
		created_at           TIMESTAMPTZ NOT NULL,
		completed_at         TIMESTAMPTZ,
		expired_at           TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_handoffs_status_created ON handoffs (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_handoffs_visitor ON handoffs (visitor_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_handoffs_account ON handoffs (context_id, account_number, created_at DESC)
		WHERE account_number IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS completions (
		id             UUID PRIMARY KEY,
		context_id     TEXT,
		account_number TEXT,
		email_hash     TEXT,
		handoff_token  TEXT,
		external_id    TEXT,
		source         TEXT,
		handoff_id     UUID REFERENCES handoffs (id) ON DELETE SET NULL,
		match_strategy TEXT,
		received_at    TIMESTAMPTZ NOT NULL,
		matched_at     TIMESTAMPTZ,
		attempts       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_completions_unmatched ON completions (received_at) WHERE handoff_id IS NULL`,
}
