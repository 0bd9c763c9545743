package store

// Migration is one ordered, idempotent schema change, tracked by ID in the
// _migrations table so re-running Migrate is a no-op once applied.
type Migration struct {
	ID  string
	SQL string
}

// sqliteMigrations is the ordered migration set for the SQLite backend.
var sqliteMigrations = []Migration{
	{ID: "0001_init", SQL: `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	dry_run        INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'running',
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME,
	jobs_found     INTEGER NOT NULL DEFAULT 0,
	jobs_new       INTEGER NOT NULL DEFAULT 0,
	jobs_duplicate INTEGER NOT NULL DEFAULT 0,
	jobs_rejected  INTEGER NOT NULL DEFAULT 0,
	alerts_sent    INTEGER NOT NULL DEFAULT 0,
	parse_failures INTEGER NOT NULL DEFAULT 0,
	errors         TEXT
);

CREATE TABLE IF NOT EXISTS raw_jobs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	source        TEXT NOT NULL,
	source_job_id TEXT NOT NULL,
	title         TEXT NOT NULL,
	company       TEXT NOT NULL,
	url           TEXT NOT NULL,
	location_raw  TEXT,
	content       TEXT,
	posted_at     DATETIME,
	raw_payload   TEXT,
	fetched_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS canonical_jobs (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	raw_job_id              INTEGER NOT NULL REFERENCES raw_jobs(id) ON DELETE CASCADE,
	source                  TEXT NOT NULL,
	title                   TEXT NOT NULL,
	company                 TEXT NOT NULL,
	url                     TEXT NOT NULL,
	url_hash                TEXT NOT NULL UNIQUE,
	content_fingerprint     TEXT NOT NULL,
	city                    TEXT,
	province                TEXT,
	country                 TEXT,
	location_tier           TEXT,
	work_mode               TEXT NOT NULL DEFAULT 'unknown',
	title_bucket            TEXT NOT NULL,
	score                   REAL NOT NULL DEFAULT 0,
	score_freshness         REAL NOT NULL DEFAULT 0,
	score_location          REAL NOT NULL DEFAULT 0,
	score_mode              REAL NOT NULL DEFAULT 0,
	score_band              TEXT NOT NULL DEFAULT 'worthALook',
	posted_at               DATETIME,
	posted_at_confidence    TEXT NOT NULL DEFAULT 'low',
	first_seen_at           DATETIME NOT NULL,
	status                  TEXT NOT NULL DEFAULT 'active',
	is_backfill             INTEGER NOT NULL DEFAULT 0,
	is_reposted             INTEGER NOT NULL DEFAULT 0,
	is_potential_duplicate  INTEGER NOT NULL DEFAULT 0,
	original_post_date      DATETIME
);

CREATE TABLE IF NOT EXISTS job_duplicates (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	new_raw_job_id  INTEGER NOT NULL,
	existing_job_id INTEGER NOT NULL REFERENCES canonical_jobs(id) ON DELETE CASCADE,
	method          TEXT NOT NULL,
	similarity      REAL NOT NULL DEFAULT 0,
	is_potential    INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS discovered_boards (
	id                          INTEGER PRIMARY KEY AUTOINCREMENT,
	platform                    TEXT NOT NULL,
	board_url                   TEXT NOT NULL UNIQUE,
	board_slug                  TEXT NOT NULL,
	confidence                  REAL NOT NULL DEFAULT 0,
	status                      TEXT NOT NULL DEFAULT 'active',
	last_seen_at                DATETIME NOT NULL,
	last_success_at             DATETIME,
	consecutive_zero_yield_runs INTEGER NOT NULL DEFAULT 0,
	created_at                  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS source_metrics (
	source               TEXT NOT NULL,
	date                 TEXT NOT NULL,
	jobs_found           INTEGER NOT NULL DEFAULT 0,
	jobs_new             INTEGER NOT NULL DEFAULT 0,
	jobs_duplicate       INTEGER NOT NULL DEFAULT 0,
	parse_failures       INTEGER NOT NULL DEFAULT 0,
	rate_limit_hits      INTEGER NOT NULL DEFAULT 0,
	response_time_avg_ms REAL NOT NULL DEFAULT 0,
	success_rate         REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (source, date)
);

CREATE TABLE IF NOT EXISTS connector_checkpoints (
	source               TEXT NOT NULL,
	company              TEXT NOT NULL,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_success_at      DATETIME,
	last_failure_at      DATETIME,
	PRIMARY KEY (source, company)
);

CREATE TABLE IF NOT EXISTS fit_analyses (
	canonical_job_id       INTEGER PRIMARY KEY REFERENCES canonical_jobs(id) ON DELETE CASCADE,
	fit_score              INTEGER NOT NULL,
	verdict                TEXT NOT NULL,
	summary                TEXT NOT NULL,
	experience_level_match TEXT NOT NULL DEFAULT 'unknown',
	domain_relevance       TEXT,
	recommendation         TEXT,
	strengths              TEXT,
	gaps                   TEXT,
	matched_skills         TEXT,
	missing_skills         TEXT,
	bonus_skills           TEXT,
	tailoring_tips         TEXT,
	cover_letter_points    TEXT,
	provider               TEXT,
	model_used             TEXT,
	prompt_tokens          INTEGER NOT NULL DEFAULT 0,
	completion_tokens      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS alternate_urls (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_job_id INTEGER NOT NULL REFERENCES canonical_jobs(id) ON DELETE CASCADE,
	source           TEXT NOT NULL,
	url              TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	UNIQUE (canonical_job_id, source)
);

CREATE TABLE IF NOT EXISTS retry_queue (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	bot_type      TEXT NOT NULL,
	message       TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	next_retry_at DATETIME NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_canonical_jobs_status ON canonical_jobs(status);
CREATE INDEX IF NOT EXISTS idx_canonical_jobs_content_fp ON canonical_jobs(content_fingerprint);
CREATE INDEX IF NOT EXISTS idx_canonical_jobs_first_seen ON canonical_jobs(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_canonical_jobs_score ON canonical_jobs(score DESC);
CREATE INDEX IF NOT EXISTS idx_discovered_boards_platform ON discovered_boards(platform, status);
CREATE INDEX IF NOT EXISTS idx_retry_queue_next_retry ON retry_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_runs_type_status ON runs(type, status);
`},
}

// postgresMigrations mirrors sqliteMigrations with Postgres-native types.
var postgresMigrations = []Migration{
	{ID: "0001_init", SQL: `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	dry_run        BOOLEAN NOT NULL DEFAULT false,
	status         TEXT NOT NULL DEFAULT 'running',
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ,
	jobs_found     INTEGER NOT NULL DEFAULT 0,
	jobs_new       INTEGER NOT NULL DEFAULT 0,
	jobs_duplicate INTEGER NOT NULL DEFAULT 0,
	jobs_rejected  INTEGER NOT NULL DEFAULT 0,
	alerts_sent    INTEGER NOT NULL DEFAULT 0,
	parse_failures INTEGER NOT NULL DEFAULT 0,
	errors         JSONB
);

CREATE TABLE IF NOT EXISTS raw_jobs (
	id            BIGSERIAL PRIMARY KEY,
	source        TEXT NOT NULL,
	source_job_id TEXT NOT NULL,
	title         TEXT NOT NULL,
	company       TEXT NOT NULL,
	url           TEXT NOT NULL,
	location_raw  TEXT,
	content       TEXT,
	posted_at     TIMESTAMPTZ,
	raw_payload   TEXT,
	fetched_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS canonical_jobs (
	id                      BIGSERIAL PRIMARY KEY,
	raw_job_id              BIGINT NOT NULL REFERENCES raw_jobs(id) ON DELETE CASCADE,
	source                  TEXT NOT NULL,
	title                   TEXT NOT NULL,
	company                 TEXT NOT NULL,
	url                     TEXT NOT NULL,
	url_hash                TEXT NOT NULL UNIQUE,
	content_fingerprint     TEXT NOT NULL,
	city                    TEXT,
	province                TEXT,
	country                 TEXT,
	location_tier           TEXT,
	work_mode               TEXT NOT NULL DEFAULT 'unknown',
	title_bucket            TEXT NOT NULL,
	score                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_freshness         DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_location          DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_mode              DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_band              TEXT NOT NULL DEFAULT 'worthALook',
	posted_at               TIMESTAMPTZ,
	posted_at_confidence    TEXT NOT NULL DEFAULT 'low',
	first_seen_at           TIMESTAMPTZ NOT NULL,
	status                  TEXT NOT NULL DEFAULT 'active',
	is_backfill             BOOLEAN NOT NULL DEFAULT false,
	is_reposted             BOOLEAN NOT NULL DEFAULT false,
	is_potential_duplicate  BOOLEAN NOT NULL DEFAULT false,
	original_post_date      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS job_duplicates (
	id              BIGSERIAL PRIMARY KEY,
	new_raw_job_id  BIGINT NOT NULL,
	existing_job_id BIGINT NOT NULL REFERENCES canonical_jobs(id) ON DELETE CASCADE,
	method          TEXT NOT NULL,
	similarity      DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_potential    BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS discovered_boards (
	id                          BIGSERIAL PRIMARY KEY,
	platform                    TEXT NOT NULL,
	board_url                   TEXT NOT NULL UNIQUE,
	board_slug                  TEXT NOT NULL,
	confidence                  DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                      TEXT NOT NULL DEFAULT 'active',
	last_seen_at                TIMESTAMPTZ NOT NULL,
	last_success_at             TIMESTAMPTZ,
	consecutive_zero_yield_runs INTEGER NOT NULL DEFAULT 0,
	created_at                  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS source_metrics (
	source               TEXT NOT NULL,
	date                 TEXT NOT NULL,
	jobs_found           INTEGER NOT NULL DEFAULT 0,
	jobs_new             INTEGER NOT NULL DEFAULT 0,
	jobs_duplicate       INTEGER NOT NULL DEFAULT 0,
	parse_failures       INTEGER NOT NULL DEFAULT 0,
	rate_limit_hits      INTEGER NOT NULL DEFAULT 0,
	response_time_avg_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	success_rate         DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (source, date)
);

CREATE TABLE IF NOT EXISTS connector_checkpoints (
	source               TEXT NOT NULL,
	company              TEXT NOT NULL,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_success_at      TIMESTAMPTZ,
	last_failure_at      TIMESTAMPTZ,
	PRIMARY KEY (source, company)
);

CREATE TABLE IF NOT EXISTS fit_analyses (
	canonical_job_id       BIGINT PRIMARY KEY REFERENCES canonical_jobs(id) ON DELETE CASCADE,
	fit_score              INTEGER NOT NULL,
	verdict                TEXT NOT NULL,
	summary                TEXT NOT NULL,
	experience_level_match TEXT NOT NULL DEFAULT 'unknown',
	domain_relevance       TEXT,
	recommendation         TEXT,
	strengths              JSONB,
	gaps                   JSONB,
	matched_skills         JSONB,
	missing_skills         JSONB,
	bonus_skills           JSONB,
	tailoring_tips         JSONB,
	cover_letter_points    JSONB,
	provider               TEXT,
	model_used             TEXT,
	prompt_tokens          BIGINT NOT NULL DEFAULT 0,
	completion_tokens      BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS alternate_urls (
	id               BIGSERIAL PRIMARY KEY,
	canonical_job_id BIGINT NOT NULL REFERENCES canonical_jobs(id) ON DELETE CASCADE,
	source           TEXT NOT NULL,
	url              TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (canonical_job_id, source)
);

CREATE TABLE IF NOT EXISTS retry_queue (
	id            BIGSERIAL PRIMARY KEY,
	bot_type      TEXT NOT NULL,
	message       TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	next_retry_at TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_canonical_jobs_status ON canonical_jobs(status);
CREATE INDEX IF NOT EXISTS idx_canonical_jobs_content_fp ON canonical_jobs(content_fingerprint);
CREATE INDEX IF NOT EXISTS idx_canonical_jobs_first_seen ON canonical_jobs(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_canonical_jobs_score ON canonical_jobs(score DESC);
CREATE INDEX IF NOT EXISTS idx_discovered_boards_platform ON discovered_boards(platform, status);
CREATE INDEX IF NOT EXISTS idx_retry_queue_next_retry ON retry_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_runs_type_status ON runs(type, status);
`},
}
