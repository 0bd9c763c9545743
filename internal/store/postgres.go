package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/db"
	"github.com/jobintel/pipeline/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_canonical_job_by_hash": `SELECT ` + canonicalJobColumns + ` FROM canonical_jobs WHERE url_hash = $1`,
	"update_job_status":         `UPDATE canonical_jobs SET status = $1 WHERE id = $2`,
	"insert_raw_job":            `INSERT INTO raw_jobs (source, source_job_id, title, company, url, location_raw, content, posted_at, raw_payload, fetched_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that need
// direct query access (e.g., internal/db bulk helpers).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies any postgresMigrations not yet recorded in _migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS _migrations (id TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`); err != nil {
		return eris.Wrap(err, "postgres: create _migrations table")
	}

	for _, m := range postgresMigrations {
		var exists int
		err := s.pool.QueryRow(ctx, `SELECT 1 FROM _migrations WHERE id = $1`, m.ID).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(err, "postgres: check migration %s", m.ID)
		}
		if _, err := s.pool.Exec(ctx, m.SQL); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", m.ID)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO _migrations (id, applied_at) VALUES ($1, $2)`, m.ID, time.Now().UTC()); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", m.ID)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Run log

func (s *PostgresStore) CreateRunLog(ctx context.Context, run model.RunLog) (*model.RunLog, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, type, dry_run, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Type), run.DryRun, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) FinishRunLog(ctx context.Context, run model.RunLog) error {
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run errors")
	}
	finishedAt := run.FinishedAt
	if finishedAt == nil {
		now := time.Now().UTC()
		finishedAt = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, finished_at = $2, jobs_found = $3, jobs_new = $4, jobs_duplicate = $5,
		 jobs_rejected = $6, alerts_sent = $7, parse_failures = $8, errors = $9 WHERE id = $10`,
		string(run.Status), finishedAt, run.JobsFound, run.JobsNew, run.JobsDuplicate,
		run.JobsRejected, run.AlertsSent, run.ParseFailures, errorsJSON, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRunLog(ctx context.Context, id string) (*model.RunLog, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, type, dry_run, status, started_at, finished_at, jobs_found, jobs_new, jobs_duplicate,
		 jobs_rejected, alerts_sent, parse_failures, errors FROM runs WHERE id = $1`, id)
	run, err := scanRunLogPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "run not found: %s", id)
		}
		return nil, err
	}
	return run, nil
}

func (s *PostgresStore) LastFinishedRunLog(ctx context.Context, runType model.RunType) (*model.RunLog, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, type, dry_run, status, started_at, finished_at, jobs_found, jobs_new, jobs_duplicate,
		 jobs_rejected, alerts_sent, parse_failures, errors FROM runs
		 WHERE type = $1 AND finished_at IS NOT NULL ORDER BY finished_at DESC LIMIT 1`, string(runType))
	run, err := scanRunLogPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

func scanRunLogPG(row pgx.Row) (*model.RunLog, error) {
	var r model.RunLog
	var finishedAt *time.Time
	var errorsJSON []byte

	err := row.Scan(&r.ID, &r.Type, &r.DryRun, &r.Status, &r.StartedAt, &finishedAt,
		&r.JobsFound, &r.JobsNew, &r.JobsDuplicate, &r.JobsRejected, &r.AlertsSent, &r.ParseFailures, &errorsJSON)
	if err != nil {
		return nil, err
	}
	r.FinishedAt = finishedAt
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &r.Errors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run errors")
		}
	}
	return &r, nil
}

// Raw jobs

func (s *PostgresStore) InsertRawJob(ctx context.Context, job model.RawJob) (int64, error) {
	if job.FetchedAt.IsZero() {
		job.FetchedAt = time.Now().UTC()
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO raw_jobs (source, source_job_id, title, company, url, location_raw, content, posted_at, raw_payload, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		job.Source, job.SourceJobID, job.Title, job.Company, job.URL, job.LocationRaw, job.Content,
		job.PostedAt, job.RawPayload, job.FetchedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert raw job")
	}
	return id, nil
}

func (s *PostgresStore) RawJobsByDateSource(ctx context.Context, date, source string) ([]model.RawJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, source_job_id, title, company, url, location_raw, content, posted_at, raw_payload, fetched_at
		 FROM raw_jobs WHERE source = $1 AND fetched_at::date = $2::date`, source, date)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: raw jobs by date/source")
	}
	defer rows.Close()

	var jobs []model.RawJob
	for rows.Next() {
		var j model.RawJob
		var postedAt *time.Time
		if err := rows.Scan(&j.ID, &j.Source, &j.SourceJobID, &j.Title, &j.Company, &j.URL,
			&j.LocationRaw, &j.Content, &postedAt, &j.RawPayload, &j.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw job")
		}
		j.PostedAt = postedAt
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: raw jobs iterate")
}

// Canonical jobs

func (s *PostgresStore) InsertCanonicalJob(ctx context.Context, job model.CanonicalJob) (int64, error) {
	if job.FirstSeenAt.IsZero() {
		job.FirstSeenAt = time.Now().UTC()
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO canonical_jobs (raw_job_id, source, title, company, url, url_hash, content_fingerprint,
		 city, province, country, location_tier, work_mode, title_bucket, score, score_freshness, score_location,
		 score_mode, score_band, posted_at, posted_at_confidence, first_seen_at, status, is_backfill, is_reposted,
		 is_potential_duplicate, original_post_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		 RETURNING id`,
		job.RawJobID, job.Source, job.Title, job.Company, job.URL, job.URLHash, job.ContentFingerprint,
		job.City, job.Province, job.Country, job.LocationTier, string(job.WorkMode), string(job.TitleBucket),
		job.Score, job.ScoreFreshness, job.ScoreLocation, job.ScoreMode, string(job.ScoreBand),
		job.PostedAt, string(job.PostedAtConfidence), job.FirstSeenAt, string(job.Status), job.IsBackfill,
		job.IsReposted, job.IsPotentialDuplicate, job.OriginalPostDate,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert canonical job")
	}
	return id, nil
}

func (s *PostgresStore) GetCanonicalJobByURLHash(ctx context.Context, urlHash string) (*model.CanonicalJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE url_hash = $1`, urlHash)
	job, err := scanCanonicalJobPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) GetCanonicalJob(ctx context.Context, id int64) (*model.CanonicalJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE id = $1`, id)
	job, err := scanCanonicalJobPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "canonical job not found: %d", id)
		}
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) CanonicalJobsByContentFingerprint(ctx context.Context, fingerprint string) ([]model.CanonicalJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE content_fingerprint = $1 AND status = 'active'
		 ORDER BY first_seen_at ASC`, fingerprint)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: canonical jobs by fingerprint")
	}
	defer rows.Close()
	return scanCanonicalJobRowsPG(rows)
}

func (s *PostgresStore) RecentCanonicalJobs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	rows, err := s.pool.Query(ctx,
		`SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE status = 'active' AND first_seen_at >= $1`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent canonical jobs")
	}
	defer rows.Close()
	return scanCanonicalJobRowsPG(rows)
}

func (s *PostgresStore) ActiveJobURLs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	rows, err := s.pool.Query(ctx,
		`SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE status = 'active' AND first_seen_at >= $1`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active job urls")
	}
	defer rows.Close()
	return scanCanonicalJobRowsPG(rows)
}

func (s *PostgresStore) ListCanonicalJobs(ctx context.Context, filter JobFilter) ([]model.CanonicalJob, error) {
	query := `SELECT ` + canonicalJobColumns + ` FROM canonical_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Band != "" {
		query += fmt.Sprintf(` AND score_band = $%d`, argIdx)
		args = append(args, string(filter.Band))
		argIdx++
	}
	if filter.Bucket != "" {
		query += fmt.Sprintf(` AND title_bucket = $%d`, argIdx)
		args = append(args, string(filter.Bucket))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND first_seen_at >= $%d`, argIdx)
		args = append(args, *filter.Since)
		argIdx++
	}
	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	if len(filter.Tiers) > 0 {
		query += fmt.Sprintf(` AND location_tier = ANY($%d)`, argIdx)
		args = append(args, filter.Tiers)
		argIdx++
	}
	query += ` ORDER BY score DESC, first_seen_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list canonical jobs")
	}
	defer rows.Close()
	return scanCanonicalJobRowsPG(rows)
}

func (s *PostgresStore) UpdateCanonicalJobScore(ctx context.Context, id int64, score, freshness, location, mode float64, band model.ScoreBand) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE canonical_jobs SET score = $1, score_freshness = $2, score_location = $3, score_mode = $4, score_band = $5 WHERE id = $6`,
		score, freshness, location, mode, string(band), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update score for job %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "canonical job not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) UpdateCanonicalJobStatus(ctx context.Context, id int64, status model.JobStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE canonical_jobs SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status for job %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "canonical job not found: %d", id)
	}
	return nil
}

func scanCanonicalJobPG(row pgx.Row) (*model.CanonicalJob, error) {
	var j model.CanonicalJob
	var postedAt, originalPostDate *time.Time
	var city, province, country, locationTier *string

	err := row.Scan(&j.ID, &j.RawJobID, &j.Source, &j.Title, &j.Company, &j.URL, &j.URLHash, &j.ContentFingerprint,
		&city, &province, &country, &locationTier, &j.WorkMode, &j.TitleBucket, &j.Score, &j.ScoreFreshness,
		&j.ScoreLocation, &j.ScoreMode, &j.ScoreBand, &postedAt, &j.PostedAtConfidence, &j.FirstSeenAt, &j.Status,
		&j.IsBackfill, &j.IsReposted, &j.IsPotentialDuplicate, &originalPostDate,
	)
	if err != nil {
		return nil, err
	}
	if city != nil {
		j.City = *city
	}
	if province != nil {
		j.Province = *province
	}
	if country != nil {
		j.Country = *country
	}
	if locationTier != nil {
		j.LocationTier = *locationTier
	}
	j.PostedAt = postedAt
	j.OriginalPostDate = originalPostDate
	return &j, nil
}

func scanCanonicalJobRowsPG(rows pgx.Rows) ([]model.CanonicalJob, error) {
	var jobs []model.CanonicalJob
	for rows.Next() {
		j, err := scanCanonicalJobPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan canonical job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: canonical jobs iterate")
}

// Dedup

func (s *PostgresStore) InsertJobDuplicate(ctx context.Context, dup model.JobDuplicate) error {
	if dup.CreatedAt.IsZero() {
		dup.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_duplicates (new_raw_job_id, existing_job_id, method, similarity, is_potential, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		dup.NewRawJobID, dup.ExistingJobID, string(dup.Method), dup.Similarity, dup.IsPotential, dup.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert job duplicate")
}

// Discovered boards

func (s *PostgresStore) UpsertBoard(ctx context.Context, board model.DiscoveredBoard) error {
	if board.LastSeenAt.IsZero() {
		board.LastSeenAt = time.Now().UTC()
	}
	if board.CreatedAt.IsZero() {
		board.CreatedAt = board.LastSeenAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO discovered_boards (platform, board_url, board_slug, confidence, status, last_seen_at, created_at)
		 VALUES ($1, $2, $3, $4, 'active', $5, $6)
		 ON CONFLICT (board_url) DO UPDATE SET
		   confidence = GREATEST(discovered_boards.confidence, excluded.confidence),
		   status = 'active',
		   last_seen_at = excluded.last_seen_at`,
		board.Platform, board.BoardURL, board.BoardSlug, board.Confidence, board.LastSeenAt, board.CreatedAt,
	)
	return eris.Wrap(err, "postgres: upsert board")
}

func (s *PostgresStore) ActiveBoardsByPlatform(ctx context.Context, platform string) ([]model.DiscoveredBoard, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, platform, board_url, board_slug, confidence, status, last_seen_at, last_success_at,
		 consecutive_zero_yield_runs, created_at FROM discovered_boards WHERE platform = $1 AND status = 'active'`,
		platform)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active boards by platform")
	}
	defer rows.Close()

	var boards []model.DiscoveredBoard
	for rows.Next() {
		var b model.DiscoveredBoard
		var lastSuccessAt *time.Time
		if err := rows.Scan(&b.ID, &b.Platform, &b.BoardURL, &b.BoardSlug, &b.Confidence, &b.Status,
			&b.LastSeenAt, &lastSuccessAt, &b.ConsecutiveZeroYieldRuns, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan board")
		}
		b.LastSuccessAt = lastSuccessAt
		boards = append(boards, b)
	}
	return boards, eris.Wrap(rows.Err(), "postgres: boards iterate")
}

func (s *PostgresStore) UpdateBoardPollState(ctx context.Context, boardID int64, success bool) error {
	now := time.Now().UTC()
	if success {
		_, err := s.pool.Exec(ctx,
			`UPDATE discovered_boards SET last_seen_at = $1, last_success_at = $2, consecutive_zero_yield_runs = 0 WHERE id = $3`,
			now, now, boardID)
		return eris.Wrapf(err, "postgres: update board poll state %d", boardID)
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE discovered_boards SET last_seen_at = $1, consecutive_zero_yield_runs = consecutive_zero_yield_runs + 1 WHERE id = $2`,
		now, boardID)
	return eris.Wrapf(err, "postgres: update board poll state %d", boardID)
}

// Source metrics

func (s *PostgresStore) UpsertSourceMetric(ctx context.Context, metric model.SourceMetric) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_metrics (source, date, jobs_found, jobs_new, jobs_duplicate, parse_failures,
		 rate_limit_hits, response_time_avg_ms, success_rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (source, date) DO UPDATE SET
		   jobs_found = source_metrics.jobs_found + excluded.jobs_found,
		   jobs_new = source_metrics.jobs_new + excluded.jobs_new,
		   jobs_duplicate = source_metrics.jobs_duplicate + excluded.jobs_duplicate,
		   parse_failures = source_metrics.parse_failures + excluded.parse_failures,
		   rate_limit_hits = source_metrics.rate_limit_hits + excluded.rate_limit_hits,
		   response_time_avg_ms = excluded.response_time_avg_ms,
		   success_rate = excluded.success_rate`,
		metric.Source, metric.Date, metric.JobsFound, metric.JobsNew, metric.JobsDuplicate,
		metric.ParseFailures, metric.RateLimitHits, metric.ResponseTimeAvgMs, metric.SuccessRate,
	)
	return eris.Wrap(err, "postgres: upsert source metric")
}

// Connector checkpoints

func (s *PostgresStore) RecordConnectorCheckpoint(ctx context.Context, source, company string, success bool) error {
	now := time.Now().UTC()
	if success {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO connector_checkpoints (source, company, consecutive_failures, last_success_at)
			 VALUES ($1, $2, 0, $3)
			 ON CONFLICT (source, company) DO UPDATE SET consecutive_failures = 0, last_success_at = excluded.last_success_at`,
			source, company, now,
		)
		return eris.Wrap(err, "postgres: record checkpoint success")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO connector_checkpoints (source, company, consecutive_failures, last_failure_at)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (source, company) DO UPDATE SET
		   consecutive_failures = connector_checkpoints.consecutive_failures + 1, last_failure_at = excluded.last_failure_at`,
		source, company, now,
	)
	return eris.Wrap(err, "postgres: record checkpoint failure")
}

func (s *PostgresStore) ConsecutiveFailures(ctx context.Context, source, company string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT consecutive_failures FROM connector_checkpoints WHERE source = $1 AND company = $2`, source, company).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, eris.Wrap(err, "postgres: consecutive failures")
}

// Fit analysis

func (s *PostgresStore) UpsertFitAnalysis(ctx context.Context, a model.FitAnalysis) error {
	strengths, _ := json.Marshal(a.Strengths)
	gaps, _ := json.Marshal(a.Gaps)
	matched, _ := json.Marshal(a.MatchedSkills)
	missing, _ := json.Marshal(a.MissingSkills)
	bonus, _ := json.Marshal(a.BonusSkills)
	tips, _ := json.Marshal(a.TailoringTips)
	coverLetter, _ := json.Marshal(a.CoverLetterPoints)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO fit_analyses (canonical_job_id, fit_score, verdict, summary, experience_level_match,
		 domain_relevance, recommendation, strengths, gaps, matched_skills, missing_skills, bonus_skills,
		 tailoring_tips, cover_letter_points, provider, model_used, prompt_tokens, completion_tokens)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (canonical_job_id) DO UPDATE SET
		   fit_score = excluded.fit_score, verdict = excluded.verdict, summary = excluded.summary,
		   experience_level_match = excluded.experience_level_match, domain_relevance = excluded.domain_relevance,
		   recommendation = excluded.recommendation, strengths = excluded.strengths, gaps = excluded.gaps,
		   matched_skills = excluded.matched_skills, missing_skills = excluded.missing_skills,
		   bonus_skills = excluded.bonus_skills, tailoring_tips = excluded.tailoring_tips,
		   cover_letter_points = excluded.cover_letter_points, provider = excluded.provider,
		   model_used = excluded.model_used, prompt_tokens = excluded.prompt_tokens,
		   completion_tokens = excluded.completion_tokens`,
		a.CanonicalJobID, a.FitScore, string(a.Verdict), a.Summary, a.ExperienceLevelMatch, a.DomainRelevance,
		a.Recommendation, strengths, gaps, matched, missing, bonus, tips, coverLetter,
		a.Provider, a.ModelUsed, a.PromptTokens, a.CompletionTokens,
	)
	return eris.Wrap(err, "postgres: upsert fit analysis")
}

func (s *PostgresStore) GetFitAnalysis(ctx context.Context, canonicalJobID int64) (*model.FitAnalysis, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT canonical_job_id, fit_score, verdict, summary, experience_level_match, domain_relevance,
		 recommendation, strengths, gaps, matched_skills, missing_skills, bonus_skills, tailoring_tips,
		 cover_letter_points, provider, model_used, prompt_tokens, completion_tokens
		 FROM fit_analyses WHERE canonical_job_id = $1`, canonicalJobID)

	var a model.FitAnalysis
	var strengths, gaps, matched, missing, bonus, tips, coverLetter []byte
	err := row.Scan(&a.CanonicalJobID, &a.FitScore, &a.Verdict, &a.Summary, &a.ExperienceLevelMatch,
		&a.DomainRelevance, &a.Recommendation, &strengths, &gaps, &matched, &missing, &bonus, &tips, &coverLetter,
		&a.Provider, &a.ModelUsed, &a.PromptTokens, &a.CompletionTokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan fit analysis")
	}
	for _, pair := range []struct {
		raw []byte
		dst *[]string
	}{
		{strengths, &a.Strengths}, {gaps, &a.Gaps}, {matched, &a.MatchedSkills}, {missing, &a.MissingSkills},
		{bonus, &a.BonusSkills}, {tips, &a.TailoringTips}, {coverLetter, &a.CoverLetterPoints},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fit analysis field")
		}
	}
	return &a, nil
}

// Alternate URLs

func (s *PostgresStore) InsertAlternateURL(ctx context.Context, alt model.AlternateURL) error {
	if alt.CreatedAt.IsZero() {
		alt.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alternate_urls (canonical_job_id, source, url, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (canonical_job_id, source) DO NOTHING`,
		alt.CanonicalJobID, alt.Source, alt.URL, alt.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert alternate url")
}

func (s *PostgresStore) ListAlternateURLs(ctx context.Context, canonicalJobID int64) ([]model.AlternateURL, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, canonical_job_id, source, url, created_at FROM alternate_urls
		 WHERE canonical_job_id = $1 ORDER BY created_at ASC LIMIT 5`, canonicalJobID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alternate urls")
	}
	defer rows.Close()

	var alts []model.AlternateURL
	for rows.Next() {
		var a model.AlternateURL
		if err := rows.Scan(&a.ID, &a.CanonicalJobID, &a.Source, &a.URL, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alternate url")
		}
		alts = append(alts, a)
	}
	return alts, eris.Wrap(rows.Err(), "postgres: alternate urls iterate")
}

// Retry queue

func (s *PostgresStore) EnqueueRetry(ctx context.Context, item model.RetryQueueItem) (int64, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO retry_queue (bot_type, message, retry_count, next_retry_at, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.BotType, item.Message, item.RetryCount, item.NextRetryAt, item.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: enqueue retry")
	}
	return id, nil
}

func (s *PostgresStore) DueRetries(ctx context.Context, now time.Time) ([]model.RetryQueueItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, bot_type, message, retry_count, next_retry_at, created_at FROM retry_queue
		 WHERE next_retry_at <= $1 ORDER BY next_retry_at ASC`, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due retries")
	}
	defer rows.Close()

	var items []model.RetryQueueItem
	for rows.Next() {
		var it model.RetryQueueItem
		if err := rows.Scan(&it.ID, &it.BotType, &it.Message, &it.RetryCount, &it.NextRetryAt, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan retry item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: retry items iterate")
}

func (s *PostgresStore) IncrementRetry(ctx context.Context, id int64, nextRetryAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE retry_queue SET retry_count = retry_count + 1, next_retry_at = $1 WHERE id = $2`, nextRetryAt, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment retry %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "retry item not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) RemoveRetry(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM retry_queue WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: remove retry %d", id)
}

// Analytics

func (s *PostgresStore) SourceAnalytics(ctx context.Context, days int) ([]SourceAnalytic, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.pool.Query(ctx,
		`SELECT source, SUM(jobs_found), SUM(jobs_new), SUM(jobs_duplicate), AVG(success_rate)
		 FROM source_metrics WHERE date >= $1 GROUP BY source ORDER BY source`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: source analytics")
	}
	defer rows.Close()

	var out []SourceAnalytic
	for rows.Next() {
		var a SourceAnalytic
		if err := rows.Scan(&a.Source, &a.JobsFound, &a.JobsNew, &a.JobsDuplicate, &a.SuccessRate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source analytic")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: source analytics iterate")
}

func (s *PostgresStore) WeeklySummary(ctx context.Context, since time.Time) (WeeklySummary, error) {
	var w WeeklySummary
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		 SUM(CASE WHEN score_band = 'topPriority' THEN 1 ELSE 0 END),
		 SUM(CASE WHEN score_band = 'goodMatch' THEN 1 ELSE 0 END),
		 SUM(CASE WHEN status = 'applied' THEN 1 ELSE 0 END)
		 FROM canonical_jobs WHERE first_seen_at >= $1`, since,
	).Scan(&w.TotalJobs, &w.TopPriority, &w.GoodMatch, &w.Applied)
	if err != nil {
		return w, eris.Wrap(err, "postgres: weekly summary")
	}

	err = s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(alerts_sent), 0) FROM runs WHERE started_at >= $1`, since).Scan(&w.AlertsSent)
	return w, eris.Wrap(err, "postgres: weekly summary alerts")
}

// Maintenance

func (s *PostgresStore) ArchiveOldJobs(ctx context.Context, archiveAfterDays, purgeAfterDays int) (ArchiveResult, error) {
	var result ArchiveResult
	archiveCutoff := time.Now().UTC().AddDate(0, 0, -archiveAfterDays)
	purgeCutoff := time.Now().UTC().AddDate(0, 0, -purgeAfterDays)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, eris.Wrap(err, "postgres: begin archive tx")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE canonical_jobs SET status = 'archived' WHERE status IN ('active', 'applied', 'dismissed', 'expired') AND first_seen_at < $1`,
		archiveCutoff,
	)
	if err != nil {
		return result, eris.Wrap(err, "postgres: archive old jobs")
	}
	result.Archived = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `DELETE FROM canonical_jobs WHERE status = 'archived' AND first_seen_at < $1`, purgeCutoff)
	if err != nil {
		return result, eris.Wrap(err, "postgres: purge old jobs")
	}
	result.Purged = int(tag.RowsAffected())

	return result, eris.Wrap(tx.Commit(ctx), "postgres: commit archive tx")
}
