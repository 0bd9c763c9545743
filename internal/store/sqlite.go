package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/jobintel/pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate applies any sqliteMigrations not yet recorded in _migrations, each
// inside its own transaction so a partial failure rolls back cleanly.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS _migrations (id TEXT PRIMARY KEY, applied_at DATETIME NOT NULL)`); err != nil {
		return eris.Wrap(err, "sqlite: create _migrations table")
	}

	for _, m := range sqliteMigrations {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM _migrations WHERE id = ?`, m.ID).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return eris.Wrapf(err, "sqlite: check migration %s", m.ID)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrapf(err, "sqlite: begin migration %s", m.ID)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "sqlite: apply migration %s", m.ID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO _migrations (id, applied_at) VALUES (?, ?)`, m.ID, time.Now().UTC()); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "sqlite: record migration %s", m.ID)
		}
		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "sqlite: commit migration %s", m.ID)
		}
	}
	return nil
}

// Run log

func (s *SQLiteStore) CreateRunLog(ctx context.Context, run model.RunLog) (*model.RunLog, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, type, dry_run, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Type), run.DryRun, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) FinishRunLog(ctx context.Context, run model.RunLog) error {
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run errors")
	}
	finishedAt := run.FinishedAt
	if finishedAt == nil {
		now := time.Now().UTC()
		finishedAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, jobs_found = ?, jobs_new = ?, jobs_duplicate = ?,
		 jobs_rejected = ?, alerts_sent = ?, parse_failures = ?, errors = ? WHERE id = ?`,
		string(run.Status), finishedAt, run.JobsFound, run.JobsNew, run.JobsDuplicate,
		run.JobsRejected, run.AlertsSent, run.ParseFailures, string(errorsJSON), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) GetRunLog(ctx context.Context, id string) (*model.RunLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, dry_run, status, started_at, finished_at, jobs_found, jobs_new, jobs_duplicate,
		 jobs_rejected, alerts_sent, parse_failures, errors FROM runs WHERE id = ?`, id)
	run, err := scanRunLog(row)
	if err != nil {
		if eris.Cause(err) == sql.ErrNoRows {
			return nil, eris.Wrapf(ErrNotFound, "run not found: %s", id)
		}
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) LastFinishedRunLog(ctx context.Context, runType model.RunType) (*model.RunLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, dry_run, status, started_at, finished_at, jobs_found, jobs_new, jobs_duplicate,
		 jobs_rejected, alerts_sent, parse_failures, errors FROM runs
		 WHERE type = ? AND finished_at IS NOT NULL ORDER BY finished_at DESC LIMIT 1`, string(runType))
	run, err := scanRunLog(row)
	if err != nil {
		if eris.Cause(err) == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

func scanRunLog(row scannable) (*model.RunLog, error) {
	var r model.RunLog
	var dryRun int
	var finishedAt sql.NullTime
	var errorsJSON sql.NullString

	err := row.Scan(&r.ID, &r.Type, &dryRun, &r.Status, &r.StartedAt, &finishedAt,
		&r.JobsFound, &r.JobsNew, &r.JobsDuplicate, &r.JobsRejected, &r.AlertsSent, &r.ParseFailures, &errorsJSON)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.DryRun = dryRun != 0
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &r.Errors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run errors")
		}
	}
	return &r, nil
}

// Raw jobs

func (s *SQLiteStore) InsertRawJob(ctx context.Context, job model.RawJob) (int64, error) {
	if job.FetchedAt.IsZero() {
		job.FetchedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_jobs (source, source_job_id, title, company, url, location_raw, content, posted_at, raw_payload, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Source, job.SourceJobID, job.Title, job.Company, job.URL, job.LocationRaw, job.Content,
		job.PostedAt, job.RawPayload, job.FetchedAt,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert raw job")
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) RawJobsByDateSource(ctx context.Context, date, source string) ([]model.RawJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, source_job_id, title, company, url, location_raw, content, posted_at, raw_payload, fetched_at
		 FROM raw_jobs WHERE source = ? AND substr(fetched_at, 1, 10) = ?`, source, date)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: raw jobs by date/source")
	}
	defer rows.Close()

	var jobs []model.RawJob
	for rows.Next() {
		var j model.RawJob
		var postedAt sql.NullTime
		if err := rows.Scan(&j.ID, &j.Source, &j.SourceJobID, &j.Title, &j.Company, &j.URL,
			&j.LocationRaw, &j.Content, &postedAt, &j.RawPayload, &j.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw job")
		}
		if postedAt.Valid {
			t := postedAt.Time
			j.PostedAt = &t
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: raw jobs iterate")
}

// Canonical jobs

func (s *SQLiteStore) InsertCanonicalJob(ctx context.Context, job model.CanonicalJob) (int64, error) {
	if job.FirstSeenAt.IsZero() {
		job.FirstSeenAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO canonical_jobs (raw_job_id, source, title, company, url, url_hash, content_fingerprint,
		 city, province, country, location_tier, work_mode, title_bucket, score, score_freshness, score_location,
		 score_mode, score_band, posted_at, posted_at_confidence, first_seen_at, status, is_backfill, is_reposted,
		 is_potential_duplicate, original_post_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.RawJobID, job.Source, job.Title, job.Company, job.URL, job.URLHash, job.ContentFingerprint,
		job.City, job.Province, job.Country, job.LocationTier, string(job.WorkMode), string(job.TitleBucket),
		job.Score, job.ScoreFreshness, job.ScoreLocation, job.ScoreMode, string(job.ScoreBand),
		job.PostedAt, string(job.PostedAtConfidence), job.FirstSeenAt, string(job.Status), job.IsBackfill,
		job.IsReposted, job.IsPotentialDuplicate, job.OriginalPostDate,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert canonical job")
	}
	return res.LastInsertId()
}

const canonicalJobColumns = `id, raw_job_id, source, title, company, url, url_hash, content_fingerprint,
	city, province, country, location_tier, work_mode, title_bucket, score, score_freshness, score_location,
	score_mode, score_band, posted_at, posted_at_confidence, first_seen_at, status, is_backfill, is_reposted,
	is_potential_duplicate, original_post_date`

func (s *SQLiteStore) GetCanonicalJobByURLHash(ctx context.Context, urlHash string) (*model.CanonicalJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE url_hash = ?`, urlHash)
	job, err := scanCanonicalJob(row)
	if err != nil {
		if eris.Cause(err) == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (s *SQLiteStore) GetCanonicalJob(ctx context.Context, id int64) (*model.CanonicalJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE id = ?`, id)
	job, err := scanCanonicalJob(row)
	if err != nil {
		if eris.Cause(err) == sql.ErrNoRows {
			return nil, eris.Wrapf(ErrNotFound, "canonical job not found: %d", id)
		}
		return nil, err
	}
	return job, nil
}

func (s *SQLiteStore) CanonicalJobsByContentFingerprint(ctx context.Context, fingerprint string) ([]model.CanonicalJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE content_fingerprint = ? AND status = 'active'
		 ORDER BY first_seen_at ASC`, fingerprint)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: canonical jobs by fingerprint")
	}
	defer rows.Close()
	return scanCanonicalJobRows(rows)
}

func (s *SQLiteStore) RecentCanonicalJobs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE status = 'active' AND first_seen_at >= ?`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent canonical jobs")
	}
	defer rows.Close()
	return scanCanonicalJobRows(rows)
}

func (s *SQLiteStore) ActiveJobURLs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+canonicalJobColumns+` FROM canonical_jobs WHERE status = 'active' AND first_seen_at >= ?`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: active job urls")
	}
	defer rows.Close()
	return scanCanonicalJobRows(rows)
}

func (s *SQLiteStore) ListCanonicalJobs(ctx context.Context, filter JobFilter) ([]model.CanonicalJob, error) {
	query := `SELECT ` + canonicalJobColumns + ` FROM canonical_jobs WHERE 1=1`
	var args []any

	if filter.Band != "" {
		query += ` AND score_band = ?`
		args = append(args, string(filter.Band))
	}
	if filter.Bucket != "" {
		query += ` AND title_bucket = ?`
		args = append(args, string(filter.Bucket))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		query += ` AND first_seen_at >= ?`
		args = append(args, *filter.Since)
	}
	if filter.MinScore > 0 {
		query += ` AND score >= ?`
		args = append(args, filter.MinScore)
	}
	if len(filter.Tiers) > 0 {
		query += ` AND location_tier IN (` + placeholders(len(filter.Tiers)) + `)`
		for _, t := range filter.Tiers {
			args = append(args, t)
		}
	}
	query += ` ORDER BY score DESC, first_seen_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list canonical jobs")
	}
	defer rows.Close()
	return scanCanonicalJobRows(rows)
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "?"
	}
	return out
}

func (s *SQLiteStore) UpdateCanonicalJobScore(ctx context.Context, id int64, score, freshness, location, mode float64, band model.ScoreBand) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE canonical_jobs SET score = ?, score_freshness = ?, score_location = ?, score_mode = ?, score_band = ? WHERE id = ?`,
		score, freshness, location, mode, string(band), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update score for job %d", id)
	}
	return checkRowsAffectedInt(res, "canonical job", id)
}

func (s *SQLiteStore) UpdateCanonicalJobStatus(ctx context.Context, id int64, status model.JobStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE canonical_jobs SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status for job %d", id)
	}
	return checkRowsAffectedInt(res, "canonical job", id)
}

func scanCanonicalJob(row scannable) (*model.CanonicalJob, error) {
	var j model.CanonicalJob
	var postedAt, originalPostDate sql.NullTime
	var city, province, country, locationTier sql.NullString

	err := row.Scan(&j.ID, &j.RawJobID, &j.Source, &j.Title, &j.Company, &j.URL, &j.URLHash, &j.ContentFingerprint,
		&city, &province, &country, &locationTier, &j.WorkMode, &j.TitleBucket, &j.Score, &j.ScoreFreshness,
		&j.ScoreLocation, &j.ScoreMode, &j.ScoreBand, &postedAt, &j.PostedAtConfidence, &j.FirstSeenAt, &j.Status,
		&j.IsBackfill, &j.IsReposted, &j.IsPotentialDuplicate, &originalPostDate,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan canonical job")
	}
	j.City, j.Province, j.Country, j.LocationTier = city.String, province.String, country.String, locationTier.String
	if postedAt.Valid {
		t := postedAt.Time
		j.PostedAt = &t
	}
	if originalPostDate.Valid {
		t := originalPostDate.Time
		j.OriginalPostDate = &t
	}
	return &j, nil
}

func scanCanonicalJobRows(rows *sql.Rows) ([]model.CanonicalJob, error) {
	var jobs []model.CanonicalJob
	for rows.Next() {
		j, err := scanCanonicalJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: canonical jobs iterate")
}

// Dedup

func (s *SQLiteStore) InsertJobDuplicate(ctx context.Context, dup model.JobDuplicate) error {
	if dup.CreatedAt.IsZero() {
		dup.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_duplicates (new_raw_job_id, existing_job_id, method, similarity, is_potential, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		dup.NewRawJobID, dup.ExistingJobID, string(dup.Method), dup.Similarity, dup.IsPotential, dup.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert job duplicate")
}

// Discovered boards

func (s *SQLiteStore) UpsertBoard(ctx context.Context, board model.DiscoveredBoard) error {
	if board.LastSeenAt.IsZero() {
		board.LastSeenAt = time.Now().UTC()
	}
	if board.CreatedAt.IsZero() {
		board.CreatedAt = board.LastSeenAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discovered_boards (platform, board_url, board_slug, confidence, status, last_seen_at, created_at)
		 VALUES (?, ?, ?, ?, 'active', ?, ?)
		 ON CONFLICT (board_url) DO UPDATE SET
		   confidence = MAX(confidence, excluded.confidence),
		   status = 'active',
		   last_seen_at = excluded.last_seen_at`,
		board.Platform, board.BoardURL, board.BoardSlug, board.Confidence, board.LastSeenAt, board.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: upsert board")
}

func (s *SQLiteStore) ActiveBoardsByPlatform(ctx context.Context, platform string) ([]model.DiscoveredBoard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, board_url, board_slug, confidence, status, last_seen_at, last_success_at,
		 consecutive_zero_yield_runs, created_at FROM discovered_boards WHERE platform = ? AND status = 'active'`,
		platform)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: active boards by platform")
	}
	defer rows.Close()

	var boards []model.DiscoveredBoard
	for rows.Next() {
		var b model.DiscoveredBoard
		var lastSuccessAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.Platform, &b.BoardURL, &b.BoardSlug, &b.Confidence, &b.Status,
			&b.LastSeenAt, &lastSuccessAt, &b.ConsecutiveZeroYieldRuns, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan board")
		}
		if lastSuccessAt.Valid {
			t := lastSuccessAt.Time
			b.LastSuccessAt = &t
		}
		boards = append(boards, b)
	}
	return boards, eris.Wrap(rows.Err(), "sqlite: boards iterate")
}

func (s *SQLiteStore) UpdateBoardPollState(ctx context.Context, boardID int64, success bool) error {
	now := time.Now().UTC()
	if success {
		_, err := s.db.ExecContext(ctx,
			`UPDATE discovered_boards SET last_seen_at = ?, last_success_at = ?, consecutive_zero_yield_runs = 0 WHERE id = ?`,
			now, now, boardID)
		return eris.Wrapf(err, "sqlite: update board poll state %d", boardID)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE discovered_boards SET last_seen_at = ?, consecutive_zero_yield_runs = consecutive_zero_yield_runs + 1 WHERE id = ?`,
		now, boardID)
	return eris.Wrapf(err, "sqlite: update board poll state %d", boardID)
}

// Source metrics

func (s *SQLiteStore) UpsertSourceMetric(ctx context.Context, metric model.SourceMetric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_metrics (source, date, jobs_found, jobs_new, jobs_duplicate, parse_failures,
		 rate_limit_hits, response_time_avg_ms, success_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, date) DO UPDATE SET
		   jobs_found = jobs_found + excluded.jobs_found,
		   jobs_new = jobs_new + excluded.jobs_new,
		   jobs_duplicate = jobs_duplicate + excluded.jobs_duplicate,
		   parse_failures = parse_failures + excluded.parse_failures,
		   rate_limit_hits = rate_limit_hits + excluded.rate_limit_hits,
		   response_time_avg_ms = excluded.response_time_avg_ms,
		   success_rate = excluded.success_rate`,
		metric.Source, metric.Date, metric.JobsFound, metric.JobsNew, metric.JobsDuplicate,
		metric.ParseFailures, metric.RateLimitHits, metric.ResponseTimeAvgMs, metric.SuccessRate,
	)
	return eris.Wrap(err, "sqlite: upsert source metric")
}

// Connector checkpoints

func (s *SQLiteStore) RecordConnectorCheckpoint(ctx context.Context, source, company string, success bool) error {
	now := time.Now().UTC()
	if success {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO connector_checkpoints (source, company, consecutive_failures, last_success_at)
			 VALUES (?, ?, 0, ?)
			 ON CONFLICT (source, company) DO UPDATE SET consecutive_failures = 0, last_success_at = excluded.last_success_at`,
			source, company, now,
		)
		return eris.Wrap(err, "sqlite: record checkpoint success")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connector_checkpoints (source, company, consecutive_failures, last_failure_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT (source, company) DO UPDATE SET
		   consecutive_failures = consecutive_failures + 1, last_failure_at = excluded.last_failure_at`,
		source, company, now,
	)
	return eris.Wrap(err, "sqlite: record checkpoint failure")
}

func (s *SQLiteStore) ConsecutiveFailures(ctx context.Context, source, company string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT consecutive_failures FROM connector_checkpoints WHERE source = ? AND company = ?`, source, company).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, eris.Wrap(err, "sqlite: consecutive failures")
}

// Fit analysis

func (s *SQLiteStore) UpsertFitAnalysis(ctx context.Context, a model.FitAnalysis) error {
	strengths, _ := json.Marshal(a.Strengths)
	gaps, _ := json.Marshal(a.Gaps)
	matched, _ := json.Marshal(a.MatchedSkills)
	missing, _ := json.Marshal(a.MissingSkills)
	bonus, _ := json.Marshal(a.BonusSkills)
	tips, _ := json.Marshal(a.TailoringTips)
	coverLetter, _ := json.Marshal(a.CoverLetterPoints)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fit_analyses (canonical_job_id, fit_score, verdict, summary, experience_level_match,
		 domain_relevance, recommendation, strengths, gaps, matched_skills, missing_skills, bonus_skills,
		 tailoring_tips, cover_letter_points, provider, model_used, prompt_tokens, completion_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		a.Recommendation, string(strengths), string(gaps), string(matched), string(missing), string(bonus),
		string(tips), string(coverLetter), a.Provider, a.ModelUsed, a.PromptTokens, a.CompletionTokens,
	)
	return eris.Wrap(err, "sqlite: upsert fit analysis")
}

func (s *SQLiteStore) GetFitAnalysis(ctx context.Context, canonicalJobID int64) (*model.FitAnalysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT canonical_job_id, fit_score, verdict, summary, experience_level_match, domain_relevance,
		 recommendation, strengths, gaps, matched_skills, missing_skills, bonus_skills, tailoring_tips,
		 cover_letter_points, provider, model_used, prompt_tokens, completion_tokens
		 FROM fit_analyses WHERE canonical_job_id = ?`, canonicalJobID)

	var a model.FitAnalysis
	var strengths, gaps, matched, missing, bonus, tips, coverLetter sql.NullString
	err := row.Scan(&a.CanonicalJobID, &a.FitScore, &a.Verdict, &a.Summary, &a.ExperienceLevelMatch,
		&a.DomainRelevance, &a.Recommendation, &strengths, &gaps, &matched, &missing, &bonus, &tips, &coverLetter,
		&a.Provider, &a.ModelUsed, &a.PromptTokens, &a.CompletionTokens)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan fit analysis")
	}
	for _, pair := range []struct {
		raw sql.NullString
		dst *[]string
	}{
		{strengths, &a.Strengths}, {gaps, &a.Gaps}, {matched, &a.MatchedSkills}, {missing, &a.MissingSkills},
		{bonus, &a.BonusSkills}, {tips, &a.TailoringTips}, {coverLetter, &a.CoverLetterPoints},
	} {
		if !pair.raw.Valid || pair.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(pair.raw.String), pair.dst); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fit analysis field")
		}
	}
	return &a, nil
}

// Alternate URLs

func (s *SQLiteStore) InsertAlternateURL(ctx context.Context, alt model.AlternateURL) error {
	if alt.CreatedAt.IsZero() {
		alt.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alternate_urls (canonical_job_id, source, url, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (canonical_job_id, source) DO NOTHING`,
		alt.CanonicalJobID, alt.Source, alt.URL, alt.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert alternate url")
}

func (s *SQLiteStore) ListAlternateURLs(ctx context.Context, canonicalJobID int64) ([]model.AlternateURL, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canonical_job_id, source, url, created_at FROM alternate_urls
		 WHERE canonical_job_id = ? ORDER BY created_at ASC LIMIT 5`, canonicalJobID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alternate urls")
	}
	defer rows.Close()

	var alts []model.AlternateURL
	for rows.Next() {
		var a model.AlternateURL
		if err := rows.Scan(&a.ID, &a.CanonicalJobID, &a.Source, &a.URL, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alternate url")
		}
		alts = append(alts, a)
	}
	return alts, eris.Wrap(rows.Err(), "sqlite: alternate urls iterate")
}

// Retry queue

func (s *SQLiteStore) EnqueueRetry(ctx context.Context, item model.RetryQueueItem) (int64, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO retry_queue (bot_type, message, retry_count, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		item.BotType, item.Message, item.RetryCount, item.NextRetryAt, item.CreatedAt,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: enqueue retry")
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) DueRetries(ctx context.Context, now time.Time) ([]model.RetryQueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot_type, message, retry_count, next_retry_at, created_at FROM retry_queue
		 WHERE next_retry_at <= ? ORDER BY next_retry_at ASC`, now)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due retries")
	}
	defer rows.Close()

	var items []model.RetryQueueItem
	for rows.Next() {
		var it model.RetryQueueItem
		if err := rows.Scan(&it.ID, &it.BotType, &it.Message, &it.RetryCount, &it.NextRetryAt, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan retry item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: retry items iterate")
}

func (s *SQLiteStore) IncrementRetry(ctx context.Context, id int64, nextRetryAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE retry_queue SET retry_count = retry_count + 1, next_retry_at = ? WHERE id = ?`, nextRetryAt, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment retry %d", id)
	}
	return checkRowsAffectedInt(res, "retry item", id)
}

func (s *SQLiteStore) RemoveRetry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM retry_queue WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: remove retry %d", id)
}

// Analytics

func (s *SQLiteStore) SourceAnalytics(ctx context.Context, days int) ([]SourceAnalytic, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, SUM(jobs_found), SUM(jobs_new), SUM(jobs_duplicate), AVG(success_rate)
		 FROM source_metrics WHERE date >= ? GROUP BY source ORDER BY source`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: source analytics")
	}
	defer rows.Close()

	var out []SourceAnalytic
	for rows.Next() {
		var a SourceAnalytic
		if err := rows.Scan(&a.Source, &a.JobsFound, &a.JobsNew, &a.JobsDuplicate, &a.SuccessRate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source analytic")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: source analytics iterate")
}

func (s *SQLiteStore) WeeklySummary(ctx context.Context, since time.Time) (WeeklySummary, error) {
	var w WeeklySummary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		 SUM(CASE WHEN score_band = 'topPriority' THEN 1 ELSE 0 END),
		 SUM(CASE WHEN score_band = 'goodMatch' THEN 1 ELSE 0 END),
		 SUM(CASE WHEN status = 'applied' THEN 1 ELSE 0 END)
		 FROM canonical_jobs WHERE first_seen_at >= ?`, since,
	).Scan(&w.TotalJobs, &w.TopPriority, &w.GoodMatch, &w.Applied)
	if err != nil {
		return w, eris.Wrap(err, "sqlite: weekly summary")
	}

	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(alerts_sent), 0) FROM runs WHERE started_at >= ?`, since).Scan(&w.AlertsSent)
	return w, eris.Wrap(err, "sqlite: weekly summary alerts")
}

// Maintenance

func (s *SQLiteStore) ArchiveOldJobs(ctx context.Context, archiveAfterDays, purgeAfterDays int) (ArchiveResult, error) {
	var result ArchiveResult
	archiveCutoff := time.Now().UTC().AddDate(0, 0, -archiveAfterDays)
	purgeCutoff := time.Now().UTC().AddDate(0, 0, -purgeAfterDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, eris.Wrap(err, "sqlite: begin archive tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE canonical_jobs SET status = 'archived' WHERE status IN ('active', 'applied', 'dismissed', 'expired') AND first_seen_at < ?`,
		archiveCutoff,
	)
	if err != nil {
		return result, eris.Wrap(err, "sqlite: archive old jobs")
	}
	archived, err := res.RowsAffected()
	if err != nil {
		return result, eris.Wrap(err, "sqlite: archive rows affected")
	}
	result.Archived = int(archived)

	res, err = tx.ExecContext(ctx, `DELETE FROM canonical_jobs WHERE status = 'archived' AND first_seen_at < ?`, purgeCutoff)
	if err != nil {
		return result, eris.Wrap(err, "sqlite: purge old jobs")
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return result, eris.Wrap(err, "sqlite: purge rows affected")
	}
	result.Purged = int(purged)

	return result, eris.Wrap(tx.Commit(), "sqlite: commit archive tx")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s not found: %s", entity, id)
	}
	return nil
}

func checkRowsAffectedInt(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s not found: %d", entity, id)
	}
	return nil
}
