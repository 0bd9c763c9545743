package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobintel/pipeline/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedRawJob(t *testing.T, st *SQLiteStore) int64 {
	t.Helper()
	id, err := st.InsertRawJob(context.Background(), model.RawJob{
		Source:      "greenhouse",
		SourceJobID: "abc123",
		Title:       "Backend Engineer",
		Company:     "Acme",
		URL:         "https://boards.greenhouse.io/acme/jobs/1",
	})
	require.NoError(t, err)
	return id
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_RunLog_CreateGetFinish(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRunLog(ctx, model.RunLog{Type: model.RunTypeIngest})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRunLog(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunTypeIngest, got.Type)

	run.Status = model.RunStatusCompleted
	run.JobsFound = 10
	run.Errors = []string{"parse failed for source x"}
	require.NoError(t, st.FinishRunLog(ctx, *run))

	got, err = st.GetRunLog(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, 10, got.JobsFound)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, []string{"parse failed for source x"}, got.Errors)
}

func TestSQLite_RunLog_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetRunLog(context.Background(), "missing-id")
	assert.Error(t, err)
}

func TestSQLite_LastFinishedRunLog(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	none, err := st.LastFinishedRunLog(ctx, model.RunTypeIngest)
	require.NoError(t, err)
	assert.Nil(t, none)

	run, err := st.CreateRunLog(ctx, model.RunLog{Type: model.RunTypeIngest})
	require.NoError(t, err)
	run.Status = model.RunStatusCompleted
	require.NoError(t, st.FinishRunLog(ctx, *run))

	last, err := st.LastFinishedRunLog(ctx, model.RunTypeIngest)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, run.ID, last.ID)
}

func TestSQLite_RawJob_InsertAndQuery(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := st.InsertRawJob(ctx, model.RawJob{
		Source: "lever", SourceJobID: "x1", Title: "SRE", Company: "Acme",
		URL: "https://jobs.lever.co/acme/x1", FetchedAt: now,
	})
	require.NoError(t, err)

	jobs, err := st.RawJobsByDateSource(ctx, now.Format("2006-01-02"), "lever")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "SRE", jobs[0].Title)
}

func canonicalJobFixture(rawJobID int64) model.CanonicalJob {
	return model.CanonicalJob{
		RawJobID:           rawJobID,
		Source:             "greenhouse",
		Title:              "Backend Engineer",
		Company:            "Acme",
		URL:                "https://boards.greenhouse.io/acme/jobs/1",
		URLHash:            "hash-1",
		ContentFingerprint: "fp-1",
		WorkMode:           model.WorkModeRemote,
		TitleBucket:        model.TitleBucketInclude,
		Score:              72.5,
		ScoreBand:          model.ScoreBandGoodMatch,
		PostedAtConfidence: model.ConfidenceHigh,
		Status:             model.StatusActive,
	}
}

func TestSQLite_CanonicalJob_InsertAndGetByURLHash(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)

	id, err := st.InsertCanonicalJob(ctx, canonicalJobFixture(rawID))
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := st.GetCanonicalJobByURLHash(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Backend Engineer", got.Title)
	assert.Equal(t, model.ScoreBandGoodMatch, got.ScoreBand)

	missing, err := st.GetCanonicalJobByURLHash(ctx, "no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_CanonicalJob_GetByID_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetCanonicalJob(context.Background(), 9999)
	assert.Error(t, err)
}

func TestSQLite_CanonicalJob_ByContentFingerprint(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)

	job := canonicalJobFixture(rawID)
	_, err := st.InsertCanonicalJob(ctx, job)
	require.NoError(t, err)

	matches, err := st.CanonicalJobsByContentFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestSQLite_CanonicalJob_UpdateScoreAndStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)

	id, err := st.InsertCanonicalJob(ctx, canonicalJobFixture(rawID))
	require.NoError(t, err)

	require.NoError(t, st.UpdateCanonicalJobScore(ctx, id, 90, 1, 1, 1, model.ScoreBandTopPriority))
	got, err := st.GetCanonicalJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 90.0, got.Score)
	assert.Equal(t, model.ScoreBandTopPriority, got.ScoreBand)

	require.NoError(t, st.UpdateCanonicalJobStatus(ctx, id, model.StatusApplied))
	got, err = st.GetCanonicalJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, got.Status)
}

func TestSQLite_CanonicalJob_UpdateStatus_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.UpdateCanonicalJobStatus(context.Background(), 12345, model.StatusApplied)
	assert.Error(t, err)
}

func TestSQLite_ListCanonicalJobs_FiltersByBandAndMinScore(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)

	top := canonicalJobFixture(rawID)
	top.URLHash, top.ContentFingerprint, top.Score, top.ScoreBand = "hash-top", "fp-top", 95, model.ScoreBandTopPriority
	_, err := st.InsertCanonicalJob(ctx, top)
	require.NoError(t, err)

	good := canonicalJobFixture(rawID)
	good.URLHash, good.ContentFingerprint, good.Score, good.ScoreBand = "hash-good", "fp-good", 60, model.ScoreBandGoodMatch
	_, err = st.InsertCanonicalJob(ctx, good)
	require.NoError(t, err)

	jobs, err := st.ListCanonicalJobs(ctx, JobFilter{Band: model.ScoreBandTopPriority})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "hash-top", jobs[0].URLHash)

	jobs, err = st.ListCanonicalJobs(ctx, JobFilter{MinScore: 50})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestSQLite_RecentAndActiveCanonicalJobs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)

	_, err := st.InsertCanonicalJob(ctx, canonicalJobFixture(rawID))
	require.NoError(t, err)

	recent, err := st.RecentCanonicalJobs(ctx, 30)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	active, err := st.ActiveJobURLs(ctx, 30)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSQLite_InsertJobDuplicate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)

	id, err := st.InsertCanonicalJob(ctx, canonicalJobFixture(rawID))
	require.NoError(t, err)

	err = st.InsertJobDuplicate(ctx, model.JobDuplicate{
		NewRawJobID: rawID, ExistingJobID: id, Method: model.DedupMethodURLHash, Similarity: 1.0,
	})
	require.NoError(t, err)
}

func TestSQLite_UpsertBoard_InsertThenUpdateConfidence(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	board := model.DiscoveredBoard{
		Platform: "greenhouse", BoardURL: "https://boards.greenhouse.io/acme", BoardSlug: "acme", Confidence: 0.7,
	}
	require.NoError(t, st.UpsertBoard(ctx, board))

	board.Confidence = 0.9
	require.NoError(t, st.UpsertBoard(ctx, board))

	boards, err := st.ActiveBoardsByPlatform(ctx, "greenhouse")
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, 0.9, boards[0].Confidence)
}

func TestSQLite_UpdateBoardPollState(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertBoard(ctx, model.DiscoveredBoard{
		Platform: "lever", BoardURL: "https://jobs.lever.co/acme", BoardSlug: "acme",
	}))
	boards, err := st.ActiveBoardsByPlatform(ctx, "lever")
	require.NoError(t, err)
	require.Len(t, boards, 1)
	boardID := boards[0].ID

	require.NoError(t, st.UpdateBoardPollState(ctx, boardID, false))
	boards, err = st.ActiveBoardsByPlatform(ctx, "lever")
	require.NoError(t, err)
	assert.Equal(t, 1, boards[0].ConsecutiveZeroYieldRuns)

	require.NoError(t, st.UpdateBoardPollState(ctx, boardID, true))
	boards, err = st.ActiveBoardsByPlatform(ctx, "lever")
	require.NoError(t, err)
	assert.Equal(t, 0, boards[0].ConsecutiveZeroYieldRuns)
	assert.NotNil(t, boards[0].LastSuccessAt)
}

func TestSQLite_UpsertSourceMetric_Additive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	metric := model.SourceMetric{Source: "indeed", Date: time.Now().UTC().Format("2006-01-02"), JobsFound: 5, JobsNew: 3}
	require.NoError(t, st.UpsertSourceMetric(ctx, metric))
	require.NoError(t, st.UpsertSourceMetric(ctx, metric))

	rows, err := st.SourceAnalytics(ctx, 30)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10, rows[0].JobsFound)
	assert.Equal(t, 6, rows[0].JobsNew)
}

func TestSQLite_ConnectorCheckpoint_FailuresResetOnSuccess(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordConnectorCheckpoint(ctx, "icims", "acme", false))
	require.NoError(t, st.RecordConnectorCheckpoint(ctx, "icims", "acme", false))
	n, err := st.ConsecutiveFailures(ctx, "icims", "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, st.RecordConnectorCheckpoint(ctx, "icims", "acme", true))
	n, err = st.ConsecutiveFailures(ctx, "icims", "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_FitAnalysis_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)
	jobID, err := st.InsertCanonicalJob(ctx, canonicalJobFixture(rawID))
	require.NoError(t, err)

	analysis := model.FitAnalysis{
		CanonicalJobID: jobID, FitScore: 80, Verdict: model.VerdictStrong, Summary: "Great fit.",
		Strengths: []string{"Go", "distributed systems"}, MissingSkills: []string{"Kubernetes"},
		Provider: "openai_compatible", ModelUsed: "model-a", PromptTokens: 500, CompletionTokens: 120,
	}
	require.NoError(t, st.UpsertFitAnalysis(ctx, analysis))

	got, err := st.GetFitAnalysis(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 80, got.FitScore)
	assert.Equal(t, []string{"Go", "distributed systems"}, got.Strengths)
	assert.Equal(t, []string{"Kubernetes"}, got.MissingSkills)

	analysis.FitScore = 85
	require.NoError(t, st.UpsertFitAnalysis(ctx, analysis))
	got, err = st.GetFitAnalysis(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 85, got.FitScore)
}

func TestSQLite_FitAnalysis_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)
	got, err := st.GetFitAnalysis(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_AlternateURL_InsertIgnoreDuplicateAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)
	jobID, err := st.InsertCanonicalJob(ctx, canonicalJobFixture(rawID))
	require.NoError(t, err)

	alt := model.AlternateURL{CanonicalJobID: jobID, Source: "linkedin", URL: "https://linkedin.com/jobs/1"}
	require.NoError(t, st.InsertAlternateURL(ctx, alt))
	require.NoError(t, st.InsertAlternateURL(ctx, alt)) // duplicate (canonical_job_id, source) is a no-op

	alts, err := st.ListAlternateURLs(ctx, jobID)
	require.NoError(t, err)
	assert.Len(t, alts, 1)
}

func TestSQLite_RetryQueue_EnqueueDueIncrementRemove(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.EnqueueRetry(ctx, model.RetryQueueItem{
		BotType: "telegram", Message: "alert body", NextRetryAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	due, err := st.DueRetries(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)

	require.NoError(t, st.IncrementRetry(ctx, id, time.Now().Add(time.Hour)))
	due, err = st.DueRetries(ctx, time.Now())
	require.NoError(t, err)
	assert.Len(t, due, 0)

	require.NoError(t, st.RemoveRetry(ctx, id))
	due, err = st.DueRetries(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 0)
}

func TestSQLite_WeeklySummary(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)

	top := canonicalJobFixture(rawID)
	top.URLHash, top.ContentFingerprint, top.ScoreBand, top.Status = "hash-w1", "fp-w1", model.ScoreBandTopPriority, model.StatusApplied
	_, err := st.InsertCanonicalJob(ctx, top)
	require.NoError(t, err)

	summary, err := st.WeeklySummary(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalJobs)
	assert.Equal(t, 1, summary.TopPriority)
	assert.Equal(t, 1, summary.Applied)
}

func TestSQLite_ArchiveOldJobs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	rawID := seedRawJob(t, st)

	old := canonicalJobFixture(rawID)
	old.URLHash, old.ContentFingerprint = "hash-old", "fp-old"
	old.FirstSeenAt = time.Now().AddDate(0, 0, -100)
	_, err := st.InsertCanonicalJob(ctx, old)
	require.NoError(t, err)

	result, err := st.ArchiveOldJobs(ctx, 30, 9999)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Archived)
	assert.Equal(t, 0, result.Purged)

	result, err = st.ArchiveOldJobs(ctx, 30, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Archived)
	assert.Equal(t, 1, result.Purged)
}

func TestSQLite_PingAndClose(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Ping(context.Background()))
}
