package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/config"
	"github.com/jobintel/pipeline/internal/connector"
	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/store"
)

var _ store.Store = (*fakeStore)(nil)

// fakeStore is a minimal in-memory store.Store double. It is hand-rolled
// rather than a generated/testify mock because the interface is large and
// every test here only cares about a handful of call sequences; a mock
// would mean forty near-identical .On(...) lines per test for no benefit.
type fakeStore struct {
	mu sync.Mutex

	runs            map[string]*model.RunLog
	canonicalJobs   []model.CanonicalJob
	nextCanonicalID int64
	rawJobs         []model.RawJob
	nextRawID       int64
	duplicates      []model.JobDuplicate
	alternateURLs   []model.AlternateURL
	fitAnalyses     map[int64]model.FitAnalysis
	sourceMetrics   []model.SourceMetric
	retryQueue      []model.RetryQueueItem
	boards          map[string][]model.DiscoveredBoard
	checkpoints     map[string]int // key: source|company -> consecutive failures

	recentJobs []model.CanonicalJob // seeded fixture for dedup index

	insertRawJobErr     error
	insertCanonicalErr  error
	panicOnRawURL       string
	consecutiveOverride map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:        make(map[string]*model.RunLog),
		fitAnalyses: make(map[int64]model.FitAnalysis),
		boards:      make(map[string][]model.DiscoveredBoard),
		checkpoints: make(map[string]int),
	}
}

func (s *fakeStore) CreateRunLog(ctx context.Context, run model.RunLog) (*model.RunLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = "run-1"
	run.StartedAt = time.Now()
	s.runs[run.ID] = &run
	cp := run
	return &cp, nil
}

func (s *fakeStore) FinishRunLog(ctx context.Context, run model.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = &run
	return nil
}

func (s *fakeStore) GetRunLog(ctx context.Context, id string) (*model.RunLog, error) { return s.runs[id], nil }

func (s *fakeStore) LastFinishedRunLog(ctx context.Context, runType model.RunType) (*model.RunLog, error) {
	return nil, nil
}

func (s *fakeStore) InsertRawJob(ctx context.Context, job model.RawJob) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnRawURL != "" && job.URL == s.panicOnRawURL {
		panic("simulated panic on raw job insert")
	}
	if s.insertRawJobErr != nil {
		return 0, s.insertRawJobErr
	}
	s.nextRawID++
	job.ID = s.nextRawID
	s.rawJobs = append(s.rawJobs, job)
	return job.ID, nil
}

func (s *fakeStore) RawJobsByDateSource(ctx context.Context, date, source string) ([]model.RawJob, error) {
	return nil, nil
}

func (s *fakeStore) InsertCanonicalJob(ctx context.Context, job model.CanonicalJob) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertCanonicalErr != nil {
		return 0, s.insertCanonicalErr
	}
	s.nextCanonicalID++
	job.ID = s.nextCanonicalID
	s.canonicalJobs = append(s.canonicalJobs, job)
	return job.ID, nil
}

func (s *fakeStore) GetCanonicalJobByURLHash(ctx context.Context, urlHash string) (*model.CanonicalJob, error) {
	return nil, nil
}

func (s *fakeStore) CanonicalJobsByContentFingerprint(ctx context.Context, fingerprint string) ([]model.CanonicalJob, error) {
	return nil, nil
}

func (s *fakeStore) GetCanonicalJob(ctx context.Context, id int64) (*model.CanonicalJob, error) {
	return nil, nil
}

func (s *fakeStore) ListCanonicalJobs(ctx context.Context, filter store.JobFilter) ([]model.CanonicalJob, error) {
	return nil, nil
}

func (s *fakeStore) UpdateCanonicalJobScore(ctx context.Context, id int64, score, freshness, location, mode float64, band model.ScoreBand) error {
	return nil
}

func (s *fakeStore) UpdateCanonicalJobStatus(ctx context.Context, id int64, status model.JobStatus) error {
	return nil
}

func (s *fakeStore) RecentCanonicalJobs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error) {
	return s.recentJobs, nil
}

func (s *fakeStore) ActiveJobURLs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error) {
	return nil, nil
}

func (s *fakeStore) InsertJobDuplicate(ctx context.Context, dup model.JobDuplicate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duplicates = append(s.duplicates, dup)
	return nil
}

func (s *fakeStore) UpsertBoard(ctx context.Context, board model.DiscoveredBoard) error { return nil }

func (s *fakeStore) ActiveBoardsByPlatform(ctx context.Context, platform string) ([]model.DiscoveredBoard, error) {
	return s.boards[platform], nil
}

func (s *fakeStore) UpdateBoardPollState(ctx context.Context, boardID int64, success bool) error {
	return nil
}

func (s *fakeStore) UpsertSourceMetric(ctx context.Context, metric model.SourceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceMetrics = append(s.sourceMetrics, metric)
	return nil
}

func (s *fakeStore) RecordConnectorCheckpoint(ctx context.Context, source, company string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := source + "|" + company
	if success {
		s.checkpoints[key] = 0
	} else {
		s.checkpoints[key]++
	}
	return nil
}

func (s *fakeStore) ConsecutiveFailures(ctx context.Context, source, company string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := source + "|" + company
	if n, ok := s.consecutiveOverride[key]; ok {
		return n, nil
	}
	return s.checkpoints[key], nil
}

func (s *fakeStore) UpsertFitAnalysis(ctx context.Context, analysis model.FitAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitAnalyses[analysis.CanonicalJobID] = analysis
	return nil
}

func (s *fakeStore) GetFitAnalysis(ctx context.Context, canonicalJobID int64) (*model.FitAnalysis, error) {
	a, ok := s.fitAnalyses[canonicalJobID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *fakeStore) InsertAlternateURL(ctx context.Context, alt model.AlternateURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alternateURLs = append(s.alternateURLs, alt)
	return nil
}

func (s *fakeStore) ListAlternateURLs(ctx context.Context, canonicalJobID int64) ([]model.AlternateURL, error) {
	return nil, nil
}

func (s *fakeStore) EnqueueRetry(ctx context.Context, item model.RetryQueueItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryQueue = append(s.retryQueue, item)
	return int64(len(s.retryQueue)), nil
}

func (s *fakeStore) DueRetries(ctx context.Context, now time.Time) ([]model.RetryQueueItem, error) {
	return nil, nil
}

func (s *fakeStore) IncrementRetry(ctx context.Context, id int64, nextRetryAt time.Time) error {
	return nil
}

func (s *fakeStore) RemoveRetry(ctx context.Context, id int64) error { return nil }

func (s *fakeStore) SourceAnalytics(ctx context.Context, days int) ([]store.SourceAnalytic, error) {
	return nil, nil
}

func (s *fakeStore) WeeklySummary(ctx context.Context, since time.Time) (store.WeeklySummary, error) {
	return store.WeeklySummary{}, nil
}

func (s *fakeStore) ArchiveOldJobs(ctx context.Context, archiveAfterDays, purgeAfterDays int) (store.ArchiveResult, error) {
	return store.ArchiveResult{}, nil
}

func (s *fakeStore) Migrate(ctx context.Context) error { return nil }
func (s *fakeStore) Ping(ctx context.Context) error    { return nil }
func (s *fakeStore) Close() error                      { return nil }

// fakeConnector returns a fixed set of jobs (or an error/failure) per call.
type fakeConnector struct {
	name    string
	results map[string]connector.ConnectorResult // keyed by company name
}

func (c *fakeConnector) Name() string                                    { return c.name }
func (c *fakeConnector) ValidateConfig(def connector.SourceDef) error    { return nil }
func (c *fakeConnector) Fetch(ctx context.Context, company connector.CompanySeed, def connector.SourceDef) (connector.ConnectorResult, error) {
	if r, ok := c.results[company.Name]; ok {
		return r, nil
	}
	return connector.ConnectorResult{Source: c.name, Company: company.Name, Success: true}, nil
}

// fakeAnalyzer and fakeNotifier double the remaining collaborators.

type fakeAnalyzer struct {
	calls int32
	mu    sync.Mutex
	fn    func(job model.CanonicalJob) (*model.FitAnalysis, error)
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, job model.CanonicalJob, descriptionHTML, resume string) (*model.FitAnalysis, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.fn != nil {
		return a.fn(job)
	}
	return &model.FitAnalysis{FitScore: 90, Verdict: model.VerdictStrong, Summary: "great fit"}, nil
}

type fakeNotifier struct {
	mu           sync.Mutex
	alerts       []model.CanonicalJob
	systemAlerts []string
	alertErr     error
}

func (n *fakeNotifier) SendAlert(ctx context.Context, job model.CanonicalJob, analysis *model.FitAnalysis) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.alertErr != nil {
		return n.alertErr
	}
	n.alerts = append(n.alerts, job)
	return nil
}

func (n *fakeNotifier) SendSystemAlert(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.systemAlerts = append(n.systemAlerts, message)
	return nil
}

func (n *fakeNotifier) SendDigest(ctx context.Context, kind model.DigestKind, jobs []model.CanonicalJob) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Timezone: "UTC",
		Sources: map[string]config.SourceConfig{
			"greenhouse": {Type: "greenhouse", Category: config.CategoryATS, Enabled: true},
		},
		Companies: map[string][]string{
			"greenhouse": {"acme"},
		},
		TitleFilters: config.TitleFiltersConfig{
			Include: []string{"engineer"},
			Reject:  []string{"intern"},
		},
		Scoring: config.ScoringConfig{
			FreshnessBrackets: []config.FreshnessBracket{{MaxHours: nil, Points: 50}},
			Bands: []config.BandThreshold{
				{Name: "topPriority", MinScore: 40},
				{Name: "goodMatch", MinScore: 20},
				{Name: "worthALook", MinScore: 0},
			},
		},
		Pipeline: config.PipelineConfig{
			FuzzyDedupWindowDays: 7,
			BatchSize:            2,
		},
		LLM: config.LLMConfig{AIAnalysisMinScore: 30},
	}
}

func newTestOrchestrator(t *testing.T, st *fakeStore, conns map[string]connector.Connector, az *fakeAnalyzer, nt *fakeNotifier) *Orchestrator {
	t.Helper()
	o, err := New(testConfig(), st, conns, az, nt, "resume text", 2, zap.NewNop())
	require.NoError(t, err)
	return o
}

func TestOrchestrator_Run_HappyPathInsertsScoresAndAlerts(t *testing.T) {
	now := time.Now()
	st := newFakeStore()
	conn := &fakeConnector{name: "greenhouse", results: map[string]connector.ConnectorResult{
		"acme": {
			Source:  "greenhouse",
			Company: "acme",
			Success: true,
			Jobs: []model.RawJob{
				{Source: "greenhouse", Title: "Senior Engineer", Company: "acme", URL: "https://boards.greenhouse.io/acme/jobs/1", PostedAt: &now, FetchedAt: now},
				{Source: "greenhouse", Title: "Summer Intern", Company: "acme", URL: "https://boards.greenhouse.io/acme/jobs/2", PostedAt: &now, FetchedAt: now},
			},
		},
	}}
	az := &fakeAnalyzer{}
	nt := &fakeNotifier{}

	o := newTestOrchestrator(t, st, map[string]connector.Connector{"greenhouse": conn}, az, nt)

	run, err := o.Run(context.Background(), RunOptions{Type: model.RunTypeIngest, Connector: RunConnectorOptions{IncludeATS: true}})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.JobsFound)
	assert.Equal(t, 1, run.JobsRejected) // the intern posting is filtered by title
	assert.Equal(t, 1, run.JobsNew)
	require.Len(t, st.canonicalJobs, 1)
	assert.Equal(t, model.ScoreBandTopPriority, st.canonicalJobs[0].ScoreBand)

	require.Len(t, nt.alerts, 1)
	assert.Equal(t, "Senior Engineer", nt.alerts[0].Title)
	assert.Equal(t, 1, run.AlertsSent)

	assert.Equal(t, int32(1), az.calls)
	require.Len(t, st.fitAnalyses, 1)

	require.Len(t, st.sourceMetrics, 1)
	assert.Equal(t, "greenhouse", st.sourceMetrics[0].Source)
	assert.Equal(t, 2, st.sourceMetrics[0].JobsFound)
}

func TestOrchestrator_Run_DuplicateURLIsSkippedNotInserted(t *testing.T) {
	now := time.Now()
	st := newFakeStore()
	existingURL := "https://boards.greenhouse.io/acme/jobs/1"
	st.recentJobs = []model.CanonicalJob{
		{ID: 99, Company: "acme", Title: "Senior Engineer", URLHash: urlHashForTest(existingURL), FirstSeenAt: now.Add(-time.Hour), Status: model.StatusActive},
	}

	conn := &fakeConnector{name: "greenhouse", results: map[string]connector.ConnectorResult{
		"acme": {
			Source: "greenhouse", Company: "acme", Success: true,
			Jobs: []model.RawJob{{Source: "greenhouse", Title: "Senior Engineer", Company: "acme", URL: existingURL, PostedAt: &now, FetchedAt: now}},
		},
	}}
	az := &fakeAnalyzer{}
	nt := &fakeNotifier{}
	o := newTestOrchestrator(t, st, map[string]connector.Connector{"greenhouse": conn}, az, nt)

	run, err := o.Run(context.Background(), RunOptions{Type: model.RunTypeIngest, Connector: RunConnectorOptions{IncludeATS: true}})
	require.NoError(t, err)

	assert.Equal(t, 1, run.JobsDuplicate)
	assert.Equal(t, 0, run.JobsNew)
	assert.Empty(t, st.canonicalJobs)
	require.Len(t, st.alternateURLs, 1)
}

func TestOrchestrator_Run_BackfillSuppressesAnalysisAndAlerts(t *testing.T) {
	now := time.Now()
	st := newFakeStore()
	conn := &fakeConnector{name: "greenhouse", results: map[string]connector.ConnectorResult{
		"acme": {
			Source: "greenhouse", Company: "acme", Success: true,
			Jobs: []model.RawJob{{Source: "greenhouse", Title: "Senior Engineer", Company: "acme", URL: "https://boards.greenhouse.io/acme/jobs/3", PostedAt: &now, FetchedAt: now}},
		},
	}}
	az := &fakeAnalyzer{}
	nt := &fakeNotifier{}
	o := newTestOrchestrator(t, st, map[string]connector.Connector{"greenhouse": conn}, az, nt)

	run, err := o.Run(context.Background(), RunOptions{Type: model.RunTypeBackfill, Connector: RunConnectorOptions{IncludeATS: true}})
	require.NoError(t, err)

	assert.Equal(t, 1, run.JobsNew)
	assert.Equal(t, int32(0), az.calls)
	assert.Empty(t, nt.alerts)
	require.Len(t, st.canonicalJobs, 1)
	assert.True(t, st.canonicalJobs[0].IsBackfill)
}

func TestOrchestrator_Run_PanicOnOneJobDoesNotAbortRun(t *testing.T) {
	now := time.Now()
	st := newFakeStore()
	st.panicOnRawURL = "https://boards.greenhouse.io/acme/jobs/bad"
	conn := &fakeConnector{name: "greenhouse", results: map[string]connector.ConnectorResult{
		"acme": {
			Source: "greenhouse", Company: "acme", Success: true,
			Jobs: []model.RawJob{
				{Source: "greenhouse", Title: "Senior Engineer", Company: "acme", URL: "https://boards.greenhouse.io/acme/jobs/bad", PostedAt: &now, FetchedAt: now},
				{Source: "greenhouse", Title: "Staff Engineer", Company: "acme", URL: "https://boards.greenhouse.io/acme/jobs/good", PostedAt: &now, FetchedAt: now},
			},
		},
	}}
	az := &fakeAnalyzer{}
	nt := &fakeNotifier{}
	o := newTestOrchestrator(t, st, map[string]connector.Connector{"greenhouse": conn}, az, nt)

	run, err := o.Run(context.Background(), RunOptions{Type: model.RunTypeIngest, Connector: RunConnectorOptions{IncludeATS: true}})
	require.NoError(t, err)

	assert.Equal(t, 1, run.ParseFailures)
	assert.Equal(t, 1, run.JobsNew)
	require.Len(t, st.canonicalJobs, 1)
	assert.Equal(t, "Staff Engineer", st.canonicalJobs[0].Title)
	assert.NotEmpty(t, run.Errors)
}

func TestOrchestrator_Run_ConsecutiveFailureTriggersSystemAlert(t *testing.T) {
	st := newFakeStore()
	st.consecutiveOverride = map[string]int{"greenhouse|acme": 3}
	conn := &fakeConnector{name: "greenhouse", results: map[string]connector.ConnectorResult{
		"acme": {Source: "greenhouse", Company: "acme", Success: false, Error: "upstream 503"},
	}}
	az := &fakeAnalyzer{}
	nt := &fakeNotifier{}
	o := newTestOrchestrator(t, st, map[string]connector.Connector{"greenhouse": conn}, az, nt)

	run, err := o.Run(context.Background(), RunOptions{Type: model.RunTypeIngest, Connector: RunConnectorOptions{IncludeATS: true}})
	require.NoError(t, err)

	require.Len(t, nt.systemAlerts, 1)
	assert.Contains(t, nt.systemAlerts[0], "greenhouse/acme")
	assert.Equal(t, 0, run.JobsFound)
}

func TestOrchestrator_Run_CategoryFilterSkipsUnselectedSources(t *testing.T) {
	st := newFakeStore()
	conn := &fakeConnector{name: "greenhouse", results: map[string]connector.ConnectorResult{}}
	az := &fakeAnalyzer{}
	nt := &fakeNotifier{}
	o := newTestOrchestrator(t, st, map[string]connector.Connector{"greenhouse": conn}, az, nt)

	// ATS source configured, but this run only asks for aggregators.
	run, err := o.Run(context.Background(), RunOptions{Type: model.RunTypeIngest, Connector: RunConnectorOptions{IncludeAggregators: true}})
	require.NoError(t, err)

	assert.Equal(t, 0, run.JobsFound)
	assert.Empty(t, st.rawJobs)
}

// urlHashForTest mirrors normalize's unexported urlHash so this package's
// tests can build a duplicate fixture with a matching hash.
func urlHashForTest(rawURL string) string {
	stripped := strings.TrimRight(rawURL, "/")
	if i := strings.IndexByte(stripped, '?'); i >= 0 {
		stripped = stripped[:i]
	}
	sum := sha256.Sum256([]byte(strings.ToLower(stripped)))
	return hex.EncodeToString(sum[:])
}
