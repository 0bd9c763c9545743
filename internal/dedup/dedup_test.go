package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobintel/pipeline/internal/model"
)

type fakeRecentJobsSource struct {
	jobs []model.CanonicalJob
}

func (f *fakeRecentJobsSource) RecentCanonicalJobs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error) {
	return f.jobs, nil
}

func TestBuildIndex_AndCheck_URLHashMatch(t *testing.T) {
	existing := model.CanonicalJob{ID: 1, Company: "Acme", Title: "Engineer", URLHash: "hash1", FirstSeenAt: time.Now().Add(-24 * time.Hour)}
	idx, err := BuildIndex(context.Background(), &fakeRecentJobsSource{jobs: []model.CanonicalJob{existing}}, 90)
	require.NoError(t, err)

	result := idx.Check(model.CanonicalJob{Company: "Acme", Title: "Engineer", URLHash: "hash1"})
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, model.DedupMethodURLHash, result.Method)
	assert.Equal(t, int64(1), result.ExistingJobID)
}

func TestCheck_FuzzyDuplicate(t *testing.T) {
	existing := model.CanonicalJob{ID: 2, Company: "acme", Title: "senior backend engineer", City: "toronto", FirstSeenAt: time.Now().Add(-24 * time.Hour)}
	idx, err := BuildIndex(context.Background(), &fakeRecentJobsSource{jobs: []model.CanonicalJob{existing}}, 90)
	require.NoError(t, err)

	result := idx.Check(model.CanonicalJob{Company: "acme", Title: "senior backend engineer", City: "toronto", URLHash: "different"})
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, model.DedupMethodFuzzyKey, result.Method)
}

func TestCheck_FuzzyPotentialDuplicate(t *testing.T) {
	existing := model.CanonicalJob{ID: 3, Company: "acme", Title: "staff platform engineer lead", City: "toronto", FirstSeenAt: time.Now().Add(-24 * time.Hour)}
	idx, err := BuildIndex(context.Background(), &fakeRecentJobsSource{jobs: []model.CanonicalJob{existing}}, 90)
	require.NoError(t, err)

	result := idx.Check(model.CanonicalJob{Company: "acme", Title: "platform engineer", City: "toronto", URLHash: "different"})
	assert.True(t, result.IsPotentialDuplicate || result.IsDuplicate)
}

func TestCheck_ContentFingerprintWithinRepostWindowIsDuplicate(t *testing.T) {
	now := time.Now()
	existing := model.CanonicalJob{ID: 4, ContentFingerprint: "fp1", FirstSeenAt: now.Add(-2 * 24 * time.Hour)}
	idx, err := BuildIndex(context.Background(), &fakeRecentJobsSource{jobs: []model.CanonicalJob{existing}}, 90)
	require.NoError(t, err)

	result := idx.Check(model.CanonicalJob{ContentFingerprint: "fp1", FirstSeenAt: now, Company: "unrelated co", Title: "unrelated title"})
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, model.DedupMethodContentFingerprint, result.Method)
}

func TestCheck_ContentFingerprintAfterRepostWindowIsRepost(t *testing.T) {
	now := time.Now()
	existing := model.CanonicalJob{ID: 5, ContentFingerprint: "fp2", FirstSeenAt: now.Add(-10 * 24 * time.Hour)}
	idx, err := BuildIndex(context.Background(), &fakeRecentJobsSource{jobs: []model.CanonicalJob{existing}}, 90)
	require.NoError(t, err)

	result := idx.Check(model.CanonicalJob{ContentFingerprint: "fp2", FirstSeenAt: now, Company: "unrelated co", Title: "unrelated title"})
	assert.True(t, result.IsRepost)
	assert.False(t, result.IsDuplicate)
}

func TestCheck_NoMatch(t *testing.T) {
	idx, err := BuildIndex(context.Background(), &fakeRecentJobsSource{}, 90)
	require.NoError(t, err)

	result := idx.Check(model.CanonicalJob{Company: "new co", Title: "new role", URLHash: "newhash"})
	assert.False(t, result.IsDuplicate)
	assert.False(t, result.IsPotentialDuplicate)
	assert.False(t, result.IsRepost)
}

func TestIndex_AddIsVisibleToLaterChecks(t *testing.T) {
	idx, err := BuildIndex(context.Background(), &fakeRecentJobsSource{}, 90)
	require.NoError(t, err)

	idx.Add(Entry{JobID: 9, URLHash: "live-hash", FirstSeenAt: time.Now()})
	result := idx.Check(model.CanonicalJob{URLHash: "live-hash"})
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, int64(9), result.ExistingJobID)
}
