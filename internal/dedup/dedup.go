// Package dedup identifies whether a newly normalized job is a duplicate,
// a potential duplicate, or a repost of a job already known to the store.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/internal/model"
)

// Entry is the slice of a CanonicalJob that the dedup index needs, kept
// deliberately small so BuildIndex can run against a large recent window
// without holding full job bodies in memory.
type Entry struct {
	JobID              int64
	Company            string
	Title              string
	City               string
	URLHash            string
	ContentFingerprint string
	FirstSeenAt        time.Time
	Status             model.JobStatus
}

// RecentJobsSource supplies the jobs an Index is built from.
type RecentJobsSource interface {
	RecentCanonicalJobs(ctx context.Context, maxAgeDays int) ([]model.CanonicalJob, error)
}

// Index is an in-memory structure built once per pipeline run to check new
// jobs against recently seen ones without a query per job.
type Index struct {
	byFuzzyKey            map[string][]Entry
	byURLHash             map[string]Entry
	byContentFingerprint  map[string][]Entry
}

// BuildIndex loads the last maxAgeDays of canonical jobs from source and
// indexes them for Check.
func BuildIndex(ctx context.Context, source RecentJobsSource, maxAgeDays int) (*Index, error) {
	jobs, err := source.RecentCanonicalJobs(ctx, maxAgeDays)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: load recent canonical jobs")
	}

	idx := &Index{
		byFuzzyKey:           make(map[string][]Entry),
		byURLHash:            make(map[string]Entry),
		byContentFingerprint: make(map[string][]Entry),
	}

	for _, j := range jobs {
		e := Entry{
			JobID:              j.ID,
			Company:            j.Company,
			Title:              j.Title,
			City:               j.City,
			URLHash:            j.URLHash,
			ContentFingerprint: j.ContentFingerprint,
			FirstSeenAt:        j.FirstSeenAt,
			Status:             j.Status,
		}
		idx.Add(e)
	}

	return idx, nil
}

// Add inserts e into the index. Exported so pipeline runs can keep the
// index current with jobs inserted earlier in the same run.
func (idx *Index) Add(e Entry) {
	idx.byFuzzyKey[fuzzyKey(e.Company, e.Title, e.City)] = append(idx.byFuzzyKey[fuzzyKey(e.Company, e.Title, e.City)], e)
	if e.URLHash != "" {
		idx.byURLHash[e.URLHash] = e
	}
	if e.ContentFingerprint != "" {
		idx.byContentFingerprint[e.ContentFingerprint] = append(idx.byContentFingerprint[e.ContentFingerprint], e)
	}
}

func fuzzyKey(company, title, city string) string {
	return strings.ToLower(strings.TrimSpace(company)) + "|" +
		strings.ToLower(strings.TrimSpace(title)) + "|" +
		strings.ToLower(strings.TrimSpace(city))
}

// Fuzzy-match thresholds over the combined company+title Jaro-Winkler score.
const (
	fuzzyDuplicateThreshold          = 0.85
	fuzzyPotentialDuplicateThreshold = 0.70
	repostWindow                     = 7 * 24 * time.Hour
)

// Result reports the outcome of checking one job against the index.
type Result struct {
	IsDuplicate          bool
	IsPotentialDuplicate bool
	IsRepost             bool
	Method               model.DedupMethod
	ExistingJobID        int64
	OriginalPostDate     *time.Time
}

// Check runs the three dedup passes in order, short-circuiting on the
// first pass that finds a match: exact URL hash, fuzzy company/title
// similarity against jobs in the same city, then content fingerprint (which distinguishes a true repost
// from a duplicate by how long ago the existing job was first seen).
func (idx *Index) Check(job model.CanonicalJob) Result {
	if e, ok := idx.byURLHash[job.URLHash]; ok && job.URLHash != "" {
		return Result{
			IsDuplicate:      true,
			Method:           model.DedupMethodURLHash,
			ExistingJobID:    e.JobID,
			OriginalPostDate: firstSeenPtr(e),
		}
	}

	if res, ok := idx.checkFuzzy(job); ok {
		return res
	}

	if res, ok := idx.checkContentFingerprint(job); ok {
		return res
	}

	return Result{}
}

func (idx *Index) checkFuzzy(job model.CanonicalJob) (Result, bool) {
	city := strings.ToLower(strings.TrimSpace(job.City))
	var candidates []Entry
	for _, entries := range idx.byFuzzyKey {
		for _, e := range entries {
			if strings.ToLower(strings.TrimSpace(e.City)) == city {
				candidates = append(candidates, e)
			}
		}
	}
	if len(candidates) == 0 {
		return Result{}, false
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].FirstSeenAt.Before(candidates[j].FirstSeenAt) })

	best := candidates[0]
	bestScore := jaroWinkler(
		strings.ToLower(job.Company)+" "+strings.ToLower(job.Title),
		strings.ToLower(best.Company)+" "+strings.ToLower(best.Title),
	)
	for _, c := range candidates[1:] {
		score := jaroWinkler(
			strings.ToLower(job.Company)+" "+strings.ToLower(job.Title),
			strings.ToLower(c.Company)+" "+strings.ToLower(c.Title),
		)
		if score > bestScore {
			best, bestScore = c, score
		}
	}

	switch {
	case bestScore >= fuzzyDuplicateThreshold:
		return Result{
			IsDuplicate:      true,
			Method:           model.DedupMethodFuzzyKey,
			ExistingJobID:    best.JobID,
			OriginalPostDate: firstSeenPtr(best),
		}, true
	case bestScore >= fuzzyPotentialDuplicateThreshold:
		return Result{
			IsPotentialDuplicate: true,
			Method:               model.DedupMethodFuzzyKey,
			ExistingJobID:        best.JobID,
			OriginalPostDate:     firstSeenPtr(best),
		}, true
	default:
		return Result{}, false
	}
}

func (idx *Index) checkContentFingerprint(job model.CanonicalJob) (Result, bool) {
	if job.ContentFingerprint == "" {
		return Result{}, false
	}
	candidates := idx.byContentFingerprint[job.ContentFingerprint]
	if len(candidates) == 0 {
		return Result{}, false
	}

	oldest := candidates[0]
	for _, c := range candidates[1:] {
		if c.FirstSeenAt.Before(oldest.FirstSeenAt) {
			oldest = c
		}
	}

	if job.FirstSeenAt.Sub(oldest.FirstSeenAt) > repostWindow {
		return Result{
			IsRepost:         true,
			Method:           model.DedupMethodContentFingerprint,
			ExistingJobID:    oldest.JobID,
			OriginalPostDate: firstSeenPtr(oldest),
		}, true
	}

	return Result{
		IsDuplicate:      true,
		Method:           model.DedupMethodContentFingerprint,
		ExistingJobID:    oldest.JobID,
		OriginalPostDate: firstSeenPtr(oldest),
	}, true
}

func firstSeenPtr(e Entry) *time.Time {
	t := e.FirstSeenAt
	return &t
}

// Describe renders a Result as a short human-readable string for logging.
func Describe(r Result) string {
	switch {
	case r.IsDuplicate:
		return fmt.Sprintf("duplicate via %s of job %d", r.Method, r.ExistingJobID)
	case r.IsPotentialDuplicate:
		return fmt.Sprintf("potential duplicate via %s of job %d", r.Method, r.ExistingJobID)
	case r.IsRepost:
		return fmt.Sprintf("repost via %s of job %d", r.Method, r.ExistingJobID)
	default:
		return "no match"
	}
}
