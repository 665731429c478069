package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/geo"
	"github.com/spec-kit/civic-issue-service/internal/oracle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

// neutralSimilarity is assumed when the oracle cannot score a pair.
// It sits below the default threshold, so an unscorable pair never
// links two issues on its own.
const neutralSimilarity = 0.5

// DedupResult is the outcome of duplicate resolution for one issue.
type DedupResult struct {
	IsDuplicate    bool
	ParentIssue    *domain.Issue
	NearbyCount    int
	BestSimilarity float64
	DistanceMeters float64
}

// DedupService decides whether a new issue re-reports an already known
// one. Candidates are prefiltered by bounding box, refined by exact
// haversine distance, then scored for textual similarity.
type DedupService struct {
	issues    repository.IssueRepository
	oracle    oracle.Oracle
	radius    float64
	threshold float64
	logger    *zap.Logger
}

// NewDedupService instantiates the resolver. radius is in meters;
// threshold is the similarity score a candidate must exceed to count
// as a duplicate.
func NewDedupService(issues repository.IssueRepository, o oracle.Oracle, radius, threshold float64, logger *zap.Logger) *DedupService {
	if radius <= 0 {
		radius = 50
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.75
	}
	return &DedupService{
		issues:    issues,
		oracle:    o,
		radius:    radius,
		threshold: threshold,
		logger:    logger,
	}
}

// Resolve finds the best duplicate parent for the issue, if any. The
// returned parent is always an original (never itself a duplicate) in
// a live state.
func (s *DedupService) Resolve(ctx context.Context, issue *domain.Issue) (DedupResult, error) {
	box := geo.BoundingBoxAround(issue.Latitude, issue.Longitude, s.radius)
	notDuplicate := false
	candidates, err := s.issues.ListWithFilter(ctx, repository.IssueFilter{
		States: []domain.IssueState{
			domain.IssueStateReported,
			domain.IssueStatePendingConfirmation,
			domain.IssueStateValidated,
			domain.IssueStateAssigned,
			domain.IssueStateInProgress,
			domain.IssueStatePendingVerification,
			domain.IssueStateEscalated,
		},
		IsDuplicate: &notDuplicate,
		ExcludeID:   &issue.ID,
		Box:         &box,
	})
	if err != nil {
		return DedupResult{}, err
	}

	type nearby struct {
		issue    domain.Issue
		distance float64
	}
	refined := make([]nearby, 0, len(candidates))
	for _, candidate := range candidates {
		distance := geo.HaversineDistance(issue.Latitude, issue.Longitude, candidate.Latitude, candidate.Longitude)
		if distance <= s.radius {
			refined = append(refined, nearby{issue: candidate, distance: distance})
		}
	}
	sort.Slice(refined, func(i, j int) bool { return refined[i].distance < refined[j].distance })

	result := DedupResult{NearbyCount: len(refined)}
	if len(refined) == 0 {
		return result, nil
	}

	for _, near := range refined {
		if !sameCategory(issue, &near.issue) {
			continue
		}
		score := s.similarity(ctx, issue, &near.issue)
		// Strictly greater keeps the nearest candidate on a tie.
		if score > result.BestSimilarity {
			result.BestSimilarity = score
			parent := near.issue
			result.ParentIssue = &parent
			result.DistanceMeters = near.distance
		}
	}

	if result.ParentIssue != nil && result.BestSimilarity > s.threshold {
		result.IsDuplicate = true
	} else {
		result.ParentIssue = nil
		result.DistanceMeters = 0
	}
	return result, nil
}

func (s *DedupService) similarity(ctx context.Context, a, b *domain.Issue) float64 {
	score, err := s.oracle.SimilarityScore(ctx, oracle.SimilarityPair{
		CategoryA:    categoryOf(a),
		DescriptionA: a.Description,
		CategoryB:    categoryOf(b),
		DescriptionB: b.Description,
	})
	if err != nil {
		s.logger.Warn("similarity scoring unavailable, assuming neutral score",
			zap.String("issue_id", a.ID),
			zap.String("candidate_id", b.ID),
			zap.Error(err))
		return neutralSimilarity
	}
	return score
}

// sameCategory gates similarity scoring: two categorized issues must
// agree on category, while an uncategorized issue is compared against
// everything nearby.
func sameCategory(a, b *domain.Issue) bool {
	if a.Category == nil || b.Category == nil {
		return true
	}
	return *a.Category == *b.Category
}

func categoryOf(issue *domain.Issue) string {
	if issue.Category == nil {
		return ""
	}
	return *issue.Category
}
