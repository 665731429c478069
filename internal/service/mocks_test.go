package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/geo"
	"github.com/spec-kit/civic-issue-service/internal/oracle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// memIssueRepo is an in-memory IssueRepository with the same version
// guard semantics as the SQL implementation.
type memIssueRepo struct {
	mu     sync.Mutex
	issues map[string]domain.Issue
}

func newMemIssueRepo() *memIssueRepo {
	return &memIssueRepo{issues: make(map[string]domain.Issue)}
}

func (r *memIssueRepo) Create(_ context.Context, issue *domain.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	issue.Version = 1
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	r.issues[issue.ID] = *issue
	return nil
}

func (r *memIssueRepo) Update(_ context.Context, issue *domain.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.issues[issue.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != issue.Version {
		return apperrors.NewConcurrencyConflict("issue", map[string]any{"issue_id": issue.ID})
	}
	issue.Version++
	issue.UpdatedAt = time.Now().UTC()
	r.issues[issue.ID] = *issue
	return nil
}

func (r *memIssueRepo) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.issues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := stored
	return &copied, nil
}

func (r *memIssueRepo) ListWithFilter(_ context.Context, filter repository.IssueFilter) ([]domain.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Issue
	for _, issue := range r.issues {
		if len(filter.States) > 0 && !containsState(filter.States, issue.State) {
			continue
		}
		if filter.IsDuplicate != nil && issue.IsDuplicate != *filter.IsDuplicate {
			continue
		}
		if filter.HasSLADeadline != nil {
			if *filter.HasSLADeadline && issue.SLADeadline == nil {
				continue
			}
			if !*filter.HasSLADeadline && issue.SLADeadline != nil {
				continue
			}
		}
		if filter.AssignedMemberID != nil {
			if issue.AssignedMemberID == nil || *issue.AssignedMemberID != *filter.AssignedMemberID {
				continue
			}
		}
		if filter.ExcludeID != nil && issue.ID == *filter.ExcludeID {
			continue
		}
		if filter.Box != nil && !inBox(issue, *filter.Box) {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}

func (r *memIssueRepo) CountDuplicates(_ context.Context, parentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, issue := range r.issues {
		if issue.ParentIssueID != nil && *issue.ParentIssueID == parentID {
			count++
		}
	}
	return count, nil
}

func containsState(states []domain.IssueState, state domain.IssueState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func inBox(issue domain.Issue, box geo.BoundingBox) bool {
	return issue.Latitude >= box.MinLat && issue.Latitude <= box.MaxLat &&
		issue.Longitude >= box.MinLon && issue.Longitude <= box.MaxLon
}

type memMemberRepo struct {
	mu      sync.Mutex
	members map[string]domain.Member
}

func newMemMemberRepo() *memMemberRepo {
	return &memMemberRepo{members: make(map[string]domain.Member)}
}

func (r *memMemberRepo) put(member domain.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[member.ID] = member
}

func (r *memMemberRepo) GetByID(_ context.Context, id string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := member
	return &copied, nil
}

func (r *memMemberRepo) GetByEmail(_ context.Context, email string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, member := range r.members {
		if member.Email == email {
			copied := member
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memMemberRepo) List(_ context.Context, filter repository.MemberFilter) ([]domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Member
	for _, member := range r.members {
		if filter.DepartmentID != nil {
			if member.DepartmentID == nil || *member.DepartmentID != *filter.DepartmentID {
				continue
			}
		}
		if filter.WithCapacity && member.CurrentWorkload >= member.MaxWorkload {
			continue
		}
		if filter.Active != nil && member.Active != *filter.Active {
			continue
		}
		out = append(out, member)
	}
	return out, nil
}

func (r *memMemberRepo) IncrementWorkload(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[id]
	if !ok || member.CurrentWorkload >= member.MaxWorkload {
		return apperrors.NewConflict("member at max workload", nil)
	}
	member.CurrentWorkload++
	r.members[id] = member
	return nil
}

func (r *memMemberRepo) DecrementWorkload(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if member.CurrentWorkload > 0 {
		member.CurrentWorkload--
	}
	r.members[id] = member
	return nil
}

type memDepartmentRepo struct {
	departments []domain.Department
}

func (r *memDepartmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	for i := range r.departments {
		if r.departments[i].ID == id {
			copied := r.departments[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memDepartmentRepo) GetByCode(_ context.Context, code string) (*domain.Department, error) {
	for i := range r.departments {
		if r.departments[i].Code == code {
			copied := r.departments[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memDepartmentRepo) ListActive(_ context.Context) ([]domain.Department, error) {
	var out []domain.Department
	for _, dept := range r.departments {
		if dept.Active {
			out = append(out, dept)
		}
	}
	return out, nil
}

type memEscalationRepo struct {
	mu   sync.Mutex
	rows []domain.Escalation
}

func (r *memEscalationRepo) Create(_ context.Context, escalation *domain.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	escalation.ID = uuid.NewString()
	escalation.CreatedAt = time.Now().UTC()
	r.rows = append(r.rows, *escalation)
	return nil
}

func (r *memEscalationRepo) ListByIssue(_ context.Context, issueID string) ([]domain.Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Escalation
	for _, row := range r.rows {
		if row.IssueID == issueID {
			out = append(out, row)
		}
	}
	return out, nil
}

type memIssueEventRepo struct {
	mu   sync.Mutex
	rows []domain.IssueEvent
}

func (r *memIssueEventRepo) Create(_ context.Context, event *domain.IssueEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = uuid.NewString()
	event.CreatedAt = time.Now().UTC()
	r.rows = append(r.rows, *event)
	return nil
}

func (r *memIssueEventRepo) ListByIssue(_ context.Context, issueID string, _ int) ([]domain.IssueEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.IssueEvent
	for _, row := range r.rows {
		if row.IssueID == issueID {
			out = append(out, row)
		}
	}
	return out, nil
}

// stubOracle returns configured judgments, or an unavailable error for
// any call left unset.
type stubOracle struct {
	classify   func(description string) (oracle.ClassificationJudgment, error)
	similarity func(pair oracle.SimilarityPair) (float64, error)
	priority   func(input oracle.PriorityInput) (oracle.PriorityJudgment, error)
	route      func(category string) (string, error)
	escalation func(input oracle.EscalationInput) (oracle.EscalationJudgment, error)
}

func (o *stubOracle) ClassifyReport(_ context.Context, description string) (oracle.ClassificationJudgment, error) {
	if o.classify == nil {
		return oracle.ClassificationJudgment{}, apperrors.NewOracleUnavailable(nil)
	}
	return o.classify(description)
}

func (o *stubOracle) SimilarityScore(_ context.Context, pair oracle.SimilarityPair) (float64, error) {
	if o.similarity == nil {
		return 0, apperrors.NewOracleUnavailable(nil)
	}
	return o.similarity(pair)
}

func (o *stubOracle) AssignPriority(_ context.Context, input oracle.PriorityInput) (oracle.PriorityJudgment, error) {
	if o.priority == nil {
		return oracle.PriorityJudgment{}, apperrors.NewOracleUnavailable(nil)
	}
	return o.priority(input)
}

func (o *stubOracle) RouteDepartment(_ context.Context, category, _ string, _ []oracle.DepartmentOption) (string, error) {
	if o.route == nil {
		return "", apperrors.NewOracleUnavailable(nil)
	}
	return o.route(category)
}

func (o *stubOracle) AssessEscalation(_ context.Context, input oracle.EscalationInput) (oracle.EscalationJudgment, error) {
	if o.escalation == nil {
		return oracle.EscalationJudgment{}, apperrors.NewOracleUnavailable(nil)
	}
	return o.escalation(input)
}

// captureBus records published events without dispatching.
type captureBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *captureBus) Publish(_ context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	return nil
}

func (b *captureBus) Subscribe(events.EventType, events.EventHandler) {}
func (b *captureBus) Start(context.Context)                          {}
func (b *captureBus) Stop()                                          {}

func (b *captureBus) byType(eventType events.EventType) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, event := range b.published {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}
