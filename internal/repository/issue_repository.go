package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/geo"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// IssueFilter captures issue query parameters.
type IssueFilter struct {
	States           []domain.IssueState
	IsDuplicate      *bool
	HasSLADeadline   *bool
	AssignedMemberID *string
	ReporterID       *string
	ExcludeID        *string
	Box              *geo.BoundingBox
	Limit            int
	Offset           int
}

// IssueRepository encapsulates issue persistence.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	// Update writes the issue back, guarded by its version column.
	// A version mismatch returns a CONCURRENCY_CONFLICT error.
	Update(ctx context.Context, issue *domain.Issue) error
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	ListWithFilter(ctx context.Context, filter IssueFilter) ([]domain.Issue, error)
	CountDuplicates(ctx context.Context, parentID string) (int, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

const issueColumns = `id, reporter_id, description, latitude, longitude, accuracy_meters,
       state, priority, priority_reason, category, confidence, validation_reason,
       is_duplicate, parent_issue_id, department_id, assigned_member_id, city, locality,
       sla_hours, sla_deadline, escalation_level, escalated_at,
       resolved_at, resolution_notes, version, created_at, updated_at`

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	const query = `
        INSERT INTO issues (reporter_id, description, latitude, longitude, accuracy_meters, state)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		issue.ReporterID,
		issue.Description,
		issue.Latitude,
		issue.Longitude,
		issue.AccuracyMeters,
		issue.State,
	).Scan(&issue.ID, &issue.Version, &issue.CreatedAt, &issue.UpdatedAt)
}

func (r *issueRepository) Update(ctx context.Context, issue *domain.Issue) error {
	const query = `
        UPDATE issues SET state=$1, priority=$2, priority_reason=$3, category=$4, confidence=$5,
            validation_reason=$6, is_duplicate=$7, parent_issue_id=$8, department_id=$9,
            assigned_member_id=$10, city=$11, locality=$12, sla_hours=$13, sla_deadline=$14,
            escalation_level=$15, escalated_at=$16, resolved_at=$17, resolution_notes=$18,
            version=version+1, updated_at=NOW()
        WHERE id=$19 AND version=$20`
	cmd, err := r.pool.Exec(ctx, query,
		issue.State,
		nullableInt(issue.Priority),
		issue.PriorityReason,
		issue.Category,
		issue.Confidence,
		issue.ValidationReason,
		issue.IsDuplicate,
		issue.ParentIssueID,
		issue.DepartmentID,
		issue.AssignedMemberID,
		issue.City,
		issue.Locality,
		nullableInt(issue.SLAHours),
		issue.SLADeadline,
		issue.EscalationLevel,
		issue.EscalatedAt,
		issue.ResolvedAt,
		issue.ResolutionNotes,
		issue.ID,
		issue.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		exists, err := r.exists(ctx, issue.ID)
		if err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return apperrors.NewConcurrencyConflict("issue", map[string]any{"issue_id": issue.ID})
	}
	issue.Version++
	return nil
}

func (r *issueRepository) exists(ctx context.Context, id string) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM issues WHERE id=$1)`, id).Scan(&found)
	return found, err
}

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	query := fmt.Sprintf(`SELECT %s FROM issues WHERE id=$1`, issueColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanIssue(row)
}

func (r *issueRepository) ListWithFilter(ctx context.Context, filter IssueFilter) ([]domain.Issue, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.IsDuplicate != nil {
		args = append(args, *filter.IsDuplicate)
		clauses = append(clauses, fmt.Sprintf("is_duplicate=$%d", len(args)))
	}
	if filter.HasSLADeadline != nil {
		if *filter.HasSLADeadline {
			clauses = append(clauses, "sla_deadline IS NOT NULL")
		} else {
			clauses = append(clauses, "sla_deadline IS NULL")
		}
	}
	if filter.AssignedMemberID != nil {
		args = append(args, *filter.AssignedMemberID)
		clauses = append(clauses, fmt.Sprintf("assigned_member_id=$%d", len(args)))
	}
	if filter.ReporterID != nil {
		args = append(args, *filter.ReporterID)
		clauses = append(clauses, fmt.Sprintf("reporter_id=$%d", len(args)))
	}
	if filter.ExcludeID != nil {
		args = append(args, *filter.ExcludeID)
		clauses = append(clauses, fmt.Sprintf("id<>$%d", len(args)))
	}
	if filter.Box != nil {
		args = append(args, filter.Box.MinLat, filter.Box.MaxLat, filter.Box.MinLon, filter.Box.MaxLon)
		clauses = append(clauses, fmt.Sprintf(
			"latitude>=$%d AND latitude<=$%d AND longitude>=$%d AND longitude<=$%d",
			len(args)-3, len(args)-2, len(args)-1, len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM issues WHERE %s ORDER BY created_at ASC LIMIT %d OFFSET %d`,
		issueColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

func (r *issueRepository) CountDuplicates(ctx context.Context, parentID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM issues WHERE parent_issue_id=$1`, parentID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*domain.Issue, error) {
	var issue domain.Issue
	var priority, slaHours *int
	if err := row.Scan(
		&issue.ID,
		&issue.ReporterID,
		&issue.Description,
		&issue.Latitude,
		&issue.Longitude,
		&issue.AccuracyMeters,
		&issue.State,
		&priority,
		&issue.PriorityReason,
		&issue.Category,
		&issue.Confidence,
		&issue.ValidationReason,
		&issue.IsDuplicate,
		&issue.ParentIssueID,
		&issue.DepartmentID,
		&issue.AssignedMemberID,
		&issue.City,
		&issue.Locality,
		&slaHours,
		&issue.SLADeadline,
		&issue.EscalationLevel,
		&issue.EscalatedAt,
		&issue.ResolvedAt,
		&issue.ResolutionNotes,
		&issue.Version,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if priority != nil {
		issue.Priority = *priority
	}
	if slaHours != nil {
		issue.SLAHours = *slaHours
	}
	return &issue, nil
}

func scanIssues(rows pgx.Rows) ([]domain.Issue, error) {
	var result []domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *issue)
	}
	return result, rows.Err()
}

func nullableInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
