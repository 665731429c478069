package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// EscalationRepository stores the append-only escalation audit trail.
type EscalationRepository interface {
	Create(ctx context.Context, escalation *domain.Escalation) error
	ListByIssue(ctx context.Context, issueID string) ([]domain.Escalation, error)
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository instantiates repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

func (r *escalationRepository) Create(ctx context.Context, escalation *domain.Escalation) error {
	const query = `
        INSERT INTO escalations (issue_id, from_level, to_level, reason, escalated_by, notified_emails)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		escalation.IssueID,
		escalation.FromLevel,
		escalation.ToLevel,
		escalation.Reason,
		escalation.EscalatedBy,
		escalation.NotifiedEmails,
	).Scan(&escalation.ID, &escalation.CreatedAt)
}

func (r *escalationRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.Escalation, error) {
	const query = `
        SELECT id, issue_id, from_level, to_level, reason, escalated_by, notified_emails, created_at
        FROM escalations WHERE issue_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Escalation
	for rows.Next() {
		var escalation domain.Escalation
		if err := rows.Scan(
			&escalation.ID,
			&escalation.IssueID,
			&escalation.FromLevel,
			&escalation.ToLevel,
			&escalation.Reason,
			&escalation.EscalatedBy,
			&escalation.NotifiedEmails,
			&escalation.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, escalation)
	}
	return result, rows.Err()
}
