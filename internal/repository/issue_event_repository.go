package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// IssueEventRepository stores the append-only decision audit trail.
type IssueEventRepository interface {
	Create(ctx context.Context, event *domain.IssueEvent) error
	ListByIssue(ctx context.Context, issueID string, limit int) ([]domain.IssueEvent, error)
}

type issueEventRepository struct {
	pool *pgxpool.Pool
}

// NewIssueEventRepository instantiates repository.
func NewIssueEventRepository(pool *pgxpool.Pool) IssueEventRepository {
	return &issueEventRepository{pool: pool}
}

func (r *issueEventRepository) Create(ctx context.Context, event *domain.IssueEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO issue_events (issue_id, event_type, agent_name, event_data)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		event.IssueID,
		event.EventType,
		event.AgentName,
		data,
	).Scan(&event.ID, &event.CreatedAt)
}

func (r *issueEventRepository) ListByIssue(ctx context.Context, issueID string, limit int) ([]domain.IssueEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, issue_id, event_type, agent_name, event_data, created_at
        FROM issue_events WHERE issue_id=$1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, issueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.IssueEvent
	for rows.Next() {
		var event domain.IssueEvent
		var raw []byte
		if err := rows.Scan(&event.ID, &event.IssueID, &event.EventType, &event.AgentName, &raw, &event.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &event.Data); err != nil {
				return nil, err
			}
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
