package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// MemberFilter captures member query parameters.
type MemberFilter struct {
	DepartmentID *string
	City         *string
	Locality     *string
	WithCapacity bool
	Active       *bool
	Limit        int
}

// MemberRepository encapsulates field worker persistence.
type MemberRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	GetByEmail(ctx context.Context, email string) (*domain.Member, error)
	List(ctx context.Context, filter MemberFilter) ([]domain.Member, error)
	// IncrementWorkload atomically takes one unit of capacity; it fails
	// with a conflict when the member is already at max workload.
	IncrementWorkload(ctx context.Context, id string) error
	DecrementWorkload(ctx context.Context, id string) error
}

type memberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository instantiates repository.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepository{pool: pool}
}

const memberColumns = `id, department_id, name, email, phone, password_hash, role, city, locality,
       is_active, current_workload, max_workload, created_at, updated_at`

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id=$1`
	return scanMember(r.pool.QueryRow(ctx, query, id))
}

func (r *memberRepository) GetByEmail(ctx context.Context, email string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE email=$1`
	return scanMember(r.pool.QueryRow(ctx, query, email))
}

func (r *memberRepository) List(ctx context.Context, filter MemberFilter) ([]domain.Member, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.City != nil {
		args = append(args, "%"+*filter.City+"%")
		clauses = append(clauses, fmt.Sprintf("city ILIKE $%d", len(args)))
	}
	if filter.Locality != nil {
		args = append(args, "%"+*filter.Locality+"%")
		clauses = append(clauses, fmt.Sprintf("locality ILIKE $%d", len(args)))
	}
	if filter.WithCapacity {
		clauses = append(clauses, "current_workload < max_workload")
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("is_active=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT %s FROM members WHERE %s ORDER BY current_workload ASC LIMIT %d`,
		memberColumns, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *member)
	}
	return result, rows.Err()
}

func (r *memberRepository) IncrementWorkload(ctx context.Context, id string) error {
	const query = `
        UPDATE members SET current_workload=current_workload+1, updated_at=NOW()
        WHERE id=$1 AND current_workload < max_workload`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewConflict("member at max workload", map[string]any{"member_id": id})
	}
	return nil
}

func (r *memberRepository) DecrementWorkload(ctx context.Context, id string) error {
	const query = `
        UPDATE members SET current_workload=GREATEST(current_workload-1, 0), updated_at=NOW()
        WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var member domain.Member
	if err := row.Scan(
		&member.ID,
		&member.DepartmentID,
		&member.Name,
		&member.Email,
		&member.Phone,
		&member.PasswordHash,
		&member.Role,
		&member.City,
		&member.Locality,
		&member.Active,
		&member.CurrentWorkload,
		&member.MaxWorkload,
		&member.CreatedAt,
		&member.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &member, nil
}
