package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// DepartmentRepository encapsulates department persistence.
type DepartmentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Department, error)
	GetByCode(ctx context.Context, code string) (*domain.Department, error)
	ListActive(ctx context.Context) ([]domain.Department, error)
}

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository instantiates repository.
func NewDepartmentRepository(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepository{pool: pool}
}

const departmentColumns = `id, name, code, description, categories, default_sla_hours,
       escalation_email, is_active, created_at, updated_at`

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE id=$1`
	return scanDepartment(r.pool.QueryRow(ctx, query, id))
}

func (r *departmentRepository) GetByCode(ctx context.Context, code string) (*domain.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE code=$1`
	return scanDepartment(r.pool.QueryRow(ctx, query, code))
}

func (r *departmentRepository) ListActive(ctx context.Context) ([]domain.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE is_active=TRUE ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Department
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *dept)
	}
	return result, rows.Err()
}

func scanDepartment(row rowScanner) (*domain.Department, error) {
	var dept domain.Department
	if err := row.Scan(
		&dept.ID,
		&dept.Name,
		&dept.Code,
		&dept.Description,
		&dept.Categories,
		&dept.DefaultSLAHours,
		&dept.EscalationEmail,
		&dept.Active,
		&dept.CreatedAt,
		&dept.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &dept, nil
}
