package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
)

const employeeColumns = `id, full_name, email, id_planning, created_at`

func scanEmployee(scan func(dest ...any) error) (*domain.Employee, error) {
	employee := &domain.Employee{}
	var idPlanning sql.NullString

	if err := scan(&employee.ID, &employee.FullName, &employee.Email, &idPlanning, &employee.CreatedAt); err != nil {
		return nil, err
	}
	if idPlanning.Valid {
		employee.IDPlanning = &idPlanning.String
	}

	return employee, nil
}

func (r *Repository) collectEmployees(rows *sql.Rows) ([]*domain.Employee, error) {
	defer rows.Close()

	employees := make([]*domain.Employee, 0)
	for rows.Next() {
		employee, err := scanEmployee(rows.Scan)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return employees, nil
}

// CreateEmployee 在 ID 为空时生成新的 ID
func (r *Repository) CreateEmployee(ctx context.Context, employee *domain.Employee) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	if employee.ID == "" {
		employee.ID = newID()
	}
	employee.CreatedAt = now()

	query := `
		INSERT INTO employees (id, full_name, email, id_planning, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	var idPlanning sql.NullString
	if employee.IDPlanning != nil {
		idPlanning = sql.NullString{String: *employee.IDPlanning, Valid: true}
	}

	params := []any{employee.ID, employee.FullName, employee.Email, idPlanning, employee.CreatedAt}
	if _, err := r.dbpool.ExecContext(ctx, query, params...); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetEmployeeByID(ctx context.Context, id string) (*domain.Employee, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`

	return scanEmployee(r.dbpool.QueryRowContext(ctx, query, id).Scan)
}

func (r *Repository) GetAllEmployees(ctx context.Context) ([]*domain.Employee, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `SELECT ` + employeeColumns + ` FROM employees ORDER BY created_at, id`

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return r.collectEmployees(rows)
}

// GetEmployeesByIDs 按 ids 的顺序返回存在的员工，不存在的 ID 会被忽略
func (r *Repository) GetEmployeesByIDs(ctx context.Context, q Querier, ids []string) ([]*domain.Employee, error) {
	if len(ids) == 0 {
		return []*domain.Employee{}, nil
	}

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM employees WHERE id IN (%s)`, employeeColumns, placeholders(1, len(ids)))

	rows, err := q.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}

	found, err := r.collectEmployees(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Employee, len(found))
	for _, employee := range found {
		byID[employee.ID] = employee
	}

	employees := make([]*domain.Employee, 0, len(found))
	for _, id := range ids {
		if employee, ok := byID[id]; ok {
			employees = append(employees, employee)
		}
	}

	return employees, nil
}

// AssignEmployeesToPlanning 把 ids 中的员工分配到排班，返回实际被更新的员工 ID。
// 不存在的 ID 会被直接跳过，不会报错。
func (r *Repository) AssignEmployeesToPlanning(ctx context.Context, q Querier, planningID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE employees
		SET id_planning = $1
		WHERE id IN (%s)
		RETURNING id
	`, placeholders(2, len(ids)))

	args := append([]any{planningID}, stringArgs(ids)...)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	updated := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		updated = append(updated, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return updated, nil
}

// UnassignEmployeesFromPlanning 清除仍指向该排班、但不在 keepIDs 中的员工的分配
func (r *Repository) UnassignEmployeesFromPlanning(ctx context.Context, q Querier, planningID string, keepIDs []string) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `UPDATE employees SET id_planning = NULL WHERE id_planning = $1`
	if len(keepIDs) > 0 {
		query += fmt.Sprintf(` AND id NOT IN (%s)`, placeholders(2, len(keepIDs)))
	}

	args := append([]any{planningID}, stringArgs(keepIDs)...)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	return nil
}
