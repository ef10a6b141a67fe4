package repository

import (
	"context"
	"database/sql"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
)

// InsertPlanning 插入排班及其员工集合，ID、时间和版本号由这里生成
func (r *Repository) InsertPlanning(ctx context.Context, q Querier, p *domain.Planning) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	p.ID = newID()
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	p.IsDeleted = false

	query := `
		INSERT INTO plannings (id, intitule, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version
	`
	params := []any{p.ID, p.Intitule, p.IsDeleted, p.CreatedAt, p.UpdatedAt}
	if err := q.QueryRowContext(ctx, query, params...).Scan(&p.Version); err != nil {
		return err
	}

	return r.insertPlanningEmployees(ctx, q, p.ID, p.EmployeeIDs)
}

func (r *Repository) insertPlanningEmployees(ctx context.Context, q Querier, planningID string, employeeIDs []string) error {
	query := `
		INSERT INTO planning_employees (planning_id, employee_id, position)
		VALUES ($1, $2, $3)
	`
	for i, employeeID := range employeeIDs {
		if _, err := q.ExecContext(ctx, query, planningID, employeeID, i); err != nil {
			return err
		}
	}

	return nil
}

// ReplacePlanningEmployees 用新的员工集合覆盖排班原有的员工集合
func (r *Repository) ReplacePlanningEmployees(ctx context.Context, q Querier, planningID string, employeeIDs []string) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	if _, err := q.ExecContext(ctx, `DELETE FROM planning_employees WHERE planning_id = $1`, planningID); err != nil {
		return err
	}

	return r.insertPlanningEmployees(ctx, q, planningID, employeeIDs)
}

func (r *Repository) getPlanningEmployeeIDs(ctx context.Context, q Querier, planningID string) ([]string, error) {
	query := `
		SELECT employee_id FROM planning_employees
		WHERE planning_id = $1
		ORDER BY position
	`

	rows, err := q.QueryContext(ctx, query, planningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// GetPlanningByID 不区分是否已被软删除，调用方需要自行检查 IsDeleted
func (r *Repository) GetPlanningByID(ctx context.Context, q Querier, id string) (*domain.Planning, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		SELECT intitule, is_deleted, created_at, updated_at, version
		FROM plannings
		WHERE id = $1
	`

	p := &domain.Planning{
		ID: id,
	}

	dst := []any{&p.Intitule, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt, &p.Version}
	if err := q.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}

	employeeIDs, err := r.getPlanningEmployeeIDs(ctx, q, id)
	if err != nil {
		return nil, err
	}
	p.EmployeeIDs = employeeIDs

	return p, nil
}

// GetPlannings 按插入顺序分页获取未被删除的排班
func (r *Repository) GetPlannings(ctx context.Context, offset, limit int) ([]*domain.Planning, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	plannings, err := r.scanPlannings(ctx, offset, limit)
	if err != nil {
		return nil, err
	}

	// 必须在上一个结果集关闭之后再查询员工集合
	for _, p := range plannings {
		employeeIDs, err := r.getPlanningEmployeeIDs(ctx, r.dbpool, p.ID)
		if err != nil {
			return nil, err
		}
		p.EmployeeIDs = employeeIDs
	}

	return plannings, nil
}

func (r *Repository) scanPlannings(ctx context.Context, offset, limit int) ([]*domain.Planning, error) {
	query := `
		SELECT id, intitule, is_deleted, created_at, updated_at, version
		FROM plannings
		WHERE is_deleted = FALSE
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.dbpool.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plannings := []*domain.Planning{}
	for rows.Next() {
		var p domain.Planning
		dst := []any{&p.ID, &p.Intitule, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt, &p.Version}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		plannings = append(plannings, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return plannings, nil
}

// UpdatePlanning 使用乐观锁更新排班，版本号不匹配时返回 sql.ErrNoRows
func (r *Repository) UpdatePlanning(ctx context.Context, q Querier, p *domain.Planning) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		UPDATE plannings
		SET
			intitule = $1,
			updated_at = $2,
			version = version + 1
		WHERE id = $3 AND version = $4 AND is_deleted = FALSE
		RETURNING version
	`

	updatedAt := now()
	params := []any{p.Intitule, updatedAt, p.ID, p.Version}
	if err := q.QueryRowContext(ctx, query, params...).Scan(&p.Version); err != nil {
		return err
	}
	p.UpdatedAt = updatedAt

	return nil
}

// SoftDeletePlanning 只标记 is_deleted，不会改动 jours 和员工的分配；
// 排班不存在或已被删除时返回 sql.ErrNoRows
func (r *Repository) SoftDeletePlanning(ctx context.Context, id string) (*domain.Planning, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		UPDATE plannings
		SET
			is_deleted = $1,
			updated_at = $2,
			version = version + 1
		WHERE id = $3 AND is_deleted = FALSE
	`

	res, err := r.dbpool.ExecContext(ctx, query, true, now(), id)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}

	return r.GetPlanningByID(ctx, r.dbpool, id)
}

// DeletePlanning 物理删除排班及其员工集合，只用于补偿写入
func (r *Repository) DeletePlanning(ctx context.Context, q Querier, id string) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	if _, err := q.ExecContext(ctx, `DELETE FROM planning_employees WHERE planning_id = $1`, id); err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM plannings WHERE id = $1`, id); err != nil {
		return err
	}

	return nil
}

// PlanningExists 直接检查底层记录是否存在，包括已被软删除的排班
func (r *Repository) PlanningExists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	isExists := false
	query := `
		SELECT EXISTS (SELECT 1 FROM plannings WHERE id = $1)
	`
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(&isExists); err != nil {
		return false, err
	}

	return isExists, nil
}

// CountPlannings 统计排班数量（包括已被软删除的），主要给测试和 seed 使用
func (r *Repository) CountPlannings(ctx context.Context) (int, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	var cnt int
	if err := r.dbpool.QueryRowContext(ctx, `SELECT COUNT(*) FROM plannings`).Scan(&cnt); err != nil {
		return 0, err
	}

	return cnt, nil
}
