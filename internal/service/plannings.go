package service

import (
	"context"
	"math"
	"database/sql"
	"errors"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/repository"
)

// NormalizePagination 补齐缺省的分页参数，并把 limit 限制在配置的上限之内
func (s *Service) NormalizePagination(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.cfg.Pagination.DefaultLimit
	}
	if s.cfg.Pagination.MaxLimit > 0 && limit > s.cfg.Pagination.MaxLimit {
		limit = s.cfg.Pagination.MaxLimit
	}
	// (page-1)*limit 作为 OFFSET 不能溢出
	if limit > 0 && page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}
	return page, limit
}

// ListPlannings 先取出一页未被删除的排班，再逐个补上员工和 jours
func (s *Service) ListPlannings(ctx context.Context, page, limit int) ([]*domain.PlanningDetail, error) {
	page, limit = s.NormalizePagination(page, limit)

	plannings, err := s.repository.GetPlannings(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	details := make([]*domain.PlanningDetail, 0, len(plannings))
	for _, planning := range plannings {
		detail, err := s.expand(ctx, s.repository.DB(), planning)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}

	return details, nil
}

func (s *Service) GetPlanningByID(ctx context.Context, id string) (*domain.PlanningDetail, error) {
	planning, err := s.getActivePlanning(ctx, s.repository.DB(), id)
	if err != nil {
		return nil, err
	}

	return s.expand(ctx, s.repository.DB(), planning)
}

// PlanningPatch 只允许修改这些字段，nil 表示不修改
type PlanningPatch struct {
	Intitule  *string  `json:"intitule" validate:"omitnil,min=1"`
	Employees []string `json:"employees"`
}

// UpdatePlanning 在一个事务中更新排班。如果修改了员工集合，
// 被移出的员工会被取消分配，新加入的员工会被分配到该排班。
func (s *Service) UpdatePlanning(ctx context.Context, id string, patch PlanningPatch) (*domain.PlanningDetail, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, &ValidationError{Err: err}
	}

	var updated *domain.Planning

	err := s.repository.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		planning, err := s.getActivePlanning(ctx, tx, id)
		if err != nil {
			return err
		}

		if patch.Intitule != nil {
			planning.Intitule = *patch.Intitule
		}

		if err := s.repository.UpdatePlanning(ctx, tx, planning); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPlanningConflict
			}
			return err
		}

		if patch.Employees != nil {
			employeeIDs := uniqueIDs(patch.Employees)

			if err := s.repository.ReplacePlanningEmployees(ctx, tx, planning.ID, employeeIDs); err != nil {
				return err
			}
			if err := s.repository.UnassignEmployeesFromPlanning(ctx, tx, planning.ID, employeeIDs); err != nil {
				return err
			}
			if _, err := s.repository.AssignEmployeesToPlanning(ctx, tx, planning.ID, employeeIDs); err != nil {
				return err
			}
			planning.EmployeeIDs = employeeIDs
		}

		updated = planning
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrPlanningNotFound), errors.Is(err, ErrPlanningConflict):
			return nil, err
		default:
			return nil, &TransactionError{Err: err}
		}
	}

	return s.expand(ctx, s.repository.DB(), updated)
}

// DeletePlanning 软删除排班，jours 和员工的分配保持不变
func (s *Service) DeletePlanning(ctx context.Context, id string) (*domain.Planning, error) {
	planning, err := s.repository.SoftDeletePlanning(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanningNotFound
		}
		return nil, err
	}

	return planning, nil
}

// getActivePlanning 把不存在和已被软删除的排班都视为不存在
func (s *Service) getActivePlanning(ctx context.Context, q repository.Querier, id string) (*domain.Planning, error) {
	planning, err := s.repository.GetPlanningByID(ctx, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanningNotFound
		}
		return nil, err
	}

	if planning.IsDeleted {
		return nil, ErrPlanningNotFound
	}

	return planning, nil
}

func (s *Service) expand(ctx context.Context, q repository.Querier, planning *domain.Planning) (*domain.PlanningDetail, error) {
	employees, err := s.repository.GetEmployeesByIDs(ctx, q, planning.EmployeeIDs)
	if err != nil {
		return nil, err
	}

	jours, err := s.repository.GetJoursByPlanningID(ctx, q, planning.ID)
	if err != nil {
		return nil, err
	}

	return &domain.PlanningDetail{
		ID:        planning.ID,
		Intitule:  planning.Intitule,
		Employees: employees,
		Jours:     jours,
		IsDeleted: planning.IsDeleted,
		CreatedAt: planning.CreatedAt,
		UpdatedAt: planning.UpdatedAt,
	}, nil
}
