package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/utils"
)

// CreatePlanningInput 中 nil 表示字段缺失，空切片表示字段存在但为空
type CreatePlanningInput struct {
	Intitule  string           `json:"intitule" validate:"required"`
	Sessions  []domain.Session `json:"sessions" validate:"required"`
	Employees []string         `json:"employees" validate:"required"`
}

// CreatePlanningWithDependents 创建排班、它的 jours，并把员工分配到该排班。
// 三类写入要么全部生效，要么全部不生效。
func (s *Service) CreatePlanningWithDependents(ctx context.Context, in CreatePlanningInput) (*domain.PlanningCreation, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if err := utils.ValidateSessionTimes(in.Sessions); err != nil {
		return nil, &ValidationError{Err: err}
	}

	planning := &domain.Planning{
		Intitule:    in.Intitule,
		EmployeeIDs: uniqueIDs(in.Employees),
	}

	jours := make([]*domain.Jour, 0, len(in.Sessions))
	for _, session := range in.Sessions {
		jours = append(jours, &domain.Jour{
			HEntree: session.HEntree,
			HSortie: session.HSortie,
		})
	}

	var assignedIDs []string
	var err error

	switch s.cfg.Database.TransactionMode {
	case config.TransactionModeCompensation:
		assignedIDs, err = s.createWithCompensation(ctx, planning, jours)
	default:
		err = s.repository.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			assignedIDs, err = s.writePlanningWithDependents(ctx, tx, planning, jours)
			return err
		})
	}
	if err != nil {
		return nil, &TransactionError{Err: err}
	}

	creation := &domain.PlanningCreation{
		Planning:          planning,
		Jours:             jours,
		AssignedEmployees: []*domain.Employee{},
	}

	// 事务已经提交，这里的失败不能再让调用方以为创建失败；
	// 调用方断开连接后仍需查出已分配的员工，以便发送通知
	assigned, err := s.repository.GetEmployeesByIDs(context.WithoutCancel(ctx), s.repository.DB(), assignedIDs)
	if err != nil {
		slog.Warn("无法获取已分配的员工", "planning", planning.ID, "error", err)
		return creation, nil
	}
	creation.AssignedEmployees = assigned

	return creation, nil
}

// writePlanningWithDependents 依次执行三类写入，q 决定它们是否处于同一个事务中
func (s *Service) writePlanningWithDependents(ctx context.Context, q repository.Querier, planning *domain.Planning, jours []*domain.Jour) ([]string, error) {
	if err := s.repository.InsertPlanning(ctx, q, planning); err != nil {
		return nil, fmt.Errorf("insert planning: %w", err)
	}

	for _, jour := range jours {
		jour.IDPlanning = planning.ID
	}
	if err := s.repository.InsertJours(ctx, q, jours); err != nil {
		return nil, fmt.Errorf("insert jours: %w", err)
	}

	assignedIDs, err := s.repository.AssignEmployeesToPlanning(ctx, q, planning.ID, planning.EmployeeIDs)
	if err != nil {
		return nil, fmt.Errorf("assign employees: %w", err)
	}

	return assignedIDs, nil
}

// createWithCompensation 是存储不支持多表事务时的降级模式：
// 写入失败后显式删除已经写入的排班和 jours。一致性弱于事务模式，
// 并发的读请求可能短暂地看到未完成的排班。
func (s *Service) createWithCompensation(ctx context.Context, planning *domain.Planning, jours []*domain.Jour) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(s.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	q := s.repository.DB()

	assignedIDs, err := s.writePlanningWithDependents(ctx, q, planning, jours)
	if err == nil {
		return assignedIDs, nil
	}

	// 单条 UPDATE 语句本身是原子的，所以员工的分配不需要补偿
	if planning.ID != "" {
		if cerr := s.repository.DeleteJoursByPlanningID(ctx, q, planning.ID); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("compensate jours: %w", cerr))
		}
		if cerr := s.repository.DeletePlanning(ctx, q, planning.ID); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("compensate planning: %w", cerr))
		}
	}

	return nil, err
}
