package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
)

type CreateEmployeeInput struct {
	ID       string `json:"id"`
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// CreateEmployee 员工不属于排班工作流，这里只负责录入，不会分配排班
func (s *Service) CreateEmployee(ctx context.Context, in CreateEmployeeInput) (*domain.Employee, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, &ValidationError{Err: err}
	}

	employee := &domain.Employee{
		ID:       in.ID,
		FullName: in.FullName,
		Email:    in.Email,
	}

	if err := s.repository.CreateEmployee(ctx, employee); err != nil {
		return nil, err
	}

	return employee, nil
}

func (s *Service) GetEmployeeByID(ctx context.Context, id string) (*domain.Employee, error) {
	employee, err := s.repository.GetEmployeeByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}

	return employee, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]*domain.Employee, error) {
	return s.repository.GetAllEmployees(ctx)
}
