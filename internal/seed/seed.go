package seed

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/service"
)

const (
	HeaderID       = "工号"
	HeaderName     = "姓名"
	HeaderEmail    = "邮箱"
	HeaderPlanning = "排班"
	HeaderSessions = "班次"
)

var requiredHeaders = []string{HeaderID, HeaderName, HeaderEmail, HeaderPlanning, HeaderSessions}

type Result struct {
	Employees int
	Plannings int
}

type planningRows struct {
	sessions  []domain.Session
	employees []string
}

// ParseSessions 解析形如 "08:00-12:00, 14:00-18:00" 的班次
func ParseSessions(value string) ([]domain.Session, error) {
	sessions := make([]domain.Session, 0)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		start, end, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("invalid session %q", part)
		}
		sessions = append(sessions, domain.Session{
			HEntree: strings.TrimSpace(start),
			HSortie: strings.TrimSpace(end),
		})
	}
	return sessions, nil
}

// ImportCSV 导入真实的员工和排班数据。每一行是一个员工，排班列相同的行属于同一个排班，
// 班次以该排班第一次出现的行为准；排班列为空的员工只录入，不分配排班。
// 已经存在的员工不会被重复录入。
func ImportCSV(ctx context.Context, repo *repository.Repository, svc *service.Service, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(headers))
	for i, header := range headers {
		index[strings.TrimSpace(header)] = i
	}
	for _, header := range requiredHeaders {
		if _, ok := index[header]; !ok {
			return nil, fmt.Errorf("missing column %q", header)
		}
	}

	result := &Result{}
	plannings := make(map[string]*planningRows)
	planningOrder := make([]string, 0)

	// 读取数据
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row: %w", err)
		}

		employeeID := strings.TrimSpace(row[index[HeaderID]])
		if employeeID == "" {
			slog.Warn("没有找到工号，跳过该行", "row", row)
			continue
		}

		// 先尝试获取员工，不存在时再录入
		if _, err := repo.GetEmployeeByID(ctx, employeeID); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("get employee %s: %w", employeeID, err)
			}

			_, err := svc.CreateEmployee(ctx, service.CreateEmployeeInput{
				ID:       employeeID,
				FullName: strings.TrimSpace(row[index[HeaderName]]),
				Email:    strings.TrimSpace(row[index[HeaderEmail]]),
			})
			if err != nil {
				return nil, fmt.Errorf("create employee %s: %w", employeeID, err)
			}
			result.Employees++
		}

		intitule := strings.TrimSpace(row[index[HeaderPlanning]])
		if intitule == "" {
			continue
		}

		p, ok := plannings[intitule]
		if !ok {
			sessions, err := ParseSessions(row[index[HeaderSessions]])
			if err != nil {
				return nil, fmt.Errorf("planning %s: %w", intitule, err)
			}
			p = &planningRows{sessions: sessions, employees: make([]string, 0)}
			plannings[intitule] = p
			planningOrder = append(planningOrder, intitule)
		}
		p.employees = append(p.employees, employeeID)
	}

	// 插入排班，每个排班和它的 jours、员工分配在同一个事务中完成
	for _, intitule := range planningOrder {
		p := plannings[intitule]

		_, err := svc.CreatePlanningWithDependents(ctx, service.CreatePlanningInput{
			Intitule:  intitule,
			Sessions:  p.sessions,
			Employees: p.employees,
		})
		if err != nil {
			return nil, fmt.Errorf("create planning %s: %w", intitule, err)
		}
		result.Plannings++
	}

	slog.Info("导入数据完成", "employees", result.Employees, "plannings", result.Plannings)
	return result, nil
}
