// Package testutil 提供测试使用的内存数据库和配置
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/repository"
)

// NewConfig 返回一份不依赖环境变量的配置
func NewConfig() *config.Config {
	cfg := &config.Config{}

	cfg.Database.QueryTimeout = 5
	cfg.Database.TransactionTimeout = 5
	cfg.Database.TransactionMode = config.TransactionModeTransaction
	cfg.Pagination.DefaultLimit = 10
	cfg.Pagination.MaxLimit = 100
	cfg.JWT.AccessSecret = "test-access-secret"
	cfg.JWT.RefreshSecret = "test-refresh-secret"
	cfg.JWT.AccessExpiration = 15
	cfg.JWT.RefreshExpiration = 180
	cfg.Email.UserDomain = "example.com"
	cfg.RabbitMQ.Queue = "email_queue"
	cfg.RabbitMQ.PublishTimeout = 5
	cfg.Redis.OperationExpiration = 5
	cfg.OTP.Expiration = 900

	return cfg
}

// OpenDB 为每个测试打开一个独立的内存 SQLite 数据库并建表
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// 单连接避免共享缓存下的表锁冲突
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return db
}

// NewRepository 返回建好表的 repository 以及底层连接池
func NewRepository(t *testing.T, cfg *config.Config) (*repository.Repository, *sql.DB) {
	t.Helper()

	db := OpenDB(t)
	repo := repository.NewRepository(cfg, db)
	if err := repo.CreateSchema(context.Background()); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	return repo, db
}

// FailOn 让 table 上的 event（INSERT、UPDATE 或 DELETE）全部失败，用于模拟存储层故障
func FailOn(t *testing.T, db *sql.DB, table, event string) {
	t.Helper()

	stmt := fmt.Sprintf(
		`CREATE TRIGGER fail_%s_%s BEFORE %s ON %s BEGIN SELECT RAISE(ABORT, '%s %s unavailable'); END`,
		strings.ToLower(event), table, event, table, table, strings.ToLower(event),
	)
	if _, err := db.Exec(stmt); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
}

// SeedEmployees 按给定的 ID 录入员工，邮箱由 ID 生成
func SeedEmployees(t *testing.T, repo *repository.Repository, ids ...string) []*domain.Employee {
	t.Helper()

	employees := make([]*domain.Employee, 0, len(ids))
	for _, id := range ids {
		employee := &domain.Employee{
			ID:       id,
			FullName: "Employee " + id,
			Email:    strings.ToLower(id) + "@example.com",
		}
		if err := repo.CreateEmployee(context.Background(), employee); err != nil {
			t.Fatalf("create employee %s: %v", id, err)
		}
		employees = append(employees, employee)
	}

	return employees
}
