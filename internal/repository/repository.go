package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/config"
)

//go:embed schema.sql
var schema string

// Querier 由 *sql.DB 和 *sql.Tx 共同实现，写操作通过它显式地接收事务
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	cfg    *config.Config
	dbpool *sql.DB
}

func NewRepository(cfg *config.Config, dbpool *sql.DB) *Repository {
	return &Repository{
		cfg:    cfg,
		dbpool: dbpool,
	}
}

// DB 返回连接池本身，用于不需要事务的写操作
func (r *Repository) DB() Querier {
	return r.dbpool
}

// WithTransaction 是事务唯一的持有者：开启事务，把事务交给 fn，
// fn 返回 nil 时提交，否则回滚。无论哪条路径事务都会被释放。
func (r *Repository) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	// 客户端断开连接时事务也必须确定地提交或回滚，所以不继承请求的取消信号
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// CreateSchema 创建所需的表，已存在时不做任何改动
func (r *Repository) CreateSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.dbpool.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func (r *Repository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
}

// newID 生成按时间递增的 UUIDv7，使 ID 的顺序与插入顺序一致
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// PostgreSQL 的时间戳精度为微秒
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// placeholders 生成 "$start, $start+1, ..." 形式的参数占位符
func placeholders(start, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", start+i)
	}
	return sb.String()
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
