package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
)

func (r *Repository) CreateAccount(ctx context.Context, account *domain.Account) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	account.ID = newID()
	account.CreatedAt = now()

	query := `
		INSERT INTO accounts (id, username, password_hash, email, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING version
	`

	args := []any{account.ID, account.Username, account.PasswordHash, account.Email, account.Role, account.IsActive, account.CreatedAt}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&account.Version); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT username, password_hash, email, role, is_active, created_at, version
		FROM accounts WHERE id = $1
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	account := &domain.Account{
		ID: id,
	}

	dst := []any{&account.Username, &account.PasswordHash, &account.Email, &account.Role, &account.IsActive, &account.CreatedAt, &account.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}

	return account, nil
}

func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `
		SELECT id, password_hash, email, role, is_active, created_at, version
		FROM accounts WHERE username = $1
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	account := &domain.Account{
		Username: username,
	}

	dst := []any{&account.ID, &account.PasswordHash, &account.Email, &account.Role, &account.IsActive, &account.CreatedAt, &account.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, username).Scan(dst...); err != nil {
		return nil, err
	}

	return account, nil
}

// UpdateAccount 版本号不匹配时返回 sql.ErrNoRows
func (r *Repository) UpdateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET
			password_hash = $1,
			email = $2,
			role = $3,
			is_active = $4,
			version = version + 1
		WHERE id = $5 AND version = $6
		RETURNING version
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{account.PasswordHash, account.Email, account.Role, account.IsActive, account.ID, account.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&account.Version); err != nil {
		return err
	}

	return nil
}

func (r *Repository) CheckUsernameIfExists(ctx context.Context, username string) (bool, error) {
	isExists := false

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)
	`
	if err := r.dbpool.QueryRowContext(ctx, query, username).Scan(&isExists); err != nil {
		return false, err
	}

	return isExists, nil
}
