package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
)

// InsertJours 按顺序插入 jours，每条记录的 IDPlanning 必须已经设置好
func (r *Repository) InsertJours(ctx context.Context, q Querier, jours []*domain.Jour) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		INSERT INTO jours (id, h_entree, h_sortie, id_planning, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for i, jour := range jours {
		jour.ID = newID()
		jour.CreatedAt = now()

		params := []any{jour.ID, jour.HEntree, jour.HSortie, jour.IDPlanning, i, jour.CreatedAt}
		if _, err := q.ExecContext(ctx, query, params...); err != nil {
			return err
		}
	}

	return nil
}

func (r *Repository) GetJoursByPlanningID(ctx context.Context, q Querier, planningID string) ([]*domain.Jour, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		SELECT id, h_entree, h_sortie, id_planning, created_at
		FROM jours
		WHERE id_planning = $1
		ORDER BY position, id
	`

	rows, err := q.QueryContext(ctx, query, planningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jours := make([]*domain.Jour, 0)
	for rows.Next() {
		jour := &domain.Jour{}
		dst := []any{&jour.ID, &jour.HEntree, &jour.HSortie, &jour.IDPlanning, &jour.CreatedAt}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		jours = append(jours, jour)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jours, nil
}

// DeleteJoursByPlanningID 只用于补偿写入
func (r *Repository) DeleteJoursByPlanningID(ctx context.Context, q Querier, planningID string) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	if _, err := q.ExecContext(ctx, `DELETE FROM jours WHERE id_planning = $1`, planningID); err != nil {
		return err
	}

	return nil
}

func (r *Repository) CountJours(ctx context.Context) (int, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	var cnt int
	if err := r.dbpool.QueryRowContext(ctx, `SELECT COUNT(*) FROM jours`).Scan(&cnt); err != nil {
		return 0, err
	}

	return cnt, nil
}
