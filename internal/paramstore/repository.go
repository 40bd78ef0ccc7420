package paramstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmbank/moneymarket/internal/shared"
)

// Repository provides access to parameter_table.
type Repository interface {
	Get(ctx context.Context, key string) (Parameter, error)
	Upsert(ctx context.Context, param Parameter) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Get(ctx context.Context, key string) (Parameter, error) {
	var p Parameter
	row := r.pool.QueryRow(ctx, `SELECT param_key, param_value, updated_by, updated_at FROM parameter_table WHERE param_key = $1`, key)
	if err := row.Scan(&p.Key, &p.Value, &p.UpdatedBy, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Parameter{}, fmt.Errorf("paramstore: %s: %w", key, shared.ErrNotFound)
		}
		return Parameter{}, fmt.Errorf("paramstore: get %s: %w", key, err)
	}
	return p, nil
}

func (r *pgRepository) Upsert(ctx context.Context, param Parameter) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO parameter_table (param_key, param_value, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (param_key)
		DO UPDATE SET param_value = EXCLUDED.param_value, updated_by = EXCLUDED.updated_by, updated_at = NOW()`,
		param.Key, param.Value, param.UpdatedBy)
	if err != nil {
		return fmt.Errorf("paramstore: upsert %s: %w", param.Key, err)
	}
	return nil
}
