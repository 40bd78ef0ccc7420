package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) NextTranSerial(ctx context.Context, scopeKey string) (int, error) {
	var serial int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tran_seq (scope_key, next_serial) VALUES ($1, 1)
		ON CONFLICT (scope_key)
		DO UPDATE SET next_serial = tran_seq.next_serial + 1
		RETURNING next_serial`, scopeKey).Scan(&serial)
	if err != nil {
		return 0, fmt.Errorf("sequence: next tran serial: %w", err)
	}
	return serial, nil
}

func (r *pgRepository) MaxAccrualSeqForDate(ctx context.Context, prefix string, date time.Time) (int, error) {
	// Accrual ids look like S20250630000000123-1; the serial sits in
	// positions 10..18 of the base id.
	var max *int
	err := r.pool.QueryRow(ctx,
		`SELECT MAX(CAST(SUBSTRING(accr_tran_id FROM 10 FOR 9) AS INTEGER))
		   FROM intt_accr_tran
		  WHERE accr_tran_id LIKE $1 || '%'`,
		prefix+date.Format(dateDigits)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("sequence: max accrual seq: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *pgRepository) MaxCustomerSerial(ctx context.Context, custID int64, classDigit string) (int, error) {
	prefix := fmt.Sprintf("%08d%s", custID, classDigit)
	var max *int
	err := r.pool.QueryRow(ctx,
		`SELECT MAX(CAST(RIGHT(account_no, 3) AS INTEGER))
		   FROM cust_acct_master
		  WHERE account_no LIKE $1 || '%'`,
		prefix).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("sequence: max customer serial: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *pgRepository) NextOfficeSerial(ctx context.Context, glNum string) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return 0, fmt.Errorf("sequence: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var serial int
	err = tx.QueryRow(ctx,
		`SELECT next_serial FROM account_seq WHERE gl_num = $1 FOR UPDATE`,
		glNum).Scan(&serial)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		serial = 0
		if _, err := tx.Exec(ctx,
			`INSERT INTO account_seq (gl_num, next_serial) VALUES ($1, 1)`, glNum); err != nil {
			return 0, fmt.Errorf("sequence: init office serial: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("sequence: lock office serial: %w", err)
	default:
		if _, err := tx.Exec(ctx,
			`UPDATE account_seq SET next_serial = next_serial + 1 WHERE gl_num = $1`, glNum); err != nil {
			return 0, fmt.Errorf("sequence: bump office serial: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("sequence: commit: %w", err)
	}
	return serial, nil
}
