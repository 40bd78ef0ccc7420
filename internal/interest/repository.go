package interest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmbank/moneymarket/internal/shared"
)

// Repository provides accrual persistence.
type Repository interface {
	InsertLegs(ctx context.Context, legs []AccrualLeg) error
	HasAccrualForDate(ctx context.Context, accountNo, prefix string, date time.Time) (bool, error)
	ListPendingLegs(ctx context.Context, date time.Time) ([]AccrualLeg, error)
	MarkLegPosted(ctx context.Context, lineID string) error
	InsertMovement(ctx context.Context, mv AccrualMovement) error
	AccrualDaySums(ctx context.Context, accountNo string, date time.Time) (DaySums, error)
	AccrualBalanceOn(ctx context.Context, accountNo string, date time.Time) (AccrualBalance, bool, error)
	LatestAccrualBalanceBefore(ctx context.Context, accountNo string, date time.Time) (AccrualBalance, bool, error)
	UpsertAccrualBalance(ctx context.Context, bal AccrualBalance) error
	ListBackValuedImpacts(ctx context.Context, asOf time.Time) ([]BackValuedImpact, error)
}

// DrCrSum pairs debit and credit totals on the accrual book.
type DrCrSum struct {
	Dr float64
	Cr float64
}

// Net is credits minus debits.
func (s DrCrSum) Net() float64 { return s.Cr - s.Dr }

// DaySums splits one account's accrual legs for a date by origin: daily
// accruals (S ids), back-value adjustments (V ids) and capitalization
// clearings (C ids).
type DaySums struct {
	Accrual    DrCrSum
	BackValued DrCrSum
	Capital    DrCrSum
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) InsertLegs(ctx context.Context, legs []AccrualLeg) error {
	for _, l := range legs {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO intt_accr_tran
				(line_id, accr_tran_id, account_no, gl_num, dr_cr_flag, amount, rate,
				 tran_date, value_date, narration, status, pointing_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`,
			l.LineID, l.AccrTranID, l.AccountNo, l.GLNum, l.DrCr, l.Amount, l.Rate,
			l.TranDate, l.ValueDate, l.Narration, string(l.Status), l.PointingID)
		if err != nil {
			if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
				return fmt.Errorf("interest: leg %s: %w", l.LineID, shared.ErrDuplicateOperation)
			}
			return fmt.Errorf("interest: insert leg %s: %w", l.LineID, err)
		}
	}
	return nil
}

func (r *pgRepository) HasAccrualForDate(ctx context.Context, accountNo, prefix string, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM intt_accr_tran
			 WHERE account_no = $1 AND tran_date = $2 AND LEFT(accr_tran_id, 1) = $3
		)`, accountNo, date, prefix).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("interest: has accrual: %w", err)
	}
	return exists, nil
}

const legColumns = `line_id, accr_tran_id, account_no, gl_num, dr_cr_flag, amount, rate,
	tran_date, value_date, narration, status, pointing_id, created_at`

func (r *pgRepository) ListPendingLegs(ctx context.Context, date time.Time) ([]AccrualLeg, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+legColumns+` FROM intt_accr_tran
		 WHERE tran_date = $1 AND status = 'Pending' ORDER BY line_id`, date)
	if err != nil {
		return nil, fmt.Errorf("interest: list pending legs: %w", err)
	}
	defer rows.Close()

	var legs []AccrualLeg
	for rows.Next() {
		var l AccrualLeg
		var status string
		if err := rows.Scan(&l.LineID, &l.AccrTranID, &l.AccountNo, &l.GLNum, &l.DrCr,
			&l.Amount, &l.Rate, &l.TranDate, &l.ValueDate, &l.Narration, &status,
			&l.PointingID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("interest: scan leg: %w", err)
		}
		l.Status = LegStatus(status)
		legs = append(legs, l)
	}
	return legs, rows.Err()
}

func (r *pgRepository) MarkLegPosted(ctx context.Context, lineID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE intt_accr_tran SET status = 'Posted' WHERE line_id = $1 AND status = 'Pending'`, lineID)
	if err != nil {
		return fmt.Errorf("interest: mark leg posted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("interest: leg %s not pending: %w", lineID, shared.ErrBusinessRule)
	}
	return nil
}

func (r *pgRepository) InsertMovement(ctx context.Context, mv AccrualMovement) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO gl_movement_accrual
			(line_id, tran_id, gl_num, dr_cr_flag, lcy_amt, tran_date, narration)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		mv.LineID, mv.TranID, mv.GLNum, mv.DrCr, mv.Amount, mv.TranDate, mv.Narration)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return fmt.Errorf("interest: movement %s: %w", mv.LineID, shared.ErrDuplicateOperation)
		}
		return fmt.Errorf("interest: insert movement: %w", err)
	}
	return nil
}

func (r *pgRepository) AccrualDaySums(ctx context.Context, accountNo string, date time.Time) (DaySums, error) {
	var s DaySums
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE dr_cr_flag = 'D' AND LEFT(accr_tran_id, 1) = 'S'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE dr_cr_flag = 'C' AND LEFT(accr_tran_id, 1) = 'S'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE dr_cr_flag = 'D' AND LEFT(accr_tran_id, 1) = 'V'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE dr_cr_flag = 'C' AND LEFT(accr_tran_id, 1) = 'V'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE dr_cr_flag = 'D' AND LEFT(accr_tran_id, 1) = 'C'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE dr_cr_flag = 'C' AND LEFT(accr_tran_id, 1) = 'C'), 0)
		  FROM intt_accr_tran
		 WHERE account_no = $1 AND tran_date = $2`,
		accountNo, date).Scan(&s.Accrual.Dr, &s.Accrual.Cr,
		&s.BackValued.Dr, &s.BackValued.Cr, &s.Capital.Dr, &s.Capital.Cr)
	if err != nil {
		return DaySums{}, fmt.Errorf("interest: day sums: %w", err)
	}
	return s, nil
}

func (r *pgRepository) AccrualBalanceOn(ctx context.Context, accountNo string, date time.Time) (AccrualBalance, bool, error) {
	var b AccrualBalance
	err := r.pool.QueryRow(ctx, `
		SELECT account_no, tran_date, opening_bal, dr_sum, cr_sum,
		       value_date_impact, interest_amount, closing_bal
		  FROM acct_bal_accrual WHERE account_no = $1 AND tran_date = $2`,
		accountNo, date).Scan(&b.AccountNo, &b.TranDate, &b.OpeningBal, &b.DrSum,
		&b.CrSum, &b.ValueDateImpact, &b.InterestAmount, &b.ClosingBal)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccrualBalance{}, false, nil
	}
	if err != nil {
		return AccrualBalance{}, false, fmt.Errorf("interest: accrual balance on: %w", err)
	}
	return b, true, nil
}

func (r *pgRepository) LatestAccrualBalanceBefore(ctx context.Context, accountNo string, date time.Time) (AccrualBalance, bool, error) {
	var b AccrualBalance
	err := r.pool.QueryRow(ctx, `
		SELECT account_no, tran_date, opening_bal, dr_sum, cr_sum,
		       value_date_impact, interest_amount, closing_bal
		  FROM acct_bal_accrual WHERE account_no = $1 AND tran_date < $2
		 ORDER BY tran_date DESC LIMIT 1`,
		accountNo, date).Scan(&b.AccountNo, &b.TranDate, &b.OpeningBal, &b.DrSum,
		&b.CrSum, &b.ValueDateImpact, &b.InterestAmount, &b.ClosingBal)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccrualBalance{}, false, nil
	}
	if err != nil {
		return AccrualBalance{}, false, fmt.Errorf("interest: latest accrual balance: %w", err)
	}
	return b, true, nil
}

func (r *pgRepository) UpsertAccrualBalance(ctx context.Context, bal AccrualBalance) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO acct_bal_accrual
			(account_no, tran_date, opening_bal, dr_sum, cr_sum,
			 value_date_impact, interest_amount, closing_bal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_no, tran_date)
		DO UPDATE SET opening_bal = EXCLUDED.opening_bal, dr_sum = EXCLUDED.dr_sum,
		              cr_sum = EXCLUDED.cr_sum, value_date_impact = EXCLUDED.value_date_impact,
		              interest_amount = EXCLUDED.interest_amount, closing_bal = EXCLUDED.closing_bal`,
		bal.AccountNo, bal.TranDate, bal.OpeningBal, bal.DrSum, bal.CrSum,
		bal.ValueDateImpact, bal.InterestAmount, bal.ClosingBal)
	if err != nil {
		return fmt.Errorf("interest: upsert accrual balance: %w", err)
	}
	return nil
}

func (r *pgRepository) ListBackValuedImpacts(ctx context.Context, asOf time.Time) ([]BackValuedImpact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.tran_id, t.line_id, t.account_no, t.dr_cr_flag, t.lcy_amt,
		       t.value_date, t.tran_date
		  FROM value_date_log v
		  JOIN tran_table t ON t.tran_id = v.tran_id
		  JOIN cust_acct_master c ON c.account_no = t.account_no
		 WHERE v.posted AND v.value_date < v.tran_date
		   AND t.status = 'Verified' AND t.tran_date <= $1
		   AND NOT EXISTS (
			SELECT 1 FROM intt_accr_tran a WHERE a.pointing_id = t.line_id
		   )
		 ORDER BY t.line_id`, asOf)
	if err != nil {
		return nil, fmt.Errorf("interest: list back valued: %w", err)
	}
	defer rows.Close()

	var impacts []BackValuedImpact
	for rows.Next() {
		var im BackValuedImpact
		if err := rows.Scan(&im.TranID, &im.LineID, &im.AccountNo, &im.DrCr,
			&im.LcyAmt, &im.ValueDate, &im.TranDate); err != nil {
			return nil, fmt.Errorf("interest: scan back valued: %w", err)
		}
		impacts = append(impacts, im)
	}
	return impacts, rows.Err()
}
