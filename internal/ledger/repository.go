package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmbank/moneymarket/internal/platform/db"
	"github.com/mmbank/moneymarket/internal/shared"
)

// TxRepository exposes the statements available inside a posting transaction.
type TxRepository interface {
	InsertLines(ctx context.Context, lines []TranLine) error
	GetForUpdate(ctx context.Context, tranID string) (Transaction, error)
	UpdateStatus(ctx context.Context, tranID string, from, to TranStatus) error
	UpdateTranDate(ctx context.Context, tranID string, date time.Time) error
	SetPointingID(ctx context.Context, tranID, pointingID string) error
	AcctBalOn(ctx context.Context, accountNo string, date time.Time, forUpdate bool) (AcctBal, bool, error)
	LatestAcctBalBefore(ctx context.Context, accountNo string, date time.Time) (AcctBal, bool, error)
	UpsertAcctBal(ctx context.Context, bal AcctBal) error
	GLBalOn(ctx context.Context, glNum string, date time.Time, forUpdate bool) (GLBal, bool, error)
	LatestGLBalBefore(ctx context.Context, glNum string, date time.Time) (GLBal, bool, error)
	UpsertGLBal(ctx context.Context, bal GLBal) error
	InsertGLMovement(ctx context.Context, mv GLMovement) error
	InsertHistory(ctx context.Context, h TranHistory) error
	InsertValueDateLog(ctx context.Context, l ValueDateLog) error
	MarkValueDateLogPosted(ctx context.Context, tranID string) error
}

// Repository provides ledger persistence. WithTxRetry retries transient lock
// conflicts before surfacing ErrConcurrencyTimeout; posting paths that lock
// balance rows go through it.
type Repository interface {
	TxRepository
	WithTx(ctx context.Context, fn func(ctx context.Context, r TxRepository) error) error
	WithTxRetry(ctx context.Context, fn func(ctx context.Context, r TxRepository) error) error
	GetTransaction(ctx context.Context, tranID string) (Transaction, error)
	ListEntryTranIDs(ctx context.Context, date time.Time) ([]string, error)
	DeleteEntryStatus(ctx context.Context, date time.Time) (int64, error)
	PostedDrCrSum(ctx context.Context, date time.Time) (DrCrSum, error)
	ListPostedLines(ctx context.Context, date time.Time) ([]TranLine, error)
	ListFutureDue(ctx context.Context, asOf time.Time) ([]Transaction, error)
	AccountDaySums(ctx context.Context, accountNo string, date time.Time) (fcy DrCrSum, lcy DrCrSum, err error)
	ActiveGLNums(ctx context.Context, date time.Time) ([]string, error)
	GLDaySums(ctx context.Context, glNum string, date time.Time) (DrCrSum, error)
	SumGLClosing(ctx context.Context, date time.Time) (float64, error)
	DeleteAcctBal(ctx context.Context, accountNo string, date time.Time) error
	DeleteGLBal(ctx context.Context, glNum string, date time.Time) error
	DeleteGLMovements(ctx context.Context, date time.Time) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	q    querier
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{q: pool, pool: pool}
}

// WithTx runs fn against a TxRepository bound to a RepeatableRead transaction.
func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, txr TxRepository) error) error {
	if r.pool == nil {
		return errors.New("ledger: repository not transactional")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{q: tx})
	})
}

// WithTxRetry is WithTx with a bounded retry on serialization conflicts and
// lock timeouts.
func (r *repository) WithTxRetry(ctx context.Context, fn func(ctx context.Context, txr TxRepository) error) error {
	if r.pool == nil {
		return errors.New("ledger: repository not transactional")
	}
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{q: tx})
	})
}

const lineColumns = `line_id, tran_id, account_no, gl_num, dr_cr_flag, tran_date, value_date,
	tran_ccy, fcy_amt, lcy_amt, narration, status, pointing_id, created_by, created_at`

func scanLine(row pgx.Row) (TranLine, error) {
	var l TranLine
	var status string
	err := row.Scan(&l.LineID, &l.TranID, &l.AccountNo, &l.GLNum, &l.DrCr, &l.TranDate,
		&l.ValueDate, &l.TranCcy, &l.FcyAmt, &l.LcyAmt, &l.Narration, &status,
		&l.PointingID, &l.CreatedBy, &l.CreatedAt)
	if err != nil {
		return TranLine{}, err
	}
	l.Status = TranStatus(status)
	return l, nil
}

func collectLines(rows pgx.Rows) ([]TranLine, error) {
	defer rows.Close()
	var lines []TranLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func groupTransaction(tranID string, lines []TranLine) (Transaction, error) {
	if len(lines) == 0 {
		return Transaction{}, fmt.Errorf("ledger: transaction %s: %w", tranID, shared.ErrNotFound)
	}
	return Transaction{
		TranID:    tranID,
		TranDate:  lines[0].TranDate,
		ValueDate: lines[0].ValueDate,
		Status:    lines[0].Status,
		Lines:     lines,
	}, nil
}

func (r *repository) InsertLines(ctx context.Context, lines []TranLine) error {
	for _, l := range lines {
		_, err := r.q.Exec(ctx, `
			INSERT INTO tran_table (`+lineColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())`,
			l.LineID, l.TranID, l.AccountNo, l.GLNum, l.DrCr, l.TranDate, l.ValueDate,
			l.TranCcy, l.FcyAmt, l.LcyAmt, l.Narration, string(l.Status), l.PointingID, l.CreatedBy)
		if err != nil {
			if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
				return fmt.Errorf("ledger: line %s: %w", l.LineID, shared.ErrDuplicateOperation)
			}
			return fmt.Errorf("ledger: insert line %s: %w", l.LineID, err)
		}
	}
	return nil
}

func (r *repository) GetTransaction(ctx context.Context, tranID string) (Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+lineColumns+` FROM tran_table WHERE tran_id = $1 ORDER BY line_id`, tranID)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: get transaction: %w", err)
	}
	lines, err := collectLines(rows)
	if err != nil {
		return Transaction{}, err
	}
	return groupTransaction(tranID, lines)
}

func (r *repository) GetForUpdate(ctx context.Context, tranID string) (Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+lineColumns+` FROM tran_table WHERE tran_id = $1 ORDER BY line_id FOR UPDATE`, tranID)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: lock transaction: %w", err)
	}
	lines, err := collectLines(rows)
	if err != nil {
		return Transaction{}, err
	}
	return groupTransaction(tranID, lines)
}

func (r *repository) UpdateStatus(ctx context.Context, tranID string, from, to TranStatus) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE tran_table SET status = $3 WHERE tran_id = $1 AND status = $2`,
		tranID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("ledger: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: transaction %s not in %s status: %w", tranID, from, shared.ErrBusinessRule)
	}
	return nil
}

func (r *repository) UpdateTranDate(ctx context.Context, tranID string, date time.Time) error {
	_, err := r.q.Exec(ctx,
		`UPDATE tran_table SET tran_date = $2 WHERE tran_id = $1`, tranID, date)
	if err != nil {
		return fmt.Errorf("ledger: update tran date: %w", err)
	}
	return nil
}

func (r *repository) SetPointingID(ctx context.Context, tranID, pointingID string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE tran_table SET pointing_id = $2 WHERE tran_id = $1`, tranID, pointingID)
	if err != nil {
		return fmt.Errorf("ledger: set pointing id: %w", err)
	}
	return nil
}

func (r *repository) ListEntryTranIDs(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT tran_id FROM tran_table
		 WHERE tran_date = $1 AND status = 'Entry' ORDER BY tran_id`, date)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entry transactions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ledger: scan tran id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) DeleteEntryStatus(ctx context.Context, date time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM tran_table WHERE tran_date = $1 AND status = 'Entry'`, date)
	if err != nil {
		return 0, fmt.Errorf("ledger: delete entry rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repository) PostedDrCrSum(ctx context.Context, date time.Time) (DrCrSum, error) {
	var sum DrCrSum
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(lcy_amt) FILTER (WHERE dr_cr_flag = 'D'), 0),
		       COALESCE(SUM(lcy_amt) FILTER (WHERE dr_cr_flag = 'C'), 0)
		  FROM tran_table
		 WHERE tran_date = $1 AND status IN ('Posted', 'Verified')`, date).Scan(&sum.Dr, &sum.Cr)
	if err != nil {
		return DrCrSum{}, fmt.Errorf("ledger: posted sums: %w", err)
	}
	return sum, nil
}

func (r *repository) ListPostedLines(ctx context.Context, date time.Time) ([]TranLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+lineColumns+` FROM tran_table
		 WHERE tran_date = $1 AND status IN ('Posted', 'Verified') ORDER BY line_id`, date)
	if err != nil {
		return nil, fmt.Errorf("ledger: list posted lines: %w", err)
	}
	return collectLines(rows)
}

func (r *repository) ListFutureDue(ctx context.Context, asOf time.Time) ([]Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+lineColumns+` FROM tran_table
		 WHERE status = 'Future' AND value_date <= $1 ORDER BY tran_id, line_id`, asOf)
	if err != nil {
		return nil, fmt.Errorf("ledger: list future due: %w", err)
	}
	lines, err := collectLines(rows)
	if err != nil {
		return nil, err
	}

	var txns []Transaction
	byID := map[string]int{}
	for _, line := range lines {
		idx, ok := byID[line.TranID]
		if !ok {
			txns = append(txns, Transaction{
				TranID: line.TranID, TranDate: line.TranDate,
				ValueDate: line.ValueDate, Status: line.Status,
			})
			idx = len(txns) - 1
			byID[line.TranID] = idx
		}
		txns[idx].Lines = append(txns[idx].Lines, line)
	}
	return txns, nil
}

func (r *repository) AccountDaySums(ctx context.Context, accountNo string, date time.Time) (DrCrSum, DrCrSum, error) {
	var fcy, lcy DrCrSum
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(fcy_amt) FILTER (WHERE dr_cr_flag = 'D'), 0),
		       COALESCE(SUM(fcy_amt) FILTER (WHERE dr_cr_flag = 'C'), 0),
		       COALESCE(SUM(lcy_amt) FILTER (WHERE dr_cr_flag = 'D'), 0),
		       COALESCE(SUM(lcy_amt) FILTER (WHERE dr_cr_flag = 'C'), 0)
		  FROM tran_table
		 WHERE account_no = $1 AND tran_date = $2 AND status IN ('Posted', 'Verified')`,
		accountNo, date).Scan(&fcy.Dr, &fcy.Cr, &lcy.Dr, &lcy.Cr)
	if err != nil {
		return DrCrSum{}, DrCrSum{}, fmt.Errorf("ledger: account day sums: %w", err)
	}
	return fcy, lcy, nil
}

func (r *repository) ActiveGLNums(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT gl_num FROM gl_movement WHERE tran_date = $1
		UNION
		SELECT gl_num FROM gl_movement_accrual WHERE tran_date = $1
		UNION
		SELECT p.cum_gl_num FROM cust_acct_master c
		  JOIN sub_prod_master p ON p.sub_product_id = c.sub_product_id
		UNION
		SELECT gl_num FROM of_acct_master
		ORDER BY 1`, date)
	if err != nil {
		return nil, fmt.Errorf("ledger: active GLs: %w", err)
	}
	defer rows.Close()

	var gls []string
	for rows.Next() {
		var gl string
		if err := rows.Scan(&gl); err != nil {
			return nil, fmt.Errorf("ledger: scan gl: %w", err)
		}
		gls = append(gls, gl)
	}
	return gls, rows.Err()
}

func (r *repository) GLDaySums(ctx context.Context, glNum string, date time.Time) (DrCrSum, error) {
	var sum DrCrSum
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amt) FILTER (WHERE flag = 'D'), 0),
		       COALESCE(SUM(amt) FILTER (WHERE flag = 'C'), 0)
		  FROM (
			SELECT lcy_amt AS amt, dr_cr_flag AS flag FROM gl_movement
			 WHERE gl_num = $1 AND tran_date = $2
			UNION ALL
			SELECT lcy_amt, dr_cr_flag FROM gl_movement_accrual
			 WHERE gl_num = $1 AND tran_date = $2
		  ) m`, glNum, date).Scan(&sum.Dr, &sum.Cr)
	if err != nil {
		return DrCrSum{}, fmt.Errorf("ledger: gl day sums: %w", err)
	}
	return sum, nil
}

func (r *repository) SumGLClosing(ctx context.Context, date time.Time) (float64, error) {
	var total float64
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN LEFT(gl_num, 1) = '2' THEN closing_bal ELSE -closing_bal END), 0)
		   FROM gl_balance WHERE tran_date = $1`, date).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ledger: sum gl closing: %w", err)
	}
	return total, nil
}

func (r *repository) AcctBalOn(ctx context.Context, accountNo string, date time.Time, forUpdate bool) (AcctBal, bool, error) {
	query := `
		SELECT account_no, tran_date, account_ccy, opening_bal, dr_sum, cr_sum, closing_bal
		  FROM acct_bal WHERE account_no = $1 AND tran_date = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var b AcctBal
	err := r.q.QueryRow(ctx, query, accountNo, date).Scan(
		&b.AccountNo, &b.TranDate, &b.Currency, &b.OpeningBal, &b.DrSum, &b.CrSum, &b.ClosingBal)
	if errors.Is(err, pgx.ErrNoRows) {
		return AcctBal{}, false, nil
	}
	if err != nil {
		return AcctBal{}, false, fmt.Errorf("ledger: acct bal on: %w", err)
	}
	return b, true, nil
}

func (r *repository) LatestAcctBalBefore(ctx context.Context, accountNo string, date time.Time) (AcctBal, bool, error) {
	var b AcctBal
	err := r.q.QueryRow(ctx, `
		SELECT account_no, tran_date, account_ccy, opening_bal, dr_sum, cr_sum, closing_bal
		  FROM acct_bal WHERE account_no = $1 AND tran_date < $2
		 ORDER BY tran_date DESC LIMIT 1`, accountNo, date).Scan(
		&b.AccountNo, &b.TranDate, &b.Currency, &b.OpeningBal, &b.DrSum, &b.CrSum, &b.ClosingBal)
	if errors.Is(err, pgx.ErrNoRows) {
		return AcctBal{}, false, nil
	}
	if err != nil {
		return AcctBal{}, false, fmt.Errorf("ledger: latest acct bal: %w", err)
	}
	return b, true, nil
}

func (r *repository) UpsertAcctBal(ctx context.Context, bal AcctBal) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO acct_bal (account_no, tran_date, account_ccy, opening_bal, dr_sum, cr_sum, closing_bal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_no, tran_date)
		DO UPDATE SET opening_bal = EXCLUDED.opening_bal, dr_sum = EXCLUDED.dr_sum,
		              cr_sum = EXCLUDED.cr_sum, closing_bal = EXCLUDED.closing_bal`,
		bal.AccountNo, bal.TranDate, bal.Currency, bal.OpeningBal, bal.DrSum, bal.CrSum, bal.ClosingBal)
	if err != nil {
		return fmt.Errorf("ledger: upsert acct bal: %w", err)
	}
	return nil
}

func (r *repository) DeleteAcctBal(ctx context.Context, accountNo string, date time.Time) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM acct_bal WHERE account_no = $1 AND tran_date = $2`, accountNo, date)
	if err != nil {
		return fmt.Errorf("ledger: delete acct bal: %w", err)
	}
	return nil
}

func (r *repository) GLBalOn(ctx context.Context, glNum string, date time.Time, forUpdate bool) (GLBal, bool, error) {
	query := `
		SELECT gl_num, tran_date, opening_bal, dr_sum, cr_sum, closing_bal
		  FROM gl_balance WHERE gl_num = $1 AND tran_date = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var b GLBal
	err := r.q.QueryRow(ctx, query, glNum, date).Scan(
		&b.GLNum, &b.TranDate, &b.OpeningBal, &b.DrSum, &b.CrSum, &b.ClosingBal)
	if errors.Is(err, pgx.ErrNoRows) {
		return GLBal{}, false, nil
	}
	if err != nil {
		return GLBal{}, false, fmt.Errorf("ledger: gl bal on: %w", err)
	}
	return b, true, nil
}

func (r *repository) LatestGLBalBefore(ctx context.Context, glNum string, date time.Time) (GLBal, bool, error) {
	var b GLBal
	err := r.q.QueryRow(ctx, `
		SELECT gl_num, tran_date, opening_bal, dr_sum, cr_sum, closing_bal
		  FROM gl_balance WHERE gl_num = $1 AND tran_date < $2
		 ORDER BY tran_date DESC LIMIT 1`, glNum, date).Scan(
		&b.GLNum, &b.TranDate, &b.OpeningBal, &b.DrSum, &b.CrSum, &b.ClosingBal)
	if errors.Is(err, pgx.ErrNoRows) {
		return GLBal{}, false, nil
	}
	if err != nil {
		return GLBal{}, false, fmt.Errorf("ledger: latest gl bal: %w", err)
	}
	return b, true, nil
}

func (r *repository) UpsertGLBal(ctx context.Context, bal GLBal) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO gl_balance (gl_num, tran_date, opening_bal, dr_sum, cr_sum, closing_bal)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (gl_num, tran_date)
		DO UPDATE SET opening_bal = EXCLUDED.opening_bal, dr_sum = EXCLUDED.dr_sum,
		              cr_sum = EXCLUDED.cr_sum, closing_bal = EXCLUDED.closing_bal`,
		bal.GLNum, bal.TranDate, bal.OpeningBal, bal.DrSum, bal.CrSum, bal.ClosingBal)
	if err != nil {
		return fmt.Errorf("ledger: upsert gl bal: %w", err)
	}
	return nil
}

func (r *repository) DeleteGLBal(ctx context.Context, glNum string, date time.Time) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM gl_balance WHERE gl_num = $1 AND tran_date = $2`, glNum, date)
	if err != nil {
		return fmt.Errorf("ledger: delete gl bal: %w", err)
	}
	return nil
}

func (r *repository) DeleteGLMovements(ctx context.Context, date time.Time) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM gl_movement WHERE tran_date = $1`, date)
	if err != nil {
		return fmt.Errorf("ledger: delete gl movements: %w", err)
	}
	return nil
}

func (r *repository) InsertGLMovement(ctx context.Context, mv GLMovement) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO gl_movement
			(line_id, tran_id, gl_num, dr_cr_flag, tran_date, value_date, tran_ccy,
			 fcy_amt, lcy_amt, balance_after, narration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		mv.LineID, mv.TranID, mv.GLNum, mv.DrCr, mv.TranDate, mv.ValueDate, mv.TranCcy,
		mv.FcyAmt, mv.LcyAmt, mv.BalanceAfter, mv.Narration)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return fmt.Errorf("ledger: movement %s: %w", mv.LineID, shared.ErrDuplicateOperation)
		}
		return fmt.Errorf("ledger: insert gl movement: %w", err)
	}
	return nil
}

func (r *repository) InsertHistory(ctx context.Context, h TranHistory) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO tran_history (tran_id, action, user_id, remarks, at)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, '0001-01-01'::timestamptz), NOW()))`,
		h.TranID, h.Action, h.UserID, h.Remarks, h.At)
	if err != nil {
		return fmt.Errorf("ledger: insert history: %w", err)
	}
	return nil
}

func (r *repository) InsertValueDateLog(ctx context.Context, l ValueDateLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO value_date_log (tran_id, value_date, tran_date, posted, logged_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tran_id) DO NOTHING`,
		l.TranID, l.ValueDate, l.TranDate, l.Posted)
	if err != nil {
		return fmt.Errorf("ledger: insert value date log: %w", err)
	}
	return nil
}

func (r *repository) MarkValueDateLogPosted(ctx context.Context, tranID string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE value_date_log SET posted = TRUE WHERE tran_id = $1`, tranID)
	if err != nil {
		return fmt.Errorf("ledger: mark value date log: %w", err)
	}
	return nil
}
