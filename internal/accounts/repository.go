package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmbank/moneymarket/internal/shared"
)

// Repository provides access to the account and product masters.
type Repository interface {
	GetCustomerAccount(ctx context.Context, accountNo string) (CustomerAccount, error)
	GetOfficeAccount(ctx context.Context, accountNo string) (OfficeAccount, error)
	GetAccountInfo(ctx context.Context, accountNo string) (AccountInfo, error)
	ListAccountNumbers(ctx context.Context) ([]string, error)
	ListInterestBearingAccounts(ctx context.Context) ([]CustomerAccount, error)
	GetSubProduct(ctx context.Context, id int64) (SubProduct, error)
	GLExists(ctx context.Context, glNum string) (bool, error)
	BaseRate(ctx context.Context, interestCode string, asOf time.Time) (float64, error)
	InsertCustomerAccount(ctx context.Context, acct CustomerAccount) error
	InsertOfficeAccount(ctx context.Context, acct OfficeAccount) error
	SetLastInterestPaymentDate(ctx context.Context, accountNo string, date time.Time) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) GetCustomerAccount(ctx context.Context, accountNo string) (CustomerAccount, error) {
	var a CustomerAccount
	row := r.pool.QueryRow(ctx, `
		SELECT account_no, cust_id, sub_product_id, acct_name, account_ccy,
		       loan_limit, last_interest_payment_date, status, opened_on
		  FROM cust_acct_master WHERE account_no = $1`, accountNo)
	err := row.Scan(&a.AccountNo, &a.CustID, &a.SubProductID, &a.Name, &a.Currency,
		&a.LoanLimit, &a.LastInterestPaymentDate, &a.Status, &a.OpenedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return CustomerAccount{}, fmt.Errorf("accounts: %s: %w", accountNo, shared.ErrNotFound)
	}
	if err != nil {
		return CustomerAccount{}, fmt.Errorf("accounts: get customer account: %w", err)
	}
	return a, nil
}

func (r *pgRepository) GetOfficeAccount(ctx context.Context, accountNo string) (OfficeAccount, error) {
	var a OfficeAccount
	row := r.pool.QueryRow(ctx, `
		SELECT account_no, gl_num, acct_name, account_ccy, opened_on
		  FROM of_acct_master WHERE account_no = $1`, accountNo)
	err := row.Scan(&a.AccountNo, &a.GLNum, &a.Name, &a.Currency, &a.OpenedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return OfficeAccount{}, fmt.Errorf("accounts: %s: %w", accountNo, shared.ErrNotFound)
	}
	if err != nil {
		return OfficeAccount{}, fmt.Errorf("accounts: get office account: %w", err)
	}
	return a, nil
}

func (r *pgRepository) GetAccountInfo(ctx context.Context, accountNo string) (AccountInfo, error) {
	// Customer accounts first, office accounts as fallback.
	var info AccountInfo
	row := r.pool.QueryRow(ctx, `
		SELECT c.account_no, c.account_ccy, p.cum_gl_num, c.loan_limit
		  FROM cust_acct_master c
		  JOIN sub_prod_master p ON p.sub_product_id = c.sub_product_id
		 WHERE c.account_no = $1`, accountNo)
	err := row.Scan(&info.AccountNo, &info.Currency, &info.GLNum, &info.LoanLimit)
	if err == nil {
		info.Class = ClassOfGL(info.GLNum)
		return info, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return AccountInfo{}, fmt.Errorf("accounts: account info: %w", err)
	}

	office, err := r.GetOfficeAccount(ctx, accountNo)
	if err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{
		AccountNo: office.AccountNo,
		Currency:  office.Currency,
		GLNum:     office.GLNum,
		Class:     ClassOfGL(office.GLNum),
		Office:    true,
	}, nil
}

func (r *pgRepository) ListAccountNumbers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account_no FROM cust_acct_master
		UNION ALL
		SELECT account_no FROM of_acct_master
		ORDER BY account_no`)
	if err != nil {
		return nil, fmt.Errorf("accounts: list account numbers: %w", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("accounts: scan account number: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

func (r *pgRepository) ListInterestBearingAccounts(ctx context.Context) ([]CustomerAccount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.account_no, c.cust_id, c.sub_product_id, c.acct_name, c.account_ccy,
		       c.loan_limit, c.last_interest_payment_date, c.status, c.opened_on
		  FROM cust_acct_master c
		  JOIN sub_prod_master p ON p.sub_product_id = c.sub_product_id
		 WHERE c.status = 'Active' AND p.interest_bearing`)
	if err != nil {
		return nil, fmt.Errorf("accounts: list interest bearing: %w", err)
	}
	defer rows.Close()

	var accts []CustomerAccount
	for rows.Next() {
		var a CustomerAccount
		if err := rows.Scan(&a.AccountNo, &a.CustID, &a.SubProductID, &a.Name, &a.Currency,
			&a.LoanLimit, &a.LastInterestPaymentDate, &a.Status, &a.OpenedOn); err != nil {
			return nil, fmt.Errorf("accounts: scan account: %w", err)
		}
		accts = append(accts, a)
	}
	return accts, rows.Err()
}

func (r *pgRepository) GetSubProduct(ctx context.Context, id int64) (SubProduct, error) {
	var p SubProduct
	row := r.pool.QueryRow(ctx, `
		SELECT sub_product_id, sub_product_code, sub_product_name, cum_gl_num,
		       interest_bearing, interest_code, interest_increment, fixed_rate,
		       receivable_gl, income_gl, expenditure_gl, payable_gl
		  FROM sub_prod_master WHERE sub_product_id = $1`, id)
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.CumGLNum,
		&p.InterestBearing, &p.InterestCode, &p.InterestIncrement, &p.FixedRate,
		&p.ReceivableGL, &p.IncomeGL, &p.ExpenditureGL, &p.PayableGL)
	if errors.Is(err, pgx.ErrNoRows) {
		return SubProduct{}, fmt.Errorf("accounts: sub-product %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return SubProduct{}, fmt.Errorf("accounts: get sub-product: %w", err)
	}
	return p, nil
}

func (r *pgRepository) GLExists(ctx context.Context, glNum string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gl_setup WHERE gl_num = $1)`, glNum).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("accounts: gl exists: %w", err)
	}
	return exists, nil
}

func (r *pgRepository) BaseRate(ctx context.Context, interestCode string, asOf time.Time) (float64, error) {
	var rate float64
	err := r.pool.QueryRow(ctx, `
		SELECT rate FROM interest_rate_master
		 WHERE interest_code = $1 AND effective_date <= $2
		 ORDER BY effective_date DESC LIMIT 1`, interestCode, asOf).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("accounts: base rate: %w", err)
	}
	return rate, nil
}

func (r *pgRepository) InsertCustomerAccount(ctx context.Context, acct CustomerAccount) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cust_acct_master
			(account_no, cust_id, sub_product_id, acct_name, account_ccy, loan_limit, status, opened_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		acct.AccountNo, acct.CustID, acct.SubProductID, acct.Name, acct.Currency,
		acct.LoanLimit, acct.Status, acct.OpenedOn)
	if err != nil {
		return fmt.Errorf("accounts: insert customer account: %w", err)
	}
	return nil
}

func (r *pgRepository) InsertOfficeAccount(ctx context.Context, acct OfficeAccount) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO of_acct_master (account_no, gl_num, acct_name, account_ccy, opened_on)
		VALUES ($1, $2, $3, $4, $5)`,
		acct.AccountNo, acct.GLNum, acct.Name, acct.Currency, acct.OpenedOn)
	if err != nil {
		return fmt.Errorf("accounts: insert office account: %w", err)
	}
	return nil
}

func (r *pgRepository) SetLastInterestPaymentDate(ctx context.Context, accountNo string, date time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE cust_acct_master SET last_interest_payment_date = $2 WHERE account_no = $1`,
		accountNo, date)
	if err != nil {
		return fmt.Errorf("accounts: set last interest payment date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("accounts: %s: %w", accountNo, shared.ErrNotFound)
	}
	return nil
}
