package fx

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

// Repository provides access to fx_rate_master, mc_wae_master,
// settlement_gain_loss and reval_tran.
type Repository interface {
	LatestRate(ctx context.Context, ccyPair string, asOf time.Time) (Rate, error)
	InsertRate(ctx context.Context, rate Rate) error
	GetWAE(ctx context.Context, ccyPair string) (WAEPosition, error)
	UpsertWAE(ctx context.Context, pos WAEPosition) error
	ListWAEPositions(ctx context.Context) ([]WAEPosition, error)
	InsertSettlement(ctx context.Context, s Settlement) error
	InsertRevalEntry(ctx context.Context, e RevalEntry) error
	ListPostedRevals(ctx context.Context, date time.Time) ([]RevalEntry, error)
	MarkRevalReversed(ctx context.Context, tranID, reversalTranID string, on time.Time) error
	PreviousRevalMtm(ctx context.Context, glNum string, before time.Time) (float64, bool, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) LatestRate(ctx context.Context, ccyPair string, asOf time.Time) (Rate, error) {
	var rate Rate
	row := r.pool.QueryRow(ctx, `
		SELECT ccy_pair, rate_date, buying_rate, mid_rate, selling_rate, source
		  FROM fx_rate_master
		 WHERE ccy_pair = $1 AND rate_date <= $2
		 ORDER BY rate_date DESC LIMIT 1`, ccyPair, asOf)
	err := row.Scan(&rate.CcyPair, &rate.RateDate, &rate.BuyingRate, &rate.MidRate, &rate.SellingRate, &rate.Source)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, fmt.Errorf("fx: no rate for %s on or before %s: %w",
			ccyPair, asOf.Format("2006-01-02"), shared.ErrNotFound)
	}
	if err != nil {
		return Rate{}, fmt.Errorf("fx: latest rate: %w", err)
	}
	return rate, nil
}

func (r *pgRepository) InsertRate(ctx context.Context, rate Rate) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fx_rate_master (ccy_pair, rate_date, buying_rate, mid_rate, selling_rate, source)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rate.CcyPair, rate.RateDate, rate.BuyingRate, rate.MidRate, rate.SellingRate, rate.Source)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return fmt.Errorf("fx: rate %s %s: %w", rate.CcyPair, rate.RateDate.Format("2006-01-02"), shared.ErrDuplicateOperation)
		}
		return fmt.Errorf("fx: insert rate: %w", err)
	}
	return nil
}

func (r *pgRepository) GetWAE(ctx context.Context, ccyPair string) (WAEPosition, error) {
	var pos WAEPosition
	row := r.pool.QueryRow(ctx, `
		SELECT ccy_pair, fcy_balance, lcy_balance, wae_rate, updated_at
		  FROM mc_wae_master WHERE ccy_pair = $1`, ccyPair)
	err := row.Scan(&pos.CcyPair, &pos.FcyBalance, &pos.LcyBalance, &pos.WAERate, &pos.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WAEPosition{}, fmt.Errorf("fx: wae %s: %w", ccyPair, shared.ErrNotFound)
	}
	if err != nil {
		return WAEPosition{}, fmt.Errorf("fx: get wae: %w", err)
	}
	return pos, nil
}

func (r *pgRepository) UpsertWAE(ctx context.Context, pos WAEPosition) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mc_wae_master (ccy_pair, fcy_balance, lcy_balance, wae_rate, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (ccy_pair)
		DO UPDATE SET fcy_balance = EXCLUDED.fcy_balance, lcy_balance = EXCLUDED.lcy_balance,
		              wae_rate = EXCLUDED.wae_rate, updated_at = NOW()`,
		pos.CcyPair, pos.FcyBalance, pos.LcyBalance, pos.WAERate)
	if err != nil {
		return fmt.Errorf("fx: upsert wae: %w", err)
	}
	return nil
}

func (r *pgRepository) ListWAEPositions(ctx context.Context) ([]WAEPosition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ccy_pair, fcy_balance, lcy_balance, wae_rate, updated_at
		  FROM mc_wae_master ORDER BY ccy_pair`)
	if err != nil {
		return nil, fmt.Errorf("fx: list wae: %w", err)
	}
	defer rows.Close()

	var positions []WAEPosition
	for rows.Next() {
		var pos WAEPosition
		if err := rows.Scan(&pos.CcyPair, &pos.FcyBalance, &pos.LcyBalance, &pos.WAERate, &pos.UpdatedAt); err != nil {
			return nil, fmt.Errorf("fx: scan wae: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (r *pgRepository) InsertSettlement(ctx context.Context, s Settlement) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settlement_gain_loss
			(id, base_tran_id, ccy_pair, fcy_amount, deal_rate, wae_rate, amount, type, status, narration, tran_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.BaseTranID, s.CcyPair, s.FcyAmount, s.DealRate, s.WAERate, s.Amount,
		string(s.Type), s.Status, s.Narration, s.TranDate)
	if err != nil {
		return fmt.Errorf("fx: insert settlement: %w", err)
	}
	return nil
}

func (r *pgRepository) InsertRevalEntry(ctx context.Context, e RevalEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reval_tran
			(tran_id, reval_date, ccy_pair, gl_num, booked_lcy, mtm_lcy, difference,
			 dr_account, cr_account, status, reversal_tran_id, reversed_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)`,
		e.TranID, e.RevalDate, e.CcyPair, e.GLNum, e.BookedLcy, e.MtmLcy, e.Difference,
		e.DrAccount, e.CrAccount, string(e.Status), e.ReversalTranID, e.ReversedOn)
	if err != nil {
		return fmt.Errorf("fx: insert reval entry: %w", err)
	}
	return nil
}

func (r *pgRepository) ListPostedRevals(ctx context.Context, date time.Time) ([]RevalEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tran_id, reval_date, ccy_pair, gl_num, booked_lcy, mtm_lcy, difference,
		       dr_account, cr_account, status
		  FROM reval_tran
		 WHERE reval_date = $1 AND status = 'POSTED'
		 ORDER BY tran_id`, date)
	if err != nil {
		return nil, fmt.Errorf("fx: list posted revals: %w", err)
	}
	defer rows.Close()

	var entries []RevalEntry
	for rows.Next() {
		var e RevalEntry
		var status string
		if err := rows.Scan(&e.TranID, &e.RevalDate, &e.CcyPair, &e.GLNum, &e.BookedLcy,
			&e.MtmLcy, &e.Difference, &e.DrAccount, &e.CrAccount, &status); err != nil {
			return nil, fmt.Errorf("fx: scan reval entry: %w", err)
		}
		e.Status = RevalStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *pgRepository) MarkRevalReversed(ctx context.Context, tranID, reversalTranID string, on time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reval_tran
		   SET status = 'REVERSED', reversal_tran_id = $2, reversed_on = $3
		 WHERE tran_id = $1 AND status = 'POSTED'`, tranID, reversalTranID, on)
	if err != nil {
		return fmt.Errorf("fx: mark reval reversed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fx: reval %s: %w", tranID, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) PreviousRevalMtm(ctx context.Context, glNum string, before time.Time) (float64, bool, error) {
	var mtm float64
	err := r.pool.QueryRow(ctx, `
		SELECT mtm_lcy FROM reval_tran
		 WHERE gl_num = $1 AND reval_date < $2 AND status = 'POSTED'
		 ORDER BY reval_date DESC, tran_id DESC LIMIT 1`, glNum, before).Scan(&mtm)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("fx: previous reval mtm: %w", err)
	}
	return mtm, true, nil
}
