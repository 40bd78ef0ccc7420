package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmbank/moneymarket/internal/platform/db"
	"github.com/mmbank/moneymarket/internal/shared"
)

const (
	balanceWorkers  = 8
	balanceAttempts = 3
	// Largest acceptable asset-minus-liability drift after the GL build.
	balanceTolerance = 0.01
)

// AccountLister enumerates the account masters for the balance build.
type AccountLister interface {
	ListAccountNumbers(ctx context.Context) ([]string, error)
}

// Batch runs the day-end ledger builds. Each method is one job of the
// day-end sequence and is safe to re-run for the same date.
type Batch struct {
	svc    *Service
	lister AccountLister
	logger *slog.Logger
}

// NewBatch constructs the Batch around the posting engine.
func NewBatch(svc *Service, lister AccountLister, logger *slog.Logger) *Batch {
	return &Batch{svc: svc, lister: lister, logger: logger}
}

// DropUnverified deletes the date's leftover Entry rows. Validation blocks
// day-end while Entry rows exist, so anything found here is residue from a
// forced run and is discarded before balances are built.
func (b *Batch) DropUnverified(ctx context.Context, date time.Time) (int64, error) {
	deleted, err := b.svc.repo.DeleteEntryStatus(ctx, date)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		b.logger.Warn("unverified rows dropped", slog.Int64("count", deleted))
	}
	return deleted, nil
}

// BuildAccountBalances writes the per-account balance rows for the date,
// fanning out across the masters with a bounded worker pool.
func (b *Batch) BuildAccountBalances(ctx context.Context, date time.Time) (int, error) {
	accountNos, err := b.lister.ListAccountNumbers(ctx)
	if err != nil {
		return 0, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(balanceWorkers)
	for _, accountNo := range accountNos {
		g.Go(func() error {
			return b.buildOneAccountBalance(ctx, accountNo, date)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	b.logger.Info("account balances built",
		slog.Int("accounts", len(accountNos)),
		slog.String("date", date.Format("2006-01-02")))
	return len(accountNos), nil
}

func (b *Batch) buildOneAccountBalance(ctx context.Context, accountNo string, date time.Time) error {
	var lastErr error
	for attempt := 1; attempt <= balanceAttempts; attempt++ {
		lastErr = b.writeAccountBalance(ctx, accountNo, date)
		if lastErr == nil {
			return nil
		}
		if !db.Retryable(lastErr) {
			return lastErr
		}
		// A stale row from a failed earlier run can collide; clear and retry.
		if err := b.svc.repo.DeleteAcctBal(ctx, accountNo, date); err != nil {
			return err
		}
	}
	return fmt.Errorf("ledger: balance for %s after %d attempts: %w (%v)",
		accountNo, balanceAttempts, shared.ErrConcurrencyTimeout, lastErr)
}

func (b *Batch) writeAccountBalance(ctx context.Context, accountNo string, date time.Time) error {
	info, err := b.svc.accounts.Info(ctx, accountNo)
	if err != nil {
		return err
	}
	opening, err := b.svc.OpeningBalance(ctx, accountNo, date)
	if err != nil {
		return err
	}
	_, lcy, err := b.svc.repo.AccountDaySums(ctx, accountNo, date)
	if err != nil {
		return err
	}
	return b.svc.repo.UpsertAcctBal(ctx, AcctBal{
		AccountNo:  accountNo,
		TranDate:   date,
		Currency:   info.Currency,
		OpeningBal: opening,
		DrSum:      shared.Round2(lcy.Dr),
		CrSum:      shared.Round2(lcy.Cr),
		ClosingBal: shared.Round2(opening + lcy.Cr - lcy.Dr),
	})
}

// BuildGLMovements rebuilds the date's GL movements from the posted lines
// with a running balance per GL. Movements written incrementally at post time
// are replaced by the consolidated set, which keeps re-runs stable.
func (b *Batch) BuildGLMovements(ctx context.Context, date time.Time) (int, error) {
	if err := b.svc.repo.DeleteGLMovements(ctx, date); err != nil {
		return 0, err
	}
	lines, err := b.svc.repo.ListPostedLines(ctx, date)
	if err != nil {
		return 0, err
	}

	running := map[string]float64{}
	for _, line := range lines {
		bal, ok := running[line.GLNum]
		if !ok {
			opening, err := b.svc.glOpeningBalance(ctx, line.GLNum, date)
			if err != nil {
				return 0, err
			}
			bal = opening
		}
		bal = shared.Round2(bal + signedDelta(line.GLNum, line.DrCr, line.LcyAmt))
		running[line.GLNum] = bal

		err := b.svc.repo.InsertGLMovement(ctx, GLMovement{
			LineID:       line.LineID,
			TranID:       line.TranID,
			GLNum:        line.GLNum,
			DrCr:         line.DrCr,
			TranDate:     line.TranDate,
			ValueDate:    line.ValueDate,
			TranCcy:      line.TranCcy,
			FcyAmt:       line.FcyAmt,
			LcyAmt:       line.LcyAmt,
			BalanceAfter: bal,
			Narration:    line.Narration,
		})
		if err != nil {
			return 0, err
		}
	}
	b.logger.Info("gl movements built", slog.Int("movements", len(lines)))
	return len(lines), nil
}

// BuildGLBalances writes the per-GL balance rows for the date and proves the
// books: across every GL the asset and liability closings must net to zero.
func (b *Batch) BuildGLBalances(ctx context.Context, date time.Time) (int, error) {
	gls, err := b.svc.repo.ActiveGLNums(ctx, date)
	if err != nil {
		return 0, err
	}
	for _, glNum := range gls {
		opening, err := b.svc.glOpeningBalance(ctx, glNum, date)
		if err != nil {
			return 0, err
		}
		sums, err := b.svc.repo.GLDaySums(ctx, glNum, date)
		if err != nil {
			return 0, err
		}
		closing := shared.Round2(opening + signedDelta(glNum, "D", sums.Dr) + signedDelta(glNum, "C", sums.Cr))
		err = b.svc.repo.UpsertGLBal(ctx, GLBal{
			GLNum:      glNum,
			TranDate:   date,
			OpeningBal: opening,
			DrSum:      shared.Round2(sums.Dr),
			CrSum:      shared.Round2(sums.Cr),
			ClosingBal: closing,
		})
		if err != nil {
			return 0, err
		}
	}

	drift, err := b.svc.repo.SumGLClosing(ctx, date)
	if err != nil {
		return 0, err
	}
	if math.Abs(drift) > balanceTolerance {
		return 0, fmt.Errorf("ledger: books out of balance by %.2f on %s: %w",
			drift, date.Format("2006-01-02"), shared.ErrBusinessRule)
	}
	b.logger.Info("gl balances built", slog.Int("gls", len(gls)))
	return len(gls), nil
}
