package interest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mmbank/moneymarket/internal/accounts"
	"github.com/mmbank/moneymarket/internal/sequence"
	"github.com/mmbank/moneymarket/internal/shared"
)

// AccountPort supplies the masters the engine accrues against.
type AccountPort interface {
	ListInterestBearing(ctx context.Context) ([]accounts.CustomerAccount, error)
	CustomerAccount(ctx context.Context, accountNo string) (accounts.CustomerAccount, error)
	SubProduct(ctx context.Context, id int64) (accounts.SubProduct, error)
	EffectiveRate(ctx context.Context, sub accounts.SubProduct, asOf time.Time) (float64, error)
	SetLastInterestPaymentDate(ctx context.Context, accountNo string, date time.Time) error
}

// BalancePort reads ledger closing balances.
type BalancePort interface {
	ClosingBalance(ctx context.Context, accountNo string, date time.Time) (float64, error)
}

// DatePort supplies the business date.
type DatePort interface {
	SystemDate(ctx context.Context) (time.Time, error)
}

// AuditPort records capitalizations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the interest accrual engine. Accrued amounts are credit-positive:
// a liability account builds a positive accrued balance, an asset account a
// negative one.
type Service struct {
	repo      Repository
	accounts  AccountPort
	balances  BalancePort
	dates     DatePort
	ledger    LedgerPort
	seq       *sequence.Generator
	audit     AuditPort
	logger    *slog.Logger
	basisDays float64
}

// NewService constructs the Service. basisDays is the annualisation divisor,
// 36500 for a rate quoted in percent over a 365 day year.
func NewService(repo Repository, acct AccountPort, balances BalancePort, dates DatePort,
	ledgerPort LedgerPort, seq *sequence.Generator, audit AuditPort, logger *slog.Logger, basisDays float64) *Service {
	return &Service{
		repo: repo, accounts: acct, balances: balances, dates: dates,
		ledger: ledgerPort, seq: seq, audit: audit, logger: logger, basisDays: basisDays,
	}
}

// AccrueDaily books one day of interest for every interest-bearing account.
// Runs after the day's account balances are built; re-running for the same
// date skips accounts already accrued.
func (s *Service) AccrueDaily(ctx context.Context, date time.Time) (AccrualRun, error) {
	accts, err := s.accounts.ListInterestBearing(ctx)
	if err != nil {
		return AccrualRun{}, err
	}

	run := AccrualRun{Date: date}
	for _, acct := range accts {
		done, err := s.repo.HasAccrualForDate(ctx, acct.AccountNo, "S", date)
		if err != nil {
			return run, err
		}
		if done {
			run.Skipped++
			continue
		}

		sub, err := s.accounts.SubProduct(ctx, acct.SubProductID)
		if err != nil {
			return run, err
		}
		closing, err := s.balances.ClosingBalance(ctx, acct.AccountNo, date)
		if err != nil {
			return run, err
		}
		rate, err := s.accounts.EffectiveRate(ctx, sub, date)
		if err != nil {
			return run, err
		}
		amount := shared.Round2(math.Abs(closing) * rate / s.basisDays)
		if closing == 0 || rate <= 0 || amount == 0 {
			run.Skipped++
			continue
		}

		id, err := s.seq.AccrualID(ctx, date)
		if err != nil {
			return run, err
		}
		legs := s.accrualLegs(id, acct.AccountNo, sub, amount, rate, date, date, "")
		if err := s.repo.InsertLegs(ctx, legs); err != nil {
			return run, err
		}
		run.Accounts++
		run.Total = shared.Round2(run.Total + amount)
	}

	s.logger.Info("daily accrual complete",
		slog.String("date", date.Format("2006-01-02")),
		slog.Int("accounts", run.Accounts),
		slog.Int("skipped", run.Skipped),
		slog.Float64("total", run.Total))
	return run, nil
}

// accrualLegs builds the Pending leg pair for one accrual. The balance-sheet
// leg carries the customer account so the per-account accrued balance can be
// read back; the profit-and-loss leg lives on its GL.
func (s *Service) accrualLegs(id, accountNo string, sub accounts.SubProduct,
	amount, rate float64, tranDate, valueDate time.Time, pointingID string) []AccrualLeg {
	narration := fmt.Sprintf("Interest accrual %s @ %.4f", accountNo, rate)
	common := AccrualLeg{
		AccrTranID: id, Amount: amount, Rate: rate,
		TranDate: tranDate, ValueDate: valueDate,
		Narration: narration, Status: LegPending, PointingID: pointingID,
	}

	pl, bs := common, common
	if accounts.ClassOfGL(sub.CumGLNum) == accounts.ClassAsset {
		// Bank earns: receivable builds against the account, income on the GL.
		bs.LineID, bs.AccountNo, bs.GLNum, bs.DrCr = sequence.LineID(id, 1), accountNo, sub.ReceivableGL, "D"
		pl.LineID, pl.AccountNo, pl.GLNum, pl.DrCr = sequence.LineID(id, 2), sub.IncomeGL, sub.IncomeGL, "C"
		return []AccrualLeg{bs, pl}
	}
	// Bank owes: expenditure on the GL, payable builds against the account.
	pl.LineID, pl.AccountNo, pl.GLNum, pl.DrCr = sequence.LineID(id, 1), sub.ExpenditureGL, sub.ExpenditureGL, "D"
	bs.LineID, bs.AccountNo, bs.GLNum, bs.DrCr = sequence.LineID(id, 2), accountNo, sub.PayableGL, "C"
	return []AccrualLeg{pl, bs}
}

// PostPendingMovements sweeps the date's Pending legs into the accrual GL
// book and marks them Posted. Safe to re-run after a partial failure.
func (s *Service) PostPendingMovements(ctx context.Context, date time.Time) (int, error) {
	legs, err := s.repo.ListPendingLegs(ctx, date)
	if err != nil {
		return 0, err
	}
	posted := 0
	for _, leg := range legs {
		err := s.repo.InsertMovement(ctx, AccrualMovement{
			LineID:    leg.LineID,
			TranID:    leg.AccrTranID,
			GLNum:     leg.GLNum,
			DrCr:      leg.DrCr,
			Amount:    leg.Amount,
			TranDate:  leg.TranDate,
			Narration: leg.Narration,
		})
		if err != nil && !errors.Is(err, shared.ErrDuplicateOperation) {
			return posted, err
		}
		if err := s.repo.MarkLegPosted(ctx, leg.LineID); err != nil {
			return posted, err
		}
		posted++
	}
	s.logger.Info("accrual movements posted", slog.Int("legs", posted))
	return posted, nil
}

// BuildAccrualBalances writes the date's accrued-interest balance row per
// interest-bearing account.
func (s *Service) BuildAccrualBalances(ctx context.Context, date time.Time) (int, error) {
	accts, err := s.accounts.ListInterestBearing(ctx)
	if err != nil {
		return 0, err
	}
	for _, acct := range accts {
		opening, err := s.openingAccrualBalance(ctx, acct.AccountNo, date)
		if err != nil {
			return 0, err
		}
		sums, err := s.repo.AccrualDaySums(ctx, acct.AccountNo, date)
		if err != nil {
			return 0, err
		}
		closing := shared.Round2(opening + sums.Accrual.Net() + sums.BackValued.Net() + sums.Capital.Net())
		err = s.repo.UpsertAccrualBalance(ctx, AccrualBalance{
			AccountNo:       acct.AccountNo,
			TranDate:        date,
			OpeningBal:      opening,
			DrSum:           shared.Round2(sums.Accrual.Dr + sums.BackValued.Dr + sums.Capital.Dr),
			CrSum:           shared.Round2(sums.Accrual.Cr + sums.BackValued.Cr + sums.Capital.Cr),
			ValueDateImpact: shared.Round2(sums.BackValued.Net()),
			InterestAmount:  shared.Round2(sums.Accrual.Net()),
			ClosingBal:      closing,
		})
		if err != nil {
			return 0, err
		}
	}
	s.logger.Info("accrual balances built", slog.Int("accounts", len(accts)))
	return len(accts), nil
}

func (s *Service) openingAccrualBalance(ctx context.Context, accountNo string, date time.Time) (float64, error) {
	prev := date.AddDate(0, 0, -1)
	if bal, ok, err := s.repo.AccrualBalanceOn(ctx, accountNo, prev); err != nil {
		return 0, err
	} else if ok {
		return bal.ClosingBal, nil
	}
	if bal, ok, err := s.repo.LatestAccrualBalanceBefore(ctx, accountNo, date); err != nil {
		return 0, err
	} else if ok {
		return bal.ClosingBal, nil
	}
	return 0, nil
}

// AccruedBalance is the account's accrued interest as of the date: the date's
// row when built, otherwise the latest one before it.
func (s *Service) AccruedBalance(ctx context.Context, accountNo string, date time.Time) (float64, error) {
	if bal, ok, err := s.repo.AccrualBalanceOn(ctx, accountNo, date); err != nil {
		return 0, err
	} else if ok {
		return bal.ClosingBal, nil
	}
	if bal, ok, err := s.repo.LatestAccrualBalanceBefore(ctx, accountNo, date); err != nil {
		return 0, err
	} else if ok {
		return bal.ClosingBal, nil
	}
	return 0, nil
}
