package ledger

import (
	"context"
	"time"

	"github.com/mmbank/moneymarket/internal/accounts"
	"github.com/mmbank/moneymarket/internal/shared"
)

// OpeningBalance resolves the opening balance for an account on a date:
// the previous day's closing, else the latest closing before the date, else
// zero for a fresh account.
func (s *Service) OpeningBalance(ctx context.Context, accountNo string, date time.Time) (float64, error) {
	prev := date.AddDate(0, 0, -1)
	if bal, ok, err := s.repo.AcctBalOn(ctx, accountNo, prev, false); err != nil {
		return 0, err
	} else if ok {
		return bal.ClosingBal, nil
	}
	if bal, ok, err := s.repo.LatestAcctBalBefore(ctx, accountNo, date); err != nil {
		return 0, err
	} else if ok {
		return bal.ClosingBal, nil
	}
	return 0, nil
}

// ClosingBalance computes opening plus the date's posted credits minus
// debits, in local currency.
func (s *Service) ClosingBalance(ctx context.Context, accountNo string, date time.Time) (float64, error) {
	opening, err := s.OpeningBalance(ctx, accountNo, date)
	if err != nil {
		return 0, err
	}
	_, lcy, err := s.repo.AccountDaySums(ctx, accountNo, date)
	if err != nil {
		return 0, err
	}
	return shared.Round2(opening + lcy.Cr - lcy.Dr), nil
}

// AvailableBalance is the headroom a debit may consume: the running closing
// balance, plus the sanctioned loan limit on asset-class accounts.
func (s *Service) AvailableBalance(ctx context.Context, accountNo string, date time.Time) (float64, error) {
	info, err := s.accounts.Info(ctx, accountNo)
	if err != nil {
		return 0, err
	}
	closing, err := s.ClosingBalance(ctx, accountNo, date)
	if err != nil {
		return 0, err
	}
	if info.Class == accounts.ClassAsset {
		return shared.Round2(closing + info.LoanLimit), nil
	}
	return closing, nil
}

// glOpeningBalance resolves the opening balance for a GL using the same
// fallback chain as accounts.
func (s *Service) glOpeningBalance(ctx context.Context, glNum string, date time.Time) (float64, error) {
	prev := date.AddDate(0, 0, -1)
	if bal, ok, err := s.repo.GLBalOn(ctx, glNum, prev, false); err != nil {
		return 0, err
	} else if ok {
		return bal.ClosingBal, nil
	}
	if bal, ok, err := s.repo.LatestGLBalBefore(ctx, glNum, date); err != nil {
		return 0, err
	} else if ok {
		return bal.ClosingBal, nil
	}
	return 0, nil
}

// signedDelta orients a movement amount by book side: debits grow asset books
// and shrink liability books.
func signedDelta(glNum, drCr string, amt float64) float64 {
	asset := accounts.ClassOfGL(glNum) == accounts.ClassAsset
	if (asset && drCr == "D") || (!asset && drCr == "C") {
		return amt
	}
	return -amt
}
