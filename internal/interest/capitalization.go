package interest

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/mmbank/moneymarket/internal/accounts"
	"github.com/mmbank/moneymarket/internal/ledger"
	"github.com/mmbank/moneymarket/internal/sequence"
	"github.com/mmbank/moneymarket/internal/shared"
)

// LedgerPort posts capitalization entries into the main ledger.
type LedgerPort interface {
	PostSystemPair(ctx context.Context, in ledger.SystemPairInput) (ledger.Transaction, error)
}

// Capitalize settles an account's accrued interest into its ledger balance:
// a payable is credited to the customer, a receivable is charged to the loan.
// The accrual book gets a clearing leg so the accrued balance returns to zero.
func (s *Service) Capitalize(ctx context.Context, accountNo, userID string) (CapitalizationResult, error) {
	acct, err := s.accounts.CustomerAccount(ctx, accountNo)
	if err != nil {
		return CapitalizationResult{}, err
	}
	sub, err := s.accounts.SubProduct(ctx, acct.SubProductID)
	if err != nil {
		return CapitalizationResult{}, err
	}
	if !sub.InterestBearing {
		return CapitalizationResult{}, fmt.Errorf("interest: account %s is not interest bearing: %w",
			accountNo, shared.ErrBusinessRule)
	}
	date, err := s.dates.SystemDate(ctx)
	if err != nil {
		return CapitalizationResult{}, err
	}
	if acct.LastInterestPaymentDate != nil && !acct.LastInterestPaymentDate.Before(date) {
		return CapitalizationResult{}, fmt.Errorf("interest: account %s interest already capitalized on %s: %w",
			accountNo, acct.LastInterestPaymentDate.Format("2006-01-02"), shared.ErrDuplicateOperation)
	}

	accrued, err := s.AccruedBalance(ctx, accountNo, date)
	if err != nil {
		return CapitalizationResult{}, err
	}
	amount := shared.Round2(math.Abs(accrued))
	if amount == 0 {
		return CapitalizationResult{}, fmt.Errorf("interest: account %s has no accrued interest: %w",
			accountNo, shared.ErrBusinessRule)
	}

	oldBal, err := s.balances.ClosingBalance(ctx, accountNo, date)
	if err != nil {
		return CapitalizationResult{}, err
	}

	capID, err := s.seq.CapitalizationID(ctx, date)
	if err != nil {
		return CapitalizationResult{}, err
	}

	asset := accounts.ClassOfGL(sub.CumGLNum) == accounts.ClassAsset
	narration := fmt.Sprintf("Interest capitalization %s", accountNo)

	pair := ledger.SystemPairInput{
		TranID:    capID,
		Amount:    amount,
		Ccy:       acct.Currency,
		TranDate:  date,
		ValueDate: date,
		Narration: narration,
	}
	// Clearing leg in the accrual book. It is written Posted: the GL effect
	// already flows through the main ledger pair, only the per-account
	// accrued balance needs unwinding here.
	clearing := AccrualLeg{
		LineID:     sequence.LineID(capID, 3),
		AccrTranID: capID,
		AccountNo:  accountNo,
		TranDate:   date,
		ValueDate:  date,
		Amount:     amount,
		Narration:  narration,
		Status:     LegPosted,
	}
	var newBal float64
	if asset {
		pair.DrAccountNo, pair.DrGLNum = accountNo, sub.CumGLNum
		pair.CrAccountNo, pair.CrGLNum = sub.ReceivableGL, sub.ReceivableGL
		clearing.GLNum, clearing.DrCr = sub.ReceivableGL, "C"
		newBal = shared.Round2(oldBal - amount)
	} else {
		pair.DrAccountNo, pair.DrGLNum = sub.PayableGL, sub.PayableGL
		pair.CrAccountNo, pair.CrGLNum = accountNo, sub.CumGLNum
		clearing.GLNum, clearing.DrCr = sub.PayableGL, "D"
		newBal = shared.Round2(oldBal + amount)
	}

	if _, err := s.ledger.PostSystemPair(ctx, pair); err != nil {
		return CapitalizationResult{}, err
	}
	if err := s.repo.InsertLegs(ctx, []AccrualLeg{clearing}); err != nil {
		return CapitalizationResult{}, err
	}
	if err := s.accounts.SetLastInterestPaymentDate(ctx, accountNo, date); err != nil {
		return CapitalizationResult{}, err
	}

	s.logger.Info("interest capitalized",
		slog.String("account", accountNo),
		slog.String("tran_id", capID),
		slog.Float64("amount", amount))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			User: userID, Action: "interest.capitalize", Entity: "account", EntityID: accountNo,
			Meta: map[string]any{"tranId": capID, "amount": amount},
		})
	}
	return CapitalizationResult{
		AccountNo:  accountNo,
		TranID:     capID,
		Amount:     amount,
		OldBalance: oldBal,
		NewBalance: newBal,
	}, nil
}
