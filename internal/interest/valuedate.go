package interest

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmbank/moneymarket/internal/accounts"
	"github.com/mmbank/moneymarket/internal/shared"
)

// AdjustBackValued books catch-up interest for verified back-valued
// transactions on interest-bearing accounts. Each affected ledger line gets a
// V-id leg pair for the days between value date and posting date; the pointing
// link makes the sweep idempotent.
func (s *Service) AdjustBackValued(ctx context.Context, date time.Time) (int, error) {
	impacts, err := s.repo.ListBackValuedImpacts(ctx, date)
	if err != nil {
		return 0, err
	}

	adjusted := 0
	for _, im := range impacts {
		acct, err := s.accounts.CustomerAccount(ctx, im.AccountNo)
		if err != nil {
			return adjusted, err
		}
		sub, err := s.accounts.SubProduct(ctx, acct.SubProductID)
		if err != nil {
			return adjusted, err
		}
		if !sub.InterestBearing {
			continue
		}
		rate, err := s.accounts.EffectiveRate(ctx, sub, im.ValueDate)
		if err != nil {
			return adjusted, err
		}
		days := int(im.TranDate.Sub(im.ValueDate).Hours() / 24)
		amount := shared.Round2(im.LcyAmt * rate * float64(days) / s.basisDays)
		if rate <= 0 || days <= 0 || amount == 0 {
			continue
		}

		id, err := s.seq.ValueDateAccrualID(ctx, date)
		if err != nil {
			return adjusted, err
		}
		legs := s.adjustmentLegs(id, im, sub, amount, rate, date)
		if err := s.repo.InsertLegs(ctx, legs); err != nil {
			return adjusted, err
		}
		adjusted++
		s.logger.Info("back-value interest adjusted",
			slog.String("tran_id", im.TranID),
			slog.String("account", im.AccountNo),
			slog.Int("days", days),
			slog.Float64("amount", amount))
	}
	return adjusted, nil
}

// adjustmentLegs orients the catch-up pair. On a liability book a back-valued
// credit grows the interest owed and a back-valued debit claws it back; an
// asset book mirrors that for income.
func (s *Service) adjustmentLegs(id string, im BackValuedImpact, sub accounts.SubProduct,
	amount, rate float64, tranDate time.Time) []AccrualLeg {

	asset := accounts.ClassOfGL(sub.CumGLNum) == accounts.ClassAsset
	accrue := (asset && im.DrCr == "D") || (!asset && im.DrCr == "C")

	legs := s.accrualLegs(id, im.AccountNo, sub, amount, rate, tranDate, im.ValueDate, im.LineID)
	if !accrue {
		for i := range legs {
			if legs[i].DrCr == "D" {
				legs[i].DrCr = "C"
			} else {
				legs[i].DrCr = "D"
			}
		}
	}
	for i := range legs {
		legs[i].Narration = "Back-value interest adjustment for " + im.TranID
	}
	return legs
}
