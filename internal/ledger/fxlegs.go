package ledger

import (
	"context"

	"github.com/mmbank/moneymarket/internal/fx"
)

// FxLegWriter adapts the ledger to the position engine's leg sink. Position
// legs are machine postings and land directly in Verified status with their
// balance impact applied in the same transaction.
type FxLegWriter struct {
	repo     Repository
	accounts AccountPort
}

// NewFxLegWriter constructs the adapter.
func NewFxLegWriter(repo Repository, acct AccountPort) *FxLegWriter {
	return &FxLegWriter{repo: repo, accounts: acct}
}

// AppendLegs persists position legs as transaction lines.
func (w *FxLegWriter) AppendLegs(ctx context.Context, legs []fx.Leg) error {
	lines := make([]TranLine, 0, len(legs))
	for _, leg := range legs {
		lines = append(lines, TranLine{
			LineID:    leg.LineID,
			TranID:    fx.BaseTranID(leg.LineID),
			AccountNo: leg.AccountNo,
			GLNum:     leg.GLNum,
			DrCr:      leg.DrCr,
			TranDate:  leg.TranDate,
			ValueDate: leg.ValueDate,
			TranCcy:   leg.Ccy,
			FcyAmt:    leg.FcyAmt,
			LcyAmt:    leg.LcyAmt,
			Narration: leg.Narration,
			Status:    StatusVerified,
			CreatedBy: SystemUser,
		})
	}
	return w.repo.WithTxRetry(ctx, func(ctx context.Context, txr TxRepository) error {
		if err := txr.InsertLines(ctx, lines); err != nil {
			return err
		}
		return applyLineBalances(ctx, txr, w.accounts, lines)
	})
}
