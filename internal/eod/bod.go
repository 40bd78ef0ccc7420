package eod

import (
	"context"
	"log/slog"
	"time"
)

// BODResult summarises day-begin processing.
type BODResult struct {
	Date                 time.Time `json:"-"`
	RevaluationsReversed int       `json:"revaluationsReversed"`
	TransactionsReleased int       `json:"transactionsReleased"`
}

// RunBOD performs day-begin processing on the rolled date: yesterday's
// revaluation marks are reversed and Future transactions due today are
// released into the ledger.
func (o *Orchestrator) RunBOD(ctx context.Context) (BODResult, error) {
	date, err := o.dates.SystemDate(ctx)
	if err != nil {
		return BODResult{}, err
	}
	prev := date.AddDate(0, 0, -1)

	reversed, err := o.fx.ReverseRevaluations(ctx, prev, date)
	if err != nil {
		return BODResult{}, err
	}
	released, err := o.ledger.PostDueValueDated(ctx, date)
	if err != nil {
		return BODResult{}, err
	}

	o.logger.Info("day-begin complete",
		slog.String("date", date.Format("2006-01-02")),
		slog.Int("revaluations_reversed", reversed),
		slog.Int("transactions_released", released))
	return BODResult{Date: date, RevaluationsReversed: reversed, TransactionsReleased: released}, nil
}
