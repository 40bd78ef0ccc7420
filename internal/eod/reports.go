package eod

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Reporter writes the day-end summary report.
type Reporter struct {
	repo   Repository
	ledger LedgerPort
	logger *slog.Logger
}

// NewReporter constructs the Reporter.
func NewReporter(repo Repository, ledgerPort LedgerPort, logger *slog.Logger) *Reporter {
	return &Reporter{repo: repo, ledger: ledgerPort, logger: logger}
}

// WriteDayEnd builds the posting summary for the date and stores it.
// Amounts are grouped for human readers.
func (r *Reporter) WriteDayEnd(ctx context.Context, date time.Time) error {
	sums, err := r.ledger.PostedTotals(ctx, date)
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	var b strings.Builder
	fmt.Fprintf(&b, "DAY-END SUMMARY %s\n", date.Format("2006-01-02"))
	b.WriteString(strings.Repeat("-", 40) + "\n")
	p.Fprintf(&b, "Posted debits : %v\n", number.Decimal(sums.Dr, number.Scale(2)))
	p.Fprintf(&b, "Posted credits: %v\n", number.Decimal(sums.Cr, number.Scale(2)))
	p.Fprintf(&b, "Difference      : %v\n", number.Decimal(sums.Dr-sums.Cr, number.Scale(2)))

	if err := r.repo.InsertReport(ctx, date, b.String()); err != nil {
		return err
	}
	r.logger.Info("day-end report stored", slog.String("date", date.Format("2006-01-02")))
	return nil
}
