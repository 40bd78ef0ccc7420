// Package sequence issues every business identifier in the system. Ledger and
// interest identifiers are date-scoped serials, account numbers carry a
// product class digit and a bounded serial. Nothing here is random except the
// trailing noise digits on transaction ids, which keep the ids hard to guess.
package sequence

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/mmbank/moneymarket/internal/shared"
)

const dateDigits = "20060102"

// Product class digits keyed by the product cumulative GL number. The ninth
// digit of a customer account number identifies the product family.
var productClassDigits = map[string]byte{
	"110101000": '1', // savings bank
	"110102000": '2', // current account
	"110201000": '3', // term deposit
	"130101000": '4', // interest payable SB
	"140101000": '5', // overdraft interest income
	"210201000": '6', // overdraft
	"240101000": '7', // interest expenditure SB
	"110203000": '8', // term deposit FCY USD
	"210102000": '9', // short term loan
}

// Repository supplies the persisted counters the generator derives from.
type Repository interface {
	// NextTranSerial increments and returns the counter for a transaction id
	// scope, the prefix character plus the date digits. The bump is atomic so
	// concurrent callers never see the same serial.
	NextTranSerial(ctx context.Context, scopeKey string) (int, error)
	// MaxAccrualSeqForDate returns the highest 9-digit serial already issued
	// for accrual ids starting with the given prefix character on the date.
	MaxAccrualSeqForDate(ctx context.Context, prefix string, date time.Time) (int, error)
	// MaxCustomerSerial returns the highest 3-digit serial issued for the
	// customer and product class digit, zero when none.
	MaxCustomerSerial(ctx context.Context, custID int64, classDigit string) (int, error)
	// NextOfficeSerial increments and returns the row-locked serial for a GL.
	NextOfficeSerial(ctx context.Context, glNum string) (int, error)
}

// Generator builds identifiers.
type Generator struct {
	repo Repository
	rand func(n int) int
}

// NewGenerator constructs a Generator.
func NewGenerator(repo Repository) *Generator {
	return &Generator{repo: repo, rand: rand.N[int]}
}

// WithRand overrides the random suffix source, used by tests.
func (g *Generator) WithRand(fn func(n int) int) *Generator {
	g.rand = fn
	return g
}

// TranID issues a ledger transaction id: T + yyyymmdd + 6-digit date serial
// from the counter table + 3-digit random suffix.
func (g *Generator) TranID(ctx context.Context, date time.Time) (string, error) {
	return g.datedTranID(ctx, "T", date)
}

// CapitalizationID issues an interest capitalization transaction id.
func (g *Generator) CapitalizationID(ctx context.Context, date time.Time) (string, error) {
	return g.datedTranID(ctx, "C", date)
}

func (g *Generator) datedTranID(ctx context.Context, prefix string, date time.Time) (string, error) {
	seq, err := g.repo.NextTranSerial(ctx, prefix+date.Format(dateDigits))
	if err != nil {
		return "", fmt.Errorf("sequence: tran serial: %w", err)
	}
	if seq > 999999 {
		return "", fmt.Errorf("sequence: date %s: %w", date.Format(dateDigits), shared.ErrSequenceExhausted)
	}
	return fmt.Sprintf("%s%s%06d%03d", prefix, date.Format(dateDigits), seq, g.rand(1000)), nil
}

// AccrualID issues a daily interest accrual id: S + yyyymmdd + 9-digit serial.
// Entry legs append -1/-2 via LineID.
func (g *Generator) AccrualID(ctx context.Context, date time.Time) (string, error) {
	return g.datedAccrualID(ctx, "S", date)
}

// ValueDateAccrualID issues a back-value interest adjustment id with a V prefix.
func (g *Generator) ValueDateAccrualID(ctx context.Context, date time.Time) (string, error) {
	return g.datedAccrualID(ctx, "V", date)
}

func (g *Generator) datedAccrualID(ctx context.Context, prefix string, date time.Time) (string, error) {
	max, err := g.repo.MaxAccrualSeqForDate(ctx, prefix, date)
	if err != nil {
		return "", fmt.Errorf("sequence: accrual seq: %w", err)
	}
	seq := max + 1
	if seq > 999999999 {
		return "", fmt.Errorf("sequence: date %s: %w", date.Format(dateDigits), shared.ErrSequenceExhausted)
	}
	return fmt.Sprintf("%s%s%09d", prefix, date.Format(dateDigits), seq), nil
}

// LineID appends the 1-based leg number to a base identifier.
func LineID(baseID string, n int) string {
	return fmt.Sprintf("%s-%d", baseID, n)
}

// RevalID issues a revaluation batch id: REVAL-<date>-<8 hex>.
func RevalID(date time.Time) string {
	return fmt.Sprintf("REVAL-%s-%s", date.Format("2006-01-02"), uuid.NewString()[:8])
}

// ReversalID derives the reversal id for a revaluation entry.
func ReversalID(originalID string) string {
	return "REV-" + originalID
}

// CustomerAccountNumber builds a 12-digit customer account number:
// 8-digit customer id, product class digit, 3-digit serial 001..999.
func (g *Generator) CustomerAccountNumber(ctx context.Context, custID int64, productGLNum string) (string, error) {
	if custID <= 0 || custID > 99999999 {
		return "", fmt.Errorf("sequence: customer id %d out of range: %w", custID, shared.ErrValidation)
	}
	classDigit, ok := productClassDigits[productGLNum]
	if !ok {
		return "", fmt.Errorf("sequence: no product class digit for GL %s: %w", productGLNum, shared.ErrValidation)
	}
	max, err := g.repo.MaxCustomerSerial(ctx, custID, string(classDigit))
	if err != nil {
		return "", fmt.Errorf("sequence: customer serial: %w", err)
	}
	serial := max + 1
	if serial > 999 {
		return "", fmt.Errorf("sequence: customer %08d class %c: %w", custID, classDigit, shared.ErrSequenceExhausted)
	}
	return fmt.Sprintf("%08d%c%03d", custID, classDigit, serial), nil
}

// OfficeAccountNumber builds a 12-digit office account number:
// literal 9, the 9-digit GL number, 2-digit serial 00..99.
func (g *Generator) OfficeAccountNumber(ctx context.Context, glNum string) (string, error) {
	if len(glNum) != 9 {
		return "", fmt.Errorf("sequence: GL number %q must be 9 digits: %w", glNum, shared.ErrValidation)
	}
	serial, err := g.repo.NextOfficeSerial(ctx, glNum)
	if err != nil {
		return "", fmt.Errorf("sequence: office serial: %w", err)
	}
	if serial > 99 {
		return "", fmt.Errorf("sequence: GL %s: %w", glNum, shared.ErrSequenceExhausted)
	}
	return fmt.Sprintf("9%s%02d", glNum, serial), nil
}
