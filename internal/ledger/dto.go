package ledger

import (
	"fmt"
	"time"

	"github.com/mmbank/moneymarket/internal/shared"
)

// LineInput describes one leg of a posting request.
type LineInput struct {
	AccountNo string
	DrCr      string
	TranCcy   string
	FcyAmt    float64
	LcyAmt    float64
	Narration string
}

// CreateInput groups the fields required to capture a transaction.
type CreateInput struct {
	ValueDate time.Time
	Narration string
	UserID    string
	Lines     []LineInput
}

// Validate ensures the input meets structural posting criteria. Account and
// balance checks need the masters and happen in the service.
func (in CreateInput) Validate() error {
	if len(in.Lines) < 2 {
		return fmt.Errorf("ledger: at least two lines required: %w", shared.ErrValidation)
	}
	if in.UserID == "" {
		return fmt.Errorf("ledger: user required: %w", shared.ErrValidation)
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountNo == "" {
			return fmt.Errorf("ledger: line %d missing account: %w", idx+1, shared.ErrValidation)
		}
		switch line.DrCr {
		case "D", "C":
		default:
			return fmt.Errorf("ledger: line %d flag must be D or C: %w", idx+1, shared.ErrValidation)
		}
		if line.LcyAmt <= 0 {
			return fmt.Errorf("ledger: line %d amount must be positive: %w", idx+1, shared.ErrValidation)
		}
		if line.FcyAmt < 0 {
			return fmt.Errorf("ledger: line %d FCY amount negative: %w", idx+1, shared.ErrValidation)
		}
		if line.DrCr == "D" {
			debit += line.LcyAmt
		} else {
			credit += line.LcyAmt
		}
	}
	if !shared.AmountsEqual(debit, credit) {
		return fmt.Errorf("ledger: debits %.2f and credits %.2f differ: %w", debit, credit, shared.ErrBusinessRule)
	}
	return nil
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	TranID string
	Reason string
	UserID string
}
