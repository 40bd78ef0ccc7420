// Package interest implements the accrual engine: daily accrual of interest
// into a shadow book, back-value adjustments, posting of accrual movements,
// accrual balance builds and capitalization into the main ledger.
package interest

import "time"

// LegStatus is the accrual leg lifecycle: legs are written Pending and move
// to Posted when the movement build sweeps them into the accrual GL book.
type LegStatus string

const (
	LegPending LegStatus = "Pending"
	LegPosted  LegStatus = "Posted"
)

// AccrualLeg is a row in intt_accr_tran. Balance-sheet legs carry the customer
// account number so the per-account accrued balance can be derived; profit and
// loss legs carry the GL number as account.
type AccrualLeg struct {
	LineID     string
	AccrTranID string
	AccountNo  string
	GLNum      string
	DrCr       string
	Amount     float64
	Rate       float64
	TranDate   time.Time
	ValueDate  time.Time
	Narration  string
	Status     LegStatus
	PointingID string
	CreatedAt  time.Time
}

// AccrualMovement is a row in gl_movement_accrual.
type AccrualMovement struct {
	LineID    string
	TranID    string
	GLNum     string
	DrCr      string
	Amount    float64
	TranDate  time.Time
	Narration string
}

// AccrualBalance is a row in acct_bal_accrual: the accrued interest position
// of one account on one date.
type AccrualBalance struct {
	AccountNo       string
	TranDate        time.Time
	OpeningBal      float64
	DrSum           float64
	CrSum           float64
	ValueDateImpact float64
	InterestAmount  float64
	ClosingBal      float64
}

// BackValuedImpact is one verified ledger line of a back-valued transaction
// touching an interest-bearing account that has not been adjusted yet.
type BackValuedImpact struct {
	TranID    string
	LineID    string
	AccountNo string
	DrCr      string
	LcyAmt    float64
	ValueDate time.Time
	TranDate  time.Time
}

// AccrualRun summarises one daily accrual sweep.
type AccrualRun struct {
	Date     time.Time
	Accounts int
	Skipped  int
	Total    float64
}

// CapitalizationResult reports a capitalization to the caller.
type CapitalizationResult struct {
	AccountNo  string
	TranID     string
	Amount     float64
	OldBalance float64
	NewBalance float64
}
