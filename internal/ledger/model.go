package ledger

import "time"

// TranStatus enumerates the transaction lifecycle.
type TranStatus string

const (
	StatusEntry    TranStatus = "Entry"
	StatusFuture   TranStatus = "Future"
	StatusPosted   TranStatus = "Posted"
	StatusVerified TranStatus = "Verified"
)

// ValueDateKind classifies a value date against the system date.
type ValueDateKind string

const (
	ValueDateCurrent ValueDateKind = "CURRENT"
	ValueDatePast    ValueDateKind = "PAST"
	ValueDateFuture  ValueDateKind = "FUTURE"
)

// ClassifyValueDate compares a value date with the business date.
func ClassifyValueDate(valueDate, systemDate time.Time) ValueDateKind {
	switch {
	case valueDate.After(systemDate):
		return ValueDateFuture
	case valueDate.Before(systemDate):
		return ValueDatePast
	default:
		return ValueDateCurrent
	}
}

// TranLine is a row in tran_table. Each leg of a transaction is stored as its
// own line under <tranID>-<n>.
type TranLine struct {
	LineID     string
	TranID     string
	AccountNo  string
	GLNum      string
	DrCr       string
	TranDate   time.Time
	ValueDate  time.Time
	TranCcy    string
	FcyAmt     float64
	LcyAmt     float64
	Narration  string
	Status     TranStatus
	PointingID string
	CreatedBy  string
	CreatedAt  time.Time
}

// Transaction groups the lines sharing one tran id.
type Transaction struct {
	TranID    string
	TranDate  time.Time
	ValueDate time.Time
	Status    TranStatus
	Lines     []TranLine
}

// AcctBal is a per-account per-date balance row. The same shape backs both
// the original-currency and local-currency books.
type AcctBal struct {
	AccountNo  string
	TranDate   time.Time
	Currency   string
	OpeningBal float64
	DrSum      float64
	CrSum      float64
	ClosingBal float64
}

// GLBal is a per-GL per-date balance row, always local currency.
type GLBal struct {
	GLNum      string
	TranDate   time.Time
	OpeningBal float64
	DrSum      float64
	CrSum      float64
	ClosingBal float64
}

// GLMovement is a row in gl_movement.
type GLMovement struct {
	LineID       string
	TranID       string
	GLNum        string
	DrCr         string
	TranDate     time.Time
	ValueDate    time.Time
	TranCcy      string
	FcyAmt       float64
	LcyAmt       float64
	BalanceAfter float64
	Narration    string
}

// ValueDateLog tracks future and back-valued transactions awaiting action.
type ValueDateLog struct {
	TranID    string
	ValueDate time.Time
	TranDate  time.Time
	Posted    bool
	LoggedAt  time.Time
}

// TranHistory records lifecycle actions for a transaction.
type TranHistory struct {
	TranID  string
	Action  string
	UserID  string
	Remarks string
	At      time.Time
}

// DrCrSum pairs the day's debit and credit totals.
type DrCrSum struct {
	Dr float64
	Cr float64
}
