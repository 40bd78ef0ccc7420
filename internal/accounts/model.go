package accounts

import "time"

// AccountClass splits the chart by the leading GL digit. Liability and income
// books live under 1, asset and expense books under 2, position books under 9.
type AccountClass string

const (
	ClassLiability AccountClass = "LIABILITY"
	ClassAsset     AccountClass = "ASSET"
	ClassPosition  AccountClass = "POSITION"
)

// ClassOfGL derives the account class from a GL number.
func ClassOfGL(glNum string) AccountClass {
	if len(glNum) > 0 && glNum[0] == '2' {
		return ClassAsset
	}
	if len(glNum) > 0 && glNum[0] == '9' {
		return ClassPosition
	}
	return ClassLiability
}

// CustomerAccount is a row in cust_acct_master.
type CustomerAccount struct {
	AccountNo               string
	CustID                  int64
	SubProductID            int64
	Name                    string
	Currency                string
	LoanLimit               float64
	LastInterestPaymentDate *time.Time
	Status                  string
	OpenedOn                time.Time
}

// OfficeAccount is a row in of_acct_master.
type OfficeAccount struct {
	AccountNo string
	GLNum     string
	Name      string
	Currency  string
	OpenedOn  time.Time
}

// SubProduct carries the GL bindings the engines read.
type SubProduct struct {
	ID                int64
	Code              string
	Name              string
	CumGLNum          string
	InterestBearing   bool
	InterestCode      string
	InterestIncrement float64
	FixedRate         float64
	// GL references for interest accrual legs.
	ReceivableGL  string
	IncomeGL      string
	ExpenditureGL string
	PayableGL     string
}

// DealGL reports whether the cumulative GL belongs to the deal families
// (1102 liability deals, 2102 asset deals) which accrue at the fixed rate.
func (p SubProduct) DealGL() bool {
	if len(p.CumGLNum) < 4 {
		return false
	}
	prefix := p.CumGLNum[:4]
	return prefix == "1102" || prefix == "2102"
}

// GLSetup is a row in gl_setup.
type GLSetup struct {
	GLNum string
	Name  string
}

// BaseRate is a row in interest_rate_master.
type BaseRate struct {
	InterestCode  string
	EffectiveDate time.Time
	Rate          float64
}

// AccountInfo is the flattened view the engines consume: either master joined
// with its GL binding.
type AccountInfo struct {
	AccountNo string
	Currency  string
	GLNum     string
	Class     AccountClass
	Office    bool
	LoanLimit float64
}
