// Package accounts holds the customer, office and product masters the posting
// and interest engines read, plus account opening.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmbank/moneymarket/internal/sequence"
	"github.com/mmbank/moneymarket/internal/shared"
)

// Service exposes master data operations.
type Service struct {
	repo   Repository
	seq    *sequence.Generator
	audit  AuditPort
	logger *slog.Logger
}

// AuditPort records master data changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewService constructs the Service.
func NewService(repo Repository, seq *sequence.Generator, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, seq: seq, audit: audit, logger: logger}
}

// OpenCustomerAccountInput carries the fields needed to open an account.
type OpenCustomerAccountInput struct {
	CustID       int64
	SubProductID int64
	Name         string
	Currency     string
	LoanLimit    float64
	OpenedOn     time.Time
	UserID       string
}

// OpenCustomerAccount generates an account number and persists the master row.
func (s *Service) OpenCustomerAccount(ctx context.Context, in OpenCustomerAccountInput) (CustomerAccount, error) {
	if in.CustID == 0 || in.SubProductID == 0 || in.Currency == "" {
		return CustomerAccount{}, fmt.Errorf("accounts: customer, sub-product and currency required: %w", shared.ErrValidation)
	}
	subProduct, err := s.repo.GetSubProduct(ctx, in.SubProductID)
	if err != nil {
		return CustomerAccount{}, err
	}
	accountNo, err := s.seq.CustomerAccountNumber(ctx, in.CustID, subProduct.CumGLNum)
	if err != nil {
		return CustomerAccount{}, err
	}
	acct := CustomerAccount{
		AccountNo:    accountNo,
		CustID:       in.CustID,
		SubProductID: in.SubProductID,
		Name:         in.Name,
		Currency:     in.Currency,
		LoanLimit:    in.LoanLimit,
		Status:       "Active",
		OpenedOn:     in.OpenedOn,
	}
	if err := s.repo.InsertCustomerAccount(ctx, acct); err != nil {
		return CustomerAccount{}, err
	}
	s.logger.Info("customer account opened",
		slog.String("account", accountNo),
		slog.Int64("customer", in.CustID),
		slog.String("sub_product", subProduct.Code))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			User:     in.UserID,
			Action:   "accounts.open_customer",
			Entity:   "account",
			EntityID: accountNo,
			Meta:     map[string]any{"custId": in.CustID, "subProduct": subProduct.Code},
		})
	}
	return acct, nil
}

// OpenOfficeAccountInput carries the fields needed to open an office account.
type OpenOfficeAccountInput struct {
	GLNum    string
	Name     string
	Currency string
	OpenedOn time.Time
	UserID   string
}

// OpenOfficeAccount validates the GL binding and persists the master row.
func (s *Service) OpenOfficeAccount(ctx context.Context, in OpenOfficeAccountInput) (OfficeAccount, error) {
	exists, err := s.repo.GLExists(ctx, in.GLNum)
	if err != nil {
		return OfficeAccount{}, err
	}
	if !exists {
		return OfficeAccount{}, fmt.Errorf("accounts: GL %s not configured: %w", in.GLNum, shared.ErrValidation)
	}
	accountNo, err := s.seq.OfficeAccountNumber(ctx, in.GLNum)
	if err != nil {
		return OfficeAccount{}, err
	}
	acct := OfficeAccount{
		AccountNo: accountNo,
		GLNum:     in.GLNum,
		Name:      in.Name,
		Currency:  in.Currency,
		OpenedOn:  in.OpenedOn,
	}
	if err := s.repo.InsertOfficeAccount(ctx, acct); err != nil {
		return OfficeAccount{}, err
	}
	s.logger.Info("office account opened", slog.String("account", accountNo), slog.String("gl", in.GLNum))
	return acct, nil
}

// ListAccountNumbers returns every account number across both masters.
func (s *Service) ListAccountNumbers(ctx context.Context) ([]string, error) {
	return s.repo.ListAccountNumbers(ctx)
}

// CustomerAccount returns one customer master row.
func (s *Service) CustomerAccount(ctx context.Context, accountNo string) (CustomerAccount, error) {
	return s.repo.GetCustomerAccount(ctx, accountNo)
}

// ListInterestBearing returns the active accounts whose sub-product accrues.
func (s *Service) ListInterestBearing(ctx context.Context) ([]CustomerAccount, error) {
	return s.repo.ListInterestBearingAccounts(ctx)
}

// SubProduct returns the product configuration for an account binding.
func (s *Service) SubProduct(ctx context.Context, id int64) (SubProduct, error) {
	return s.repo.GetSubProduct(ctx, id)
}

// SetLastInterestPaymentDate stamps a capitalization on the master.
func (s *Service) SetLastInterestPaymentDate(ctx context.Context, accountNo string, date time.Time) error {
	return s.repo.SetLastInterestPaymentDate(ctx, accountNo, date)
}

// Info resolves the flattened account view used by the engines.
func (s *Service) Info(ctx context.Context, accountNo string) (AccountInfo, error) {
	return s.repo.GetAccountInfo(ctx, accountNo)
}

// EffectiveRate resolves the accrual rate for an account: the fixed
// sub-product rate for deal books, otherwise the latest base rate effective on
// or before the date plus the sub-product increment.
func (s *Service) EffectiveRate(ctx context.Context, subProduct SubProduct, asOf time.Time) (float64, error) {
	if subProduct.DealGL() {
		return subProduct.FixedRate, nil
	}
	base, err := s.repo.BaseRate(ctx, subProduct.InterestCode, asOf)
	if err != nil {
		return 0, err
	}
	if base == 0 {
		return 0, nil
	}
	return base + subProduct.InterestIncrement, nil
}
