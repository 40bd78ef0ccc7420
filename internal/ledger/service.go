// Package ledger implements the double-entry posting engine: capture,
// verification, reversal, value-date handling and the day-end balance and
// movement builds.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmbank/moneymarket/internal/accounts"
	"github.com/mmbank/moneymarket/internal/fx"
	"github.com/mmbank/moneymarket/internal/sequence"
	"github.com/mmbank/moneymarket/internal/shared"
)

// SystemUser stamps machine-generated postings.
const SystemUser = "SYSTEM"

// AccountPort resolves account masters.
type AccountPort interface {
	Info(ctx context.Context, accountNo string) (accounts.AccountInfo, error)
}

// DatePort supplies the business date.
type DatePort interface {
	SystemDate(ctx context.Context) (time.Time, error)
}

// MixedPort books the position legs of a mixed base/foreign transaction.
type MixedPort interface {
	ProcessMixed(ctx context.Context, in fx.MixedInput) (*fx.Settlement, error)
}

// AuditPort records posting events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the posting engine.
type Service struct {
	repo     Repository
	accounts AccountPort
	dates    DatePort
	seq      *sequence.Generator
	mixed    MixedPort
	audit    AuditPort
	logger   *slog.Logger
	baseCcy  string
}

// NewService constructs the Service. The mixed port may be nil when the
// multi-currency engine is disabled.
func NewService(repo Repository, acct AccountPort, dates DatePort, seq *sequence.Generator,
	mixed MixedPort, audit AuditPort, logger *slog.Logger, baseCcy string) *Service {
	return &Service{
		repo: repo, accounts: acct, dates: dates, seq: seq,
		mixed: mixed, audit: audit, logger: logger, baseCcy: baseCcy,
	}
}

// Create captures a balanced transaction. Current and back-valued postings
// enter in Entry status with no balance impact, awaiting Post and Verify;
// future-valued postings enter in Future status and are released by day-begin
// processing on their value date.
func (s *Service) Create(ctx context.Context, in CreateInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	systemDate, err := s.dates.SystemDate(ctx)
	if err != nil {
		return Transaction{}, err
	}
	valueDate := in.ValueDate
	if valueDate.IsZero() {
		valueDate = systemDate
	}
	kind := ClassifyValueDate(valueDate, systemDate)

	status := StatusEntry
	if kind == ValueDateFuture {
		status = StatusFuture
	}

	if err := s.checkMixedShape(in.Lines); err != nil {
		return Transaction{}, err
	}

	tranID, err := s.seq.TranID(ctx, systemDate)
	if err != nil {
		return Transaction{}, err
	}

	lines := make([]TranLine, 0, len(in.Lines))
	for idx, li := range in.Lines {
		info, err := s.accounts.Info(ctx, li.AccountNo)
		if err != nil {
			return Transaction{}, err
		}
		ccy := li.TranCcy
		if ccy == "" {
			ccy = s.baseCcy
		}
		fcyAmt := li.FcyAmt
		if ccy == s.baseCcy {
			fcyAmt = 0
		} else if fcyAmt <= 0 {
			return Transaction{}, fmt.Errorf("ledger: line %d FCY amount required for %s: %w", idx+1, ccy, shared.ErrValidation)
		}

		narration := li.Narration
		if narration == "" {
			narration = in.Narration
		}
		lines = append(lines, TranLine{
			LineID:    sequence.LineID(tranID, idx+1),
			TranID:    tranID,
			AccountNo: li.AccountNo,
			GLNum:     info.GLNum,
			DrCr:      li.DrCr,
			TranDate:  systemDate,
			ValueDate: valueDate,
			TranCcy:   ccy,
			FcyAmt:    fcyAmt,
			LcyAmt:    shared.Round2(li.LcyAmt),
			Narration: narration,
			Status:    status,
			CreatedBy: in.UserID,
		})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, txr TxRepository) error {
		if err := txr.InsertLines(ctx, lines); err != nil {
			return err
		}
		if kind != ValueDateCurrent {
			if err := txr.InsertValueDateLog(ctx, ValueDateLog{
				TranID: tranID, ValueDate: valueDate, TranDate: systemDate,
				Posted: kind == ValueDatePast,
			}); err != nil {
				return err
			}
		}
		return txr.InsertHistory(ctx, TranHistory{
			TranID: tranID, Action: "CREATE", UserID: in.UserID,
			Remarks: fmt.Sprintf("%d lines, value date %s", len(lines), kind),
		})
	})
	if err != nil {
		return Transaction{}, err
	}

	s.logger.Info("transaction captured",
		slog.String("tran_id", tranID),
		slog.String("status", string(status)),
		slog.Int("lines", len(lines)))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			User: in.UserID, Action: "ledger.create", Entity: "transaction", EntityID: tranID,
			Meta: map[string]any{"lines": len(lines), "valueDate": valueDate.Format("2006-01-02")},
		})
	}
	return Transaction{TranID: tranID, TranDate: systemDate, ValueDate: valueDate, Status: status, Lines: lines}, nil
}

// checkMixedShape restricts foreign-currency postings to the two-legged
// form the position engine expects: one foreign leg against one base leg.
func (s *Service) checkMixedShape(lines []LineInput) error {
	var foreign int
	for _, li := range lines {
		if li.TranCcy != "" && li.TranCcy != s.baseCcy {
			foreign++
		}
	}
	if foreign == 0 {
		return nil
	}
	if len(lines) != 2 || foreign != 1 {
		return fmt.Errorf("ledger: mixed currency transactions need one foreign and one base leg: %w", shared.ErrBusinessRule)
	}
	return nil
}

// ListEntryTranIDs returns the ids still in Entry status on a date.
func (s *Service) ListEntryTranIDs(ctx context.Context, date time.Time) ([]string, error) {
	return s.repo.ListEntryTranIDs(ctx, date)
}

// PostedTotals returns the date's posted debit and credit sums.
func (s *Service) PostedTotals(ctx context.Context, date time.Time) (DrCrSum, error) {
	return s.repo.PostedDrCrSum(ctx, date)
}

// Get returns the transaction with all its lines.
func (s *Service) Get(ctx context.Context, tranID string) (Transaction, error) {
	return s.repo.GetTransaction(ctx, tranID)
}

// Post applies an Entry transaction to the balance books. Each leg locks its
// account and GL balance rows for the date, seeding the day's row from the
// prior closing when absent, so concurrent postings against the same account
// serialize. Debits on customer accounts must fit within the available
// balance. The transaction moves to Posted awaiting verification.
func (s *Service) Post(ctx context.Context, tranID, userID string) (Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, tranID)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status != StatusEntry {
		return Transaction{}, fmt.Errorf("ledger: transaction %s is %s, not Entry: %w", tranID, txn.Status, shared.ErrBusinessRule)
	}

	for _, line := range txn.Lines {
		if line.DrCr != "D" {
			continue
		}
		info, err := s.accounts.Info(ctx, line.AccountNo)
		if err != nil {
			return Transaction{}, err
		}
		if info.Office || info.Class == accounts.ClassPosition {
			continue
		}
		avail, err := s.AvailableBalance(ctx, line.AccountNo, txn.TranDate)
		if err != nil {
			return Transaction{}, err
		}
		if avail < line.LcyAmt {
			return Transaction{}, fmt.Errorf("ledger: account %s available %.2f below debit %.2f: %w",
				line.AccountNo, avail, line.LcyAmt, shared.ErrBusinessRule)
		}
	}

	err = s.repo.WithTxRetry(ctx, func(ctx context.Context, txr TxRepository) error {
		locked, err := txr.GetForUpdate(ctx, tranID)
		if err != nil {
			return err
		}
		if locked.Status != StatusEntry {
			return fmt.Errorf("ledger: transaction %s is %s, not Entry: %w", tranID, locked.Status, shared.ErrBusinessRule)
		}
		if err := applyLineBalances(ctx, txr, s.accounts, locked.Lines); err != nil {
			return err
		}
		if err := txr.UpdateStatus(ctx, tranID, StatusEntry, StatusPosted); err != nil {
			return err
		}
		return txr.InsertHistory(ctx, TranHistory{TranID: tranID, Action: "POST", UserID: userID})
	})
	if err != nil {
		return Transaction{}, err
	}
	txn.Status = StatusPosted
	for i := range txn.Lines {
		txn.Lines[i].Status = StatusPosted
	}

	s.logger.Info("transaction posted", slog.String("tran_id", tranID), slog.String("poster", userID))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			User: userID, Action: "ledger.post", Entity: "transaction", EntityID: tranID,
		})
	}
	return txn, nil
}

// applyLineBalances applies each leg to the account and GL books for the
// leg's transaction date. Balance rows are taken FOR UPDATE; a missing day
// row is seeded from the latest prior closing. GL-level legs, where the
// account number is the GL number itself, touch only the GL book.
func applyLineBalances(ctx context.Context, txr TxRepository, acct AccountPort, lines []TranLine) error {
	for _, line := range lines {
		if line.AccountNo != line.GLNum {
			bal, ok, err := txr.AcctBalOn(ctx, line.AccountNo, line.TranDate, true)
			if err != nil {
				return err
			}
			if !ok {
				info, err := acct.Info(ctx, line.AccountNo)
				if err != nil {
					return err
				}
				bal = AcctBal{AccountNo: line.AccountNo, TranDate: line.TranDate, Currency: info.Currency}
				if prev, found, err := txr.LatestAcctBalBefore(ctx, line.AccountNo, line.TranDate); err != nil {
					return err
				} else if found {
					bal.OpeningBal = prev.ClosingBal
				}
			}
			if line.DrCr == "D" {
				bal.DrSum = shared.Round2(bal.DrSum + line.LcyAmt)
			} else {
				bal.CrSum = shared.Round2(bal.CrSum + line.LcyAmt)
			}
			bal.ClosingBal = shared.Round2(bal.OpeningBal + bal.CrSum - bal.DrSum)
			if err := txr.UpsertAcctBal(ctx, bal); err != nil {
				return err
			}
		}

		glBal, ok, err := txr.GLBalOn(ctx, line.GLNum, line.TranDate, true)
		if err != nil {
			return err
		}
		if !ok {
			glBal = GLBal{GLNum: line.GLNum, TranDate: line.TranDate}
			if prev, found, err := txr.LatestGLBalBefore(ctx, line.GLNum, line.TranDate); err != nil {
				return err
			} else if found {
				glBal.OpeningBal = prev.ClosingBal
			}
		}
		if line.DrCr == "D" {
			glBal.DrSum = shared.Round2(glBal.DrSum + line.LcyAmt)
		} else {
			glBal.CrSum = shared.Round2(glBal.CrSum + line.LcyAmt)
		}
		glBal.ClosingBal = shared.Round2(glBal.OpeningBal +
			signedDelta(line.GLNum, "D", glBal.DrSum) + signedDelta(line.GLNum, "C", glBal.CrSum))
		if err := txr.UpsertGLBal(ctx, glBal); err != nil {
			return err
		}

		if err := txr.InsertGLMovement(ctx, GLMovement{
			LineID:       line.LineID,
			TranID:       line.TranID,
			GLNum:        line.GLNum,
			DrCr:         line.DrCr,
			TranDate:     line.TranDate,
			ValueDate:    line.ValueDate,
			TranCcy:      line.TranCcy,
			FcyAmt:       line.FcyAmt,
			LcyAmt:       line.LcyAmt,
			BalanceAfter: glBal.ClosingBal,
			Narration:    line.Narration,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Verify moves a Posted transaction to Verified. Balances were applied at
// Post; verification only confirms them. The verifier must differ from the
// maker. Verified mixed-currency transactions trigger the position engine.
func (s *Service) Verify(ctx context.Context, tranID, userID string) (Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, tranID)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status != StatusPosted {
		return Transaction{}, fmt.Errorf("ledger: transaction %s is %s, not Posted: %w", tranID, txn.Status, shared.ErrBusinessRule)
	}
	maker := txn.Lines[0].CreatedBy
	if maker == userID {
		return Transaction{}, fmt.Errorf("ledger: maker %s cannot verify own transaction: %w", userID, shared.ErrBusinessRule)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, txr TxRepository) error {
		locked, err := txr.GetForUpdate(ctx, tranID)
		if err != nil {
			return err
		}
		if locked.Status != StatusPosted {
			return fmt.Errorf("ledger: transaction %s is %s, not Posted: %w", tranID, locked.Status, shared.ErrBusinessRule)
		}
		if err := txr.UpdateStatus(ctx, tranID, StatusPosted, StatusVerified); err != nil {
			return err
		}
		return txr.InsertHistory(ctx, TranHistory{TranID: tranID, Action: "VERIFY", UserID: userID})
	})
	if err != nil {
		return Transaction{}, err
	}
	txn.Status = StatusVerified
	for i := range txn.Lines {
		txn.Lines[i].Status = StatusVerified
	}

	if err := s.processMixedLegs(ctx, txn, userID); err != nil {
		return Transaction{}, err
	}

	s.logger.Info("transaction verified", slog.String("tran_id", tranID), slog.String("verifier", userID))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			User: userID, Action: "ledger.verify", Entity: "transaction", EntityID: tranID,
		})
	}
	return txn, nil
}

// processMixedLegs hands the foreign leg of a verified mixed transaction to
// the position engine. A debit on the foreign account grows the bank's
// holding, so it trades as a buy; a credit trades as a sell.
func (s *Service) processMixedLegs(ctx context.Context, txn Transaction, userID string) error {
	if s.mixed == nil {
		return nil
	}
	for _, line := range txn.Lines {
		if line.TranCcy == s.baseCcy || line.TranCcy == "" || line.FcyAmt == 0 {
			continue
		}
		direction := fx.DirectionBuy
		if line.DrCr == "C" {
			direction = fx.DirectionSell
		}
		settlement, err := s.mixed.ProcessMixed(ctx, fx.MixedInput{
			BaseTranID: txn.TranID,
			Ccy:        line.TranCcy,
			FcyAmount:  line.FcyAmt,
			LcyAmount:  line.LcyAmt,
			Direction:  direction,
			TranDate:   txn.TranDate,
			ValueDate:  txn.ValueDate,
			UserID:     userID,
		})
		if err != nil {
			return err
		}
		if settlement != nil {
			s.logger.Info("mixed transaction settled",
				slog.String("tran_id", txn.TranID),
				slog.String("type", string(settlement.Type)),
				slog.Float64("amount", settlement.Amount))
		}
	}
	return nil
}

// Reverse books an equal and opposite transaction against a verified original
// and links the pair. The reversal posts and is machine-verified in one step,
// restoring the balance books immediately.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (Transaction, error) {
	if in.TranID == "" || in.UserID == "" {
		return Transaction{}, fmt.Errorf("ledger: transaction and user required: %w", shared.ErrValidation)
	}
	original, err := s.repo.GetTransaction(ctx, in.TranID)
	if err != nil {
		return Transaction{}, err
	}
	if original.Status != StatusVerified {
		return Transaction{}, fmt.Errorf("ledger: only verified transactions reverse, %s is %s: %w",
			in.TranID, original.Status, shared.ErrBusinessRule)
	}
	if original.Lines[0].PointingID != "" {
		return Transaction{}, fmt.Errorf("ledger: transaction %s already reversed by %s: %w",
			in.TranID, original.Lines[0].PointingID, shared.ErrDuplicateOperation)
	}

	systemDate, err := s.dates.SystemDate(ctx)
	if err != nil {
		return Transaction{}, err
	}
	reversalID, err := s.seq.TranID(ctx, systemDate)
	if err != nil {
		return Transaction{}, err
	}

	narration := fmt.Sprintf("REVERSAL: %s (Original: %s)", in.Reason, in.TranID)
	lines := make([]TranLine, 0, len(original.Lines))
	for idx, orig := range original.Lines {
		flipped := "D"
		if orig.DrCr == "D" {
			flipped = "C"
		}
		lines = append(lines, TranLine{
			LineID:     sequence.LineID(reversalID, idx+1),
			TranID:     reversalID,
			AccountNo:  orig.AccountNo,
			GLNum:      orig.GLNum,
			DrCr:       flipped,
			TranDate:   systemDate,
			ValueDate:  systemDate,
			TranCcy:    orig.TranCcy,
			FcyAmt:     orig.FcyAmt,
			LcyAmt:     orig.LcyAmt,
			Narration:  narration,
			Status:     StatusVerified,
			PointingID: orig.LineID,
			CreatedBy:  in.UserID,
		})
	}

	err = s.repo.WithTxRetry(ctx, func(ctx context.Context, txr TxRepository) error {
		if err := txr.InsertLines(ctx, lines); err != nil {
			return err
		}
		if err := applyLineBalances(ctx, txr, s.accounts, lines); err != nil {
			return err
		}
		if err := txr.SetPointingID(ctx, in.TranID, reversalID); err != nil {
			return err
		}
		if err := txr.InsertHistory(ctx, TranHistory{
			TranID: in.TranID, Action: "REVERSE", UserID: in.UserID, Remarks: "reversed by " + reversalID,
		}); err != nil {
			return err
		}
		return txr.InsertHistory(ctx, TranHistory{
			TranID: reversalID, Action: "CREATE", UserID: in.UserID, Remarks: narration,
		})
	})
	if err != nil {
		return Transaction{}, err
	}

	s.logger.Info("transaction reversed",
		slog.String("original", in.TranID),
		slog.String("reversal", reversalID))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			User: in.UserID, Action: "ledger.reverse", Entity: "transaction", EntityID: reversalID,
			Meta: map[string]any{"original": in.TranID, "reason": in.Reason},
		})
	}
	return Transaction{TranID: reversalID, TranDate: systemDate, ValueDate: systemDate, Status: StatusVerified, Lines: lines}, nil
}

// SystemPairInput books a machine-generated two-leg posting under a caller
// supplied transaction id. GL-level legs use the GL number as the account.
type SystemPairInput struct {
	TranID      string
	DrAccountNo string
	DrGLNum     string
	CrAccountNo string
	CrGLNum     string
	Ccy         string
	Amount      float64
	TranDate    time.Time
	ValueDate   time.Time
	Narration   string
}

// PostSystemPair writes a balanced machine posting directly in Verified
// status. Engines use it for capitalization and similar generated entries.
func (s *Service) PostSystemPair(ctx context.Context, in SystemPairInput) (Transaction, error) {
	if in.TranID == "" || in.Amount <= 0 {
		return Transaction{}, fmt.Errorf("ledger: system pair needs id and positive amount: %w", shared.ErrValidation)
	}
	ccy := in.Ccy
	if ccy == "" {
		ccy = s.baseCcy
	}
	amount := shared.Round2(in.Amount)
	lines := []TranLine{
		{
			LineID: sequence.LineID(in.TranID, 1), TranID: in.TranID,
			AccountNo: in.DrAccountNo, GLNum: in.DrGLNum, DrCr: "D",
			TranDate: in.TranDate, ValueDate: in.ValueDate, TranCcy: ccy,
			LcyAmt: amount, Narration: in.Narration,
			Status: StatusVerified, CreatedBy: SystemUser,
		},
		{
			LineID: sequence.LineID(in.TranID, 2), TranID: in.TranID,
			AccountNo: in.CrAccountNo, GLNum: in.CrGLNum, DrCr: "C",
			TranDate: in.TranDate, ValueDate: in.ValueDate, TranCcy: ccy,
			LcyAmt: amount, Narration: in.Narration,
			Status: StatusVerified, CreatedBy: SystemUser,
		},
	}
	err := s.repo.WithTxRetry(ctx, func(ctx context.Context, txr TxRepository) error {
		if err := txr.InsertLines(ctx, lines); err != nil {
			return err
		}
		if err := applyLineBalances(ctx, txr, s.accounts, lines); err != nil {
			return err
		}
		return txr.InsertHistory(ctx, TranHistory{
			TranID: in.TranID, Action: "CREATE", UserID: SystemUser, Remarks: in.Narration,
		})
	})
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		TranID: in.TranID, TranDate: in.TranDate, ValueDate: in.ValueDate,
		Status: StatusVerified, Lines: lines,
	}, nil
}

// PostDueValueDated releases Future transactions whose value date has arrived.
// Day-begin processing calls this after the date roll; released transactions
// are machine-verified on the new business date.
func (s *Service) PostDueValueDated(ctx context.Context, asOf time.Time) (int, error) {
	due, err := s.repo.ListFutureDue(ctx, asOf)
	if err != nil {
		return 0, err
	}
	posted := 0
	for _, txn := range due {
		err := s.repo.WithTxRetry(ctx, func(ctx context.Context, txr TxRepository) error {
			if err := txr.UpdateTranDate(ctx, txn.TranID, asOf); err != nil {
				return err
			}
			if err := txr.UpdateStatus(ctx, txn.TranID, StatusFuture, StatusPosted); err != nil {
				return err
			}
			lines := make([]TranLine, len(txn.Lines))
			copy(lines, txn.Lines)
			for i := range lines {
				lines[i].TranDate = asOf
			}
			if err := applyLineBalances(ctx, txr, s.accounts, lines); err != nil {
				return err
			}
			if err := txr.UpdateStatus(ctx, txn.TranID, StatusPosted, StatusVerified); err != nil {
				return err
			}
			if err := txr.MarkValueDateLogPosted(ctx, txn.TranID); err != nil {
				return err
			}
			return txr.InsertHistory(ctx, TranHistory{
				TranID: txn.TranID, Action: "AUTO_POST", UserID: SystemUser,
				Remarks: "value date reached " + asOf.Format("2006-01-02"),
			})
		})
		if err != nil {
			return posted, fmt.Errorf("ledger: release %s: %w", txn.TranID, err)
		}
		posted++
		s.logger.Info("future transaction released",
			slog.String("tran_id", txn.TranID),
			slog.String("value_date", txn.ValueDate.Format("2006-01-02")))
	}
	return posted, nil
}
