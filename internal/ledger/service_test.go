package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mmbank/moneymarket/internal/accounts"
	"github.com/mmbank/moneymarket/internal/fx"
	"github.com/mmbank/moneymarket/internal/sequence"
	"github.com/mmbank/moneymarket/internal/shared"
)

var businessDate = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

const (
	savingsAccount = "123456781001"
	cashAccount    = "911010100001"
	loanAccount    = "123456789001"
)

type fakeRepo struct {
	mu        sync.Mutex
	lines     []TranLine
	acctBals  map[string]AcctBal
	glBals    map[string]GLBal
	movements []GLMovement
	histories []TranHistory
	vlogs     map[string]ValueDateLog
	tranDates map[string]time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		acctBals:  map[string]AcctBal{},
		glBals:    map[string]GLBal{},
		vlogs:     map[string]ValueDateLog{},
		tranDates: map[string]time.Time{},
	}
}

func dateKey(id string, date time.Time) string {
	return id + "|" + date.Format("2006-01-02")
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context, r TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) WithTxRetry(ctx context.Context, fn func(ctx context.Context, r TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) InsertLines(_ context.Context, lines []TranLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range lines {
		for _, existing := range f.lines {
			if existing.LineID == l.LineID {
				return fmt.Errorf("ledger: line %s: %w", l.LineID, shared.ErrDuplicateOperation)
			}
		}
		f.lines = append(f.lines, l)
	}
	return nil
}

func (f *fakeRepo) get(tranID string) (Transaction, error) {
	var lines []TranLine
	for _, l := range f.lines {
		if l.TranID == tranID {
			lines = append(lines, l)
		}
	}
	return groupTransaction(tranID, lines)
}

func (f *fakeRepo) GetTransaction(_ context.Context, tranID string) (Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(tranID)
}

func (f *fakeRepo) GetForUpdate(_ context.Context, tranID string) (Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(tranID)
}

func (f *fakeRepo) UpdateStatus(_ context.Context, tranID string, from, to TranStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	updated := 0
	for i := range f.lines {
		if f.lines[i].TranID == tranID && f.lines[i].Status == from {
			f.lines[i].Status = to
			updated++
		}
	}
	if updated == 0 {
		return fmt.Errorf("ledger: transaction %s not in %s status: %w", tranID, from, shared.ErrBusinessRule)
	}
	return nil
}

func (f *fakeRepo) UpdateTranDate(_ context.Context, tranID string, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.lines {
		if f.lines[i].TranID == tranID {
			f.lines[i].TranDate = date
		}
	}
	return nil
}

func (f *fakeRepo) SetPointingID(_ context.Context, tranID, pointingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.lines {
		if f.lines[i].TranID == tranID {
			f.lines[i].PointingID = pointingID
		}
	}
	return nil
}

func (f *fakeRepo) ListEntryTranIDs(_ context.Context, date time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var ids []string
	for _, l := range f.lines {
		if l.Status == StatusEntry && l.TranDate.Equal(date) && !seen[l.TranID] {
			seen[l.TranID] = true
			ids = append(ids, l.TranID)
		}
	}
	return ids, nil
}

func (f *fakeRepo) DeleteEntryStatus(_ context.Context, date time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []TranLine
	var deleted int64
	for _, l := range f.lines {
		if l.Status == StatusEntry && l.TranDate.Equal(date) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	f.lines = kept
	return deleted, nil
}

func posted(s TranStatus) bool { return s == StatusPosted || s == StatusVerified }

func (f *fakeRepo) PostedDrCrSum(_ context.Context, date time.Time) (DrCrSum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum DrCrSum
	for _, l := range f.lines {
		if !posted(l.Status) || !l.TranDate.Equal(date) {
			continue
		}
		if l.DrCr == "D" {
			sum.Dr += l.LcyAmt
		} else {
			sum.Cr += l.LcyAmt
		}
	}
	return sum, nil
}

func (f *fakeRepo) ListPostedLines(_ context.Context, date time.Time) ([]TranLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []TranLine
	for _, l := range f.lines {
		if posted(l.Status) && l.TranDate.Equal(date) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListFutureDue(_ context.Context, asOf time.Time) ([]Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID := map[string][]TranLine{}
	var order []string
	for _, l := range f.lines {
		if l.Status == StatusFuture && !l.ValueDate.After(asOf) {
			if _, ok := byID[l.TranID]; !ok {
				order = append(order, l.TranID)
			}
			byID[l.TranID] = append(byID[l.TranID], l)
		}
	}
	var txns []Transaction
	for _, id := range order {
		txn, err := groupTransaction(id, byID[id])
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func (f *fakeRepo) AccountDaySums(_ context.Context, accountNo string, date time.Time) (DrCrSum, DrCrSum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fcy, lcy DrCrSum
	for _, l := range f.lines {
		if l.AccountNo != accountNo || !posted(l.Status) || !l.TranDate.Equal(date) {
			continue
		}
		if l.DrCr == "D" {
			fcy.Dr += l.FcyAmt
			lcy.Dr += l.LcyAmt
		} else {
			fcy.Cr += l.FcyAmt
			lcy.Cr += l.LcyAmt
		}
	}
	return fcy, lcy, nil
}

func (f *fakeRepo) ActiveGLNums(_ context.Context, date time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var gls []string
	for _, mv := range f.movements {
		if mv.TranDate.Equal(date) && !seen[mv.GLNum] {
			seen[mv.GLNum] = true
			gls = append(gls, mv.GLNum)
		}
	}
	return gls, nil
}

func (f *fakeRepo) GLDaySums(_ context.Context, glNum string, date time.Time) (DrCrSum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum DrCrSum
	for _, mv := range f.movements {
		if mv.GLNum != glNum || !mv.TranDate.Equal(date) {
			continue
		}
		if mv.DrCr == "D" {
			sum.Dr += mv.LcyAmt
		} else {
			sum.Cr += mv.LcyAmt
		}
	}
	return sum, nil
}

func (f *fakeRepo) SumGLClosing(_ context.Context, date time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	for _, b := range f.glBals {
		if !b.TranDate.Equal(date) {
			continue
		}
		if b.GLNum[0] == '2' {
			total += b.ClosingBal
		} else {
			total -= b.ClosingBal
		}
	}
	return total, nil
}

func (f *fakeRepo) AcctBalOn(_ context.Context, accountNo string, date time.Time, _ bool) (AcctBal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.acctBals[dateKey(accountNo, date)]
	return b, ok, nil
}

func (f *fakeRepo) LatestAcctBalBefore(_ context.Context, accountNo string, date time.Time) (AcctBal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best AcctBal
	var found bool
	for _, b := range f.acctBals {
		if b.AccountNo == accountNo && b.TranDate.Before(date) {
			if !found || b.TranDate.After(best.TranDate) {
				best = b
				found = true
			}
		}
	}
	return best, found, nil
}

func (f *fakeRepo) UpsertAcctBal(_ context.Context, bal AcctBal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acctBals[dateKey(bal.AccountNo, bal.TranDate)] = bal
	return nil
}

func (f *fakeRepo) DeleteAcctBal(_ context.Context, accountNo string, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.acctBals, dateKey(accountNo, date))
	return nil
}

func (f *fakeRepo) GLBalOn(_ context.Context, glNum string, date time.Time, _ bool) (GLBal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.glBals[dateKey(glNum, date)]
	return b, ok, nil
}

func (f *fakeRepo) LatestGLBalBefore(_ context.Context, glNum string, date time.Time) (GLBal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best GLBal
	var found bool
	for _, b := range f.glBals {
		if b.GLNum == glNum && b.TranDate.Before(date) {
			if !found || b.TranDate.After(best.TranDate) {
				best = b
				found = true
			}
		}
	}
	return best, found, nil
}

func (f *fakeRepo) UpsertGLBal(_ context.Context, bal GLBal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.glBals[dateKey(bal.GLNum, bal.TranDate)] = bal
	return nil
}

func (f *fakeRepo) DeleteGLBal(_ context.Context, glNum string, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.glBals, dateKey(glNum, date))
	return nil
}

func (f *fakeRepo) DeleteGLMovements(_ context.Context, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []GLMovement
	for _, mv := range f.movements {
		if !mv.TranDate.Equal(date) {
			kept = append(kept, mv)
		}
	}
	f.movements = kept
	return nil
}

func (f *fakeRepo) InsertGLMovement(_ context.Context, mv GLMovement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.movements = append(f.movements, mv)
	return nil
}

func (f *fakeRepo) InsertHistory(_ context.Context, h TranHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, h)
	return nil
}

func (f *fakeRepo) InsertValueDateLog(_ context.Context, l ValueDateLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vlogs[l.TranID] = l
	return nil
}

func (f *fakeRepo) MarkValueDateLogPosted(_ context.Context, tranID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.vlogs[tranID]
	l.Posted = true
	f.vlogs[tranID] = l
	return nil
}

type fakeAccounts struct {
	infos map[string]accounts.AccountInfo
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{infos: map[string]accounts.AccountInfo{
		savingsAccount: {AccountNo: savingsAccount, Currency: "BDT", GLNum: "110101000", Class: accounts.ClassLiability},
		cashAccount:    {AccountNo: cashAccount, Currency: "BDT", GLNum: "220302001", Class: accounts.ClassAsset, Office: true},
		loanAccount:    {AccountNo: loanAccount, Currency: "BDT", GLNum: "210102000", Class: accounts.ClassAsset, LoanLimit: 5000},
	}}
}

func (f *fakeAccounts) Info(_ context.Context, accountNo string) (accounts.AccountInfo, error) {
	info, ok := f.infos[accountNo]
	if !ok {
		return accounts.AccountInfo{}, fmt.Errorf("accounts: %s: %w", accountNo, shared.ErrNotFound)
	}
	return info, nil
}

func (f *fakeAccounts) ListAccountNumbers(_ context.Context) ([]string, error) {
	var nos []string
	for no := range f.infos {
		nos = append(nos, no)
	}
	return nos, nil
}

type fakeDates struct{ date time.Time }

func (f *fakeDates) SystemDate(context.Context) (time.Time, error) { return f.date, nil }

type fakeMixed struct {
	inputs []fx.MixedInput
}

func (f *fakeMixed) ProcessMixed(_ context.Context, in fx.MixedInput) (*fx.Settlement, error) {
	f.inputs = append(f.inputs, in)
	return nil, nil
}

type fakeSeqRepo struct{ serial int }

func (f *fakeSeqRepo) NextTranSerial(context.Context, string) (int, error) {
	f.serial++
	return f.serial, nil
}
func (f *fakeSeqRepo) MaxAccrualSeqForDate(context.Context, string, time.Time) (int, error) {
	return 0, nil
}
func (f *fakeSeqRepo) MaxCustomerSerial(context.Context, int64, string) (int, error) { return 0, nil }
func (f *fakeSeqRepo) NextOfficeSerial(context.Context, string) (int, error)         { return 1, nil }

func newTestService(repo *fakeRepo) (*Service, *fakeMixed) {
	mixed := &fakeMixed{}
	seq := sequence.NewGenerator(&fakeSeqRepo{}).WithRand(func(int) int { return 7 })
	svc := NewService(repo, newFakeAccounts(), &fakeDates{date: businessDate}, seq,
		mixed, nil, slog.Default(), "BDT")
	return svc, mixed
}

func seedOpening(repo *fakeRepo, accountNo string, closing float64) {
	prev := businessDate.AddDate(0, 0, -1)
	repo.acctBals[dateKey(accountNo, prev)] = AcctBal{
		AccountNo: accountNo, TranDate: prev, Currency: "BDT", ClosingBal: closing,
	}
}

func capture(t *testing.T, svc *Service, drAcct, crAcct string, amt float64) Transaction {
	t.Helper()
	txn, err := svc.Create(context.Background(), CreateInput{
		UserID: "maker",
		Lines: []LineInput{
			{AccountNo: drAcct, DrCr: "D", LcyAmt: amt},
			{AccountNo: crAcct, DrCr: "C", LcyAmt: amt},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return txn
}

func capturePosted(t *testing.T, svc *Service, drAcct, crAcct string, amt float64) Transaction {
	t.Helper()
	txn := capture(t, svc, drAcct, crAcct, amt)
	postedTxn, err := svc.Post(context.Background(), txn.TranID, "maker")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return postedTxn
}

func captureVerified(t *testing.T, svc *Service, drAcct, crAcct string, amt float64) Transaction {
	t.Helper()
	txn := capturePosted(t, svc, drAcct, crAcct, amt)
	verified, err := svc.Verify(context.Background(), txn.TranID, "checker")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return verified
}

func TestClosingBalanceAfterDebitAndCredit(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	seedOpening(repo, savingsAccount, 1000)

	captureVerified(t, svc, savingsAccount, cashAccount, 300)
	captureVerified(t, svc, cashAccount, savingsAccount, 150)

	closing, err := svc.ClosingBalance(context.Background(), savingsAccount, businessDate)
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	if closing != 850.00 {
		t.Fatalf("expected closing 850.00, got %.2f", closing)
	}
}

func TestOpeningBalanceFallsBackToLatest(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	old := businessDate.AddDate(0, 0, -10)
	repo.acctBals[dateKey(savingsAccount, old)] = AcctBal{
		AccountNo: savingsAccount, TranDate: old, ClosingBal: 420,
	}

	opening, err := svc.OpeningBalance(context.Background(), savingsAccount, businessDate)
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	if opening != 420 {
		t.Fatalf("expected fallback opening 420, got %.2f", opening)
	}
}

func TestCreateRejectsUnbalancedLines(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), CreateInput{
		UserID: "maker",
		Lines: []LineInput{
			{AccountNo: savingsAccount, DrCr: "D", LcyAmt: 100},
			{AccountNo: cashAccount, DrCr: "C", LcyAmt: 90},
		},
	})
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}
}

func TestCreateHasNoBalanceImpact(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	seedOpening(repo, savingsAccount, 1000)

	txn := capture(t, svc, savingsAccount, cashAccount, 300)
	if txn.Status != StatusEntry {
		t.Fatalf("expected Entry, got %s", txn.Status)
	}
	closing, err := svc.ClosingBalance(context.Background(), savingsAccount, businessDate)
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	if closing != 1000.00 {
		t.Fatalf("expected closing untouched at 1000.00, got %.2f", closing)
	}
	if len(repo.movements) != 0 {
		t.Fatalf("expected no GL movements before posting, got %d", len(repo.movements))
	}
}

func TestPostAppliesBalances(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	seedOpening(repo, savingsAccount, 1000)

	txn := capturePosted(t, svc, savingsAccount, cashAccount, 300)
	if txn.Status != StatusPosted {
		t.Fatalf("expected Posted, got %s", txn.Status)
	}

	bal, ok := repo.acctBals[dateKey(savingsAccount, businessDate)]
	if !ok {
		t.Fatal("expected account balance row for the posting date")
	}
	if bal.OpeningBal != 1000 || bal.DrSum != 300 || bal.ClosingBal != 700 {
		t.Fatalf("unexpected balance row %+v", bal)
	}
	if len(repo.movements) != 2 {
		t.Fatalf("expected 2 GL movements, got %d", len(repo.movements))
	}
	if repo.movements[0].GLNum != "110101000" || repo.movements[0].BalanceAfter != -300 {
		t.Fatalf("unexpected savings GL movement %+v", repo.movements[0])
	}
}

func TestPostRejectsOverdraw(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	seedOpening(repo, savingsAccount, 100)
	txn := capture(t, svc, savingsAccount, cashAccount, 250)

	_, err := svc.Post(context.Background(), txn.TranID, "maker")
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}
	stored, err := svc.Get(context.Background(), txn.TranID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusEntry {
		t.Fatalf("expected transaction left in Entry, got %s", stored.Status)
	}
}

func TestLoanAccountDrawsAgainstLimit(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	txn := capturePosted(t, svc, loanAccount, cashAccount, 4000)
	if txn.Status != StatusPosted {
		t.Fatalf("expected Posted, got %s", txn.Status)
	}
}

func TestVerifyRequiresPosted(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	seedOpening(repo, savingsAccount, 1000)
	txn := capture(t, svc, savingsAccount, cashAccount, 100)

	_, err := svc.Verify(context.Background(), txn.TranID, "checker")
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule for unposted transaction, got %v", err)
	}
	stored, err := svc.Get(context.Background(), txn.TranID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusEntry {
		t.Fatalf("expected transaction left in Entry, got %s", stored.Status)
	}
}

func TestPostRejectsRepeat(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	seedOpening(repo, savingsAccount, 1000)
	txn := capturePosted(t, svc, savingsAccount, cashAccount, 100)

	_, err := svc.Post(context.Background(), txn.TranID, "maker")
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule on second post, got %v", err)
	}
}

func TestVerifyRejectsMaker(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	seedOpening(repo, savingsAccount, 1000)
	txn := capturePosted(t, svc, savingsAccount, cashAccount, 100)

	_, err := svc.Verify(context.Background(), txn.TranID, "maker")
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}
}

func TestReverseRestoresBalanceAndLinks(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	seedOpening(repo, savingsAccount, 1000)
	original := captureVerified(t, svc, savingsAccount, cashAccount, 300)

	reversal, err := svc.Reverse(context.Background(), ReverseInput{
		TranID: original.TranID, Reason: "teller error", UserID: "supervisor",
	})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if reversal.Status != StatusVerified {
		t.Fatalf("expected reversal verified, got %s", reversal.Status)
	}
	if reversal.Lines[0].DrCr != "C" || reversal.Lines[1].DrCr != "D" {
		t.Fatalf("expected flipped legs, got %s/%s", reversal.Lines[0].DrCr, reversal.Lines[1].DrCr)
	}

	closing, err := svc.ClosingBalance(context.Background(), savingsAccount, businessDate)
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	if closing != 1000.00 {
		t.Fatalf("expected closing restored to 1000.00, got %.2f", closing)
	}

	stored, err := svc.Get(context.Background(), original.TranID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if stored.Lines[0].PointingID != reversal.TranID {
		t.Fatalf("expected original linked to %s, got %q", reversal.TranID, stored.Lines[0].PointingID)
	}

	_, err = svc.Reverse(context.Background(), ReverseInput{
		TranID: original.TranID, Reason: "again", UserID: "supervisor",
	})
	if !errors.Is(err, shared.ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
}

func TestFutureValueDateHeldThenReleased(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)
	seedOpening(repo, savingsAccount, 1000)
	future := businessDate.AddDate(0, 0, 3)

	txn, err := svc.Create(context.Background(), CreateInput{
		ValueDate: future,
		UserID:    "maker",
		Lines: []LineInput{
			{AccountNo: savingsAccount, DrCr: "D", LcyAmt: 200},
			{AccountNo: cashAccount, DrCr: "C", LcyAmt: 200},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if txn.Status != StatusFuture {
		t.Fatalf("expected Future, got %s", txn.Status)
	}

	posted, err := svc.PostDueValueDated(context.Background(), businessDate)
	if err != nil {
		t.Fatalf("post due: %v", err)
	}
	if posted != 0 {
		t.Fatalf("expected nothing due yet, got %d", posted)
	}

	posted, err = svc.PostDueValueDated(context.Background(), future)
	if err != nil {
		t.Fatalf("post due: %v", err)
	}
	if posted != 1 {
		t.Fatalf("expected 1 release, got %d", posted)
	}
	released, err := svc.Get(context.Background(), txn.TranID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if released.Status != StatusVerified {
		t.Fatalf("expected Verified after release, got %s", released.Status)
	}
	if !released.TranDate.Equal(future) {
		t.Fatalf("expected tran date moved to %s, got %s", future, released.TranDate)
	}
	if !repo.vlogs[txn.TranID].Posted {
		t.Fatal("value date log not marked posted")
	}
}

func TestMixedTransactionRoutedToPositionEngine(t *testing.T) {
	repo := newFakeRepo()
	svc, mixed := newTestService(repo)
	seedOpening(repo, savingsAccount, 100000)

	txn, err := svc.Create(context.Background(), CreateInput{
		UserID: "maker",
		Lines: []LineInput{
			{AccountNo: savingsAccount, DrCr: "D", LcyAmt: 55250},
			{AccountNo: cashAccount, DrCr: "C", TranCcy: "USD", FcyAmt: 500, LcyAmt: 55250},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Post(context.Background(), txn.TranID, "maker"); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := svc.Verify(context.Background(), txn.TranID, "checker"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if len(mixed.inputs) != 1 {
		t.Fatalf("expected 1 position call, got %d", len(mixed.inputs))
	}
	in := mixed.inputs[0]
	if in.Direction != fx.DirectionSell {
		t.Fatalf("expected SELL for credited foreign leg, got %s", in.Direction)
	}
	if in.Ccy != "USD" || in.FcyAmount != 500 || in.LcyAmount != 55250 {
		t.Fatalf("unexpected mixed input %+v", in)
	}
}

func TestMixedTransactionNeedsTwoLegs(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), CreateInput{
		UserID: "maker",
		Lines: []LineInput{
			{AccountNo: cashAccount, DrCr: "D", TranCcy: "USD", FcyAmt: 100, LcyAmt: 11000},
			{AccountNo: cashAccount, DrCr: "C", TranCcy: "USD", FcyAmt: 100, LcyAmt: 11000},
		},
	})
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}
}
