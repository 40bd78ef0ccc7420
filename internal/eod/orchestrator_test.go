package eod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mmbank/moneymarket/internal/fx"
	"github.com/mmbank/moneymarket/internal/interest"
	"github.com/mmbank/moneymarket/internal/ledger"
	"github.com/mmbank/moneymarket/internal/shared"
)

var runDate = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

type fakeRepo struct {
	logs    []JobLog
	reports map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{reports: map[string]string{}}
}

func (f *fakeRepo) InsertLog(_ context.Context, log JobLog) error {
	log.ID = int64(len(f.logs) + 1)
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeRepo) LastJobLog(_ context.Context, date time.Time, jobNo int) (JobLog, bool, error) {
	for i := len(f.logs) - 1; i >= 0; i-- {
		if f.logs[i].RunDate.Equal(date) && f.logs[i].JobNo == jobNo {
			return f.logs[i], true, nil
		}
	}
	return JobLog{}, false, nil
}

func (f *fakeRepo) ListLogs(_ context.Context, date time.Time) ([]JobLog, error) {
	var out []JobLog
	for _, l := range f.logs {
		if l.RunDate.Equal(date) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertReport(_ context.Context, date time.Time, body string) error {
	f.reports[date.Format("2006-01-02")] = body
	return nil
}

type fakeLedger struct {
	calls    *[]string
	entryIDs []string
	sums     ledger.DrCrSum
	released int
}

func (f *fakeLedger) ListEntryTranIDs(context.Context, time.Time) ([]string, error) {
	return f.entryIDs, nil
}

func (f *fakeLedger) PostedTotals(context.Context, time.Time) (ledger.DrCrSum, error) {
	return f.sums, nil
}

func (f *fakeLedger) PostDueValueDated(context.Context, time.Time) (int, error) {
	*f.calls = append(*f.calls, "post-due")
	return f.released, nil
}

type fakeBatch struct {
	calls    *[]string
	glBalErr error
}

func (f *fakeBatch) DropUnverified(context.Context, time.Time) (int64, error) {
	*f.calls = append(*f.calls, "drop-unverified")
	return 0, nil
}

func (f *fakeBatch) BuildAccountBalances(context.Context, time.Time) (int, error) {
	*f.calls = append(*f.calls, "account-balances")
	return 3, nil
}

func (f *fakeBatch) BuildGLMovements(context.Context, time.Time) (int, error) {
	*f.calls = append(*f.calls, "gl-movements")
	return 6, nil
}

func (f *fakeBatch) BuildGLBalances(context.Context, time.Time) (int, error) {
	*f.calls = append(*f.calls, "gl-balances")
	if f.glBalErr != nil {
		return 0, f.glBalErr
	}
	return 4, nil
}

type fakeInterest struct {
	calls *[]string
}

func (f *fakeInterest) AdjustBackValued(context.Context, time.Time) (int, error) {
	*f.calls = append(*f.calls, "back-valued")
	return 0, nil
}

func (f *fakeInterest) AccrueDaily(_ context.Context, date time.Time) (interest.AccrualRun, error) {
	*f.calls = append(*f.calls, "accrue")
	return interest.AccrualRun{Date: date, Accounts: 2, Total: 3.45}, nil
}

func (f *fakeInterest) PostPendingMovements(context.Context, time.Time) (int, error) {
	*f.calls = append(*f.calls, "accrual-posting")
	return 4, nil
}

func (f *fakeInterest) BuildAccrualBalances(context.Context, time.Time) (int, error) {
	*f.calls = append(*f.calls, "accrual-balances")
	return 2, nil
}

type fakeFx struct {
	calls    *[]string
	reversed int
}

func (f *fakeFx) Revalue(_ context.Context, date time.Time) (fx.RevalResult, error) {
	*f.calls = append(*f.calls, "revalue")
	return fx.RevalResult{RevalDate: date, EntriesPosted: 1, TotalGain: 1000}, nil
}

func (f *fakeFx) ReverseRevaluations(context.Context, time.Time, time.Time) (int, error) {
	*f.calls = append(*f.calls, "reverse-reval")
	return f.reversed, nil
}

type fakeDates struct {
	date  time.Time
	admin string
}

func (f *fakeDates) SystemDate(context.Context) (time.Time, error) { return f.date, nil }

func (f *fakeDates) IncrementSystemDate(context.Context, string) (time.Time, error) {
	f.date = f.date.AddDate(0, 0, 1)
	return f.date, nil
}

func (f *fakeDates) EODAdminUser(context.Context) string { return f.admin }

type testRig struct {
	orch   *Orchestrator
	repo   *fakeRepo
	ledger *fakeLedger
	batch  *fakeBatch
	fx     *fakeFx
	dates  *fakeDates
	calls  []string
}

func newTestRig() *testRig {
	rig := &testRig{
		repo:  newFakeRepo(),
		dates: &fakeDates{date: runDate, admin: "ADMIN"},
	}
	rig.ledger = &fakeLedger{calls: &rig.calls, sums: ledger.DrCrSum{Dr: 500, Cr: 500}, released: 1}
	rig.batch = &fakeBatch{calls: &rig.calls}
	rig.fx = &fakeFx{calls: &rig.calls, reversed: 1}
	reporter := NewReporter(rig.repo, rig.ledger, slog.Default())
	rig.orch = NewOrchestrator(rig.repo, rig.ledger, rig.batch,
		&fakeInterest{calls: &rig.calls}, rig.fx, rig.dates, reporter, slog.Default())
	return rig
}

func TestValidateRejectsNonAdmin(t *testing.T) {
	rig := newTestRig()

	err := rig.orch.Validate(context.Background(), "teller")
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}
}

func TestValidateBlocksEntryStatusTransactions(t *testing.T) {
	rig := newTestRig()
	rig.ledger.entryIDs = []string{"T20250630000001007", "T20250630000002007"}

	err := rig.orch.Validate(context.Background(), "ADMIN")
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}
	if !strings.Contains(err.Error(), "'Entry' status") {
		t.Fatalf("error does not name the blocking status: %v", err)
	}
	if !strings.Contains(err.Error(), "T20250630000001007") {
		t.Fatalf("error does not list the blocking ids: %v", err)
	}
}

func TestValidateBlocksUnbalancedBooks(t *testing.T) {
	rig := newTestRig()
	rig.ledger.sums = ledger.DrCrSum{Dr: 500, Cr: 499.5}

	err := rig.orch.Validate(context.Background(), "ADMIN")
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}
	if !strings.Contains(err.Error(), "0.50") {
		t.Fatalf("error does not carry the difference: %v", err)
	}
}

func TestRunExecutesJobsInOrder(t *testing.T) {
	rig := newTestRig()

	result, err := rig.orch.Run(context.Background(), "ADMIN")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Jobs) != JobCount {
		t.Fatalf("expected %d jobs, got %d", JobCount, len(result.Jobs))
	}
	for _, jr := range result.Jobs {
		if jr.Status != StatusSuccess {
			t.Fatalf("job %d failed: %s", jr.JobNo, jr.Detail)
		}
	}
	if !result.NextDate.Equal(runDate.AddDate(0, 0, 1)) {
		t.Fatalf("expected next date advanced, got %s", result.NextDate)
	}
	if !rig.dates.date.Equal(runDate.AddDate(0, 0, 1)) {
		t.Fatal("system date not rolled")
	}

	want := []string{
		"drop-unverified", "account-balances",
		"back-valued", "accrue",
		"accrual-posting",
		"gl-movements",
		"gl-balances",
		"accrual-balances",
		"revalue",
	}
	if len(rig.calls) != len(want) {
		t.Fatalf("expected %d engine calls, got %v", len(want), rig.calls)
	}
	for i, name := range want {
		if rig.calls[i] != name {
			t.Fatalf("call %d: expected %s, got %s", i, name, rig.calls[i])
		}
	}
	if _, ok := rig.repo.reports[runDate.Format("2006-01-02")]; !ok {
		t.Fatal("day-end report missing")
	}
}

func TestRunAbortsAtFirstFailure(t *testing.T) {
	rig := newTestRig()
	rig.batch.glBalErr = fmt.Errorf("books out of balance: %w", shared.ErrBusinessRule)

	result, err := rig.orch.Run(context.Background(), "ADMIN")
	if err == nil {
		t.Fatal("expected failure")
	}
	if result.FailedAtStep != JobGLBalances {
		t.Fatalf("expected failure at job %d, got %d", JobGLBalances, result.FailedAtStep)
	}
	for _, name := range rig.calls {
		if name == "accrual-balances" || name == "revalue" {
			t.Fatalf("job after the failure ran: %s", name)
		}
	}

	last := rig.repo.logs[len(rig.repo.logs)-1]
	if last.JobNo != JobGLBalances || last.Status != StatusFailed {
		t.Fatalf("failure not logged: %+v", last)
	}
}

func TestRunResumesFromFailedStep(t *testing.T) {
	rig := newTestRig()
	rig.batch.glBalErr = errors.New("transient")
	if _, err := rig.orch.Run(context.Background(), "ADMIN"); err == nil {
		t.Fatal("expected first run to fail")
	}

	rig.batch.glBalErr = nil
	rig.calls = rig.calls[:0]
	result, err := rig.orch.Run(context.Background(), "ADMIN")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	for _, jr := range result.Jobs[:4] {
		if jr.Detail != "already executed" {
			t.Fatalf("job %d re-ran on resume: %+v", jr.JobNo, jr)
		}
	}
	for _, name := range rig.calls {
		if name == "account-balances" || name == "accrue" {
			t.Fatalf("completed job re-ran: %s", name)
		}
	}
}

func TestExecuteJobRequiresPredecessor(t *testing.T) {
	rig := newTestRig()

	_, err := rig.orch.ExecuteJob(context.Background(), "ADMIN", JobInterestAccrual)
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}
}

func TestExecuteJobRejectsRerun(t *testing.T) {
	rig := newTestRig()

	if _, err := rig.orch.ExecuteJob(context.Background(), "ADMIN", JobAccountBalances); err != nil {
		t.Fatalf("job 1: %v", err)
	}
	_, err := rig.orch.ExecuteJob(context.Background(), "ADMIN", JobAccountBalances)
	if !errors.Is(err, shared.ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
}

func TestJobStatusesReportPending(t *testing.T) {
	rig := newTestRig()
	if _, err := rig.orch.ExecuteJob(context.Background(), "ADMIN", JobAccountBalances); err != nil {
		t.Fatalf("job 1: %v", err)
	}

	statuses, err := rig.orch.JobStatuses(context.Background())
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if statuses[0].Status != StatusSuccess {
		t.Fatalf("expected job 1 success, got %s", statuses[0].Status)
	}
	if statuses[1].Status != "Pending" {
		t.Fatalf("expected job 2 pending, got %s", statuses[1].Status)
	}
}

func TestRunBOD(t *testing.T) {
	rig := newTestRig()

	result, err := rig.orch.RunBOD(context.Background())
	if err != nil {
		t.Fatalf("bod: %v", err)
	}
	if result.RevaluationsReversed != 1 || result.TransactionsReleased != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if rig.calls[0] != "reverse-reval" || rig.calls[1] != "post-due" {
		t.Fatalf("unexpected order %v", rig.calls)
	}
}
