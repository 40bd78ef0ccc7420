package ledger

import (
	"context"
	"log/slog"
	"testing"
)

func newTestBatch(repo *fakeRepo) (*Batch, *Service) {
	svc, _ := newTestService(repo)
	return NewBatch(svc, newFakeAccounts(), slog.Default()), svc
}

func TestDropUnverifiedDeletesEntryRows(t *testing.T) {
	repo := newFakeRepo()
	batch, svc := newTestBatch(repo)
	seedOpening(repo, savingsAccount, 1000)
	capture(t, svc, savingsAccount, cashAccount, 300)
	captureVerified(t, svc, savingsAccount, cashAccount, 100)

	deleted, err := batch.DropUnverified(context.Background(), businessDate)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 entry lines dropped, got %d", deleted)
	}
	ids, err := repo.ListEntryTranIDs(context.Background(), businessDate)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("entry rows remain: %v", ids)
	}
}

func TestBuildAccountBalancesWritesClosing(t *testing.T) {
	repo := newFakeRepo()
	batch, svc := newTestBatch(repo)
	seedOpening(repo, savingsAccount, 1000)
	captureVerified(t, svc, savingsAccount, cashAccount, 300)
	captureVerified(t, svc, cashAccount, savingsAccount, 150)

	count, err := batch.BuildAccountBalances(context.Background(), businessDate)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 accounts, got %d", count)
	}

	bal, ok := repo.acctBals[dateKey(savingsAccount, businessDate)]
	if !ok {
		t.Fatal("savings balance row missing")
	}
	if bal.OpeningBal != 1000 || bal.DrSum != 300 || bal.CrSum != 150 || bal.ClosingBal != 850 {
		t.Fatalf("unexpected balance row %+v", bal)
	}
}

func TestBuildAccountBalancesRerunIsStable(t *testing.T) {
	repo := newFakeRepo()
	batch, svc := newTestBatch(repo)
	seedOpening(repo, savingsAccount, 1000)
	captureVerified(t, svc, savingsAccount, cashAccount, 300)

	for i := 0; i < 2; i++ {
		if _, err := batch.BuildAccountBalances(context.Background(), businessDate); err != nil {
			t.Fatalf("build %d: %v", i+1, err)
		}
	}
	bal := repo.acctBals[dateKey(savingsAccount, businessDate)]
	if bal.ClosingBal != 700 || bal.DrSum != 300 {
		t.Fatalf("rerun skewed the row: %+v", bal)
	}
}

func TestBuildGLMovementsTracksRunningBalance(t *testing.T) {
	repo := newFakeRepo()
	batch, svc := newTestBatch(repo)
	seedOpening(repo, savingsAccount, 1000)
	captureVerified(t, svc, savingsAccount, cashAccount, 300)
	captureVerified(t, svc, cashAccount, savingsAccount, 150)

	count, err := batch.BuildGLMovements(context.Background(), businessDate)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 movements, got %d", count)
	}

	// The savings GL is a liability book: the debit shrinks it, the credit
	// rebuilds it.
	var last float64
	for _, mv := range repo.movements {
		if mv.GLNum == "110101000" {
			last = mv.BalanceAfter
		}
	}
	if last != -150 {
		t.Fatalf("expected running balance -150, got %.2f", last)
	}
}

func TestBuildGLMovementsRerunIsStable(t *testing.T) {
	repo := newFakeRepo()
	batch, svc := newTestBatch(repo)
	seedOpening(repo, savingsAccount, 1000)
	captureVerified(t, svc, savingsAccount, cashAccount, 300)

	for i := 0; i < 2; i++ {
		count, err := batch.BuildGLMovements(context.Background(), businessDate)
		if err != nil {
			t.Fatalf("build %d: %v", i+1, err)
		}
		if count != 2 {
			t.Fatalf("build %d: expected 2 movements, got %d", i+1, count)
		}
	}
	if len(repo.movements) != 2 {
		t.Fatalf("rerun duplicated movements: %d rows", len(repo.movements))
	}
}

func TestBuildGLBalancesProvesBooks(t *testing.T) {
	repo := newFakeRepo()
	batch, svc := newTestBatch(repo)
	seedOpening(repo, savingsAccount, 1000)
	captureVerified(t, svc, savingsAccount, cashAccount, 300)
	captureVerified(t, svc, cashAccount, savingsAccount, 150)

	if _, err := batch.BuildGLMovements(context.Background(), businessDate); err != nil {
		t.Fatalf("movements: %v", err)
	}
	count, err := batch.BuildGLBalances(context.Background(), businessDate)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 GLs, got %d", count)
	}

	savings := repo.glBals[dateKey("110101000", businessDate)]
	if savings.ClosingBal != -150 {
		t.Fatalf("expected savings GL closing -150, got %.2f", savings.ClosingBal)
	}
	cash := repo.glBals[dateKey("220302001", businessDate)]
	if cash.ClosingBal != -150 {
		t.Fatalf("expected cash GL closing -150, got %.2f", cash.ClosingBal)
	}
}
