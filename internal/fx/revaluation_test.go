package fx

import (
	"context"
	"log/slog"
	"testing"
)

func newTestRevaluer(repo *fakeRepo, legs *fakeLegWriter) *Revaluer {
	rates := NewRateService(repo, nil, "BDT", slog.Default())
	return NewRevaluer(repo, rates, legs, slog.Default())
}

func TestRevalueMarksGain(t *testing.T) {
	repo := newFakeRepo()
	repo.rates["USD/BDT"] = Rate{CcyPair: "USD/BDT", MidRate: 111.00}
	repo.wae["USD/BDT"] = WAEPosition{CcyPair: "USD/BDT", FcyBalance: 1000, LcyBalance: 110000, WAERate: 110.00}
	legs := &fakeLegWriter{}
	rev := newTestRevaluer(repo, legs)

	result, err := rev.Revalue(context.Background(), tranDate)
	if err != nil {
		t.Fatalf("revalue: %v", err)
	}
	if result.EntriesPosted != 1 {
		t.Fatalf("expected 1 entry, got %d", result.EntriesPosted)
	}
	if result.TotalGain != 1000.00 || result.TotalLoss != 0 {
		t.Fatalf("expected gain 1000.00, got gain %.2f loss %.2f", result.TotalGain, result.TotalLoss)
	}

	entry := result.Entries[0]
	if entry.DrAccount != NostroGL("USD") || entry.CrAccount != UnrealisedGainGL {
		t.Fatalf("unexpected orientation %+v", entry)
	}
	if entry.MtmLcy != 111000.00 || entry.BookedLcy != 110000.00 {
		t.Fatalf("unexpected amounts %+v", entry)
	}
	if len(legs.legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(legs.legs))
	}
}

func TestRevalueSkipsFlatPositions(t *testing.T) {
	repo := newFakeRepo()
	repo.rates["USD/BDT"] = Rate{CcyPair: "USD/BDT", MidRate: 110.00}
	repo.wae["USD/BDT"] = WAEPosition{CcyPair: "USD/BDT", FcyBalance: 1000, LcyBalance: 110000, WAERate: 110.00}
	repo.wae["EUR/BDT"] = WAEPosition{CcyPair: "EUR/BDT"}
	rev := newTestRevaluer(repo, &fakeLegWriter{})

	result, err := rev.Revalue(context.Background(), tranDate)
	if err != nil {
		t.Fatalf("revalue: %v", err)
	}
	// USD marks to its own booked value, EUR has no balance.
	if result.EntriesPosted != 0 {
		t.Fatalf("expected no entries, got %d", result.EntriesPosted)
	}
}

func TestRevalueThenReverseRoundTrips(t *testing.T) {
	repo := newFakeRepo()
	repo.rates["USD/BDT"] = Rate{CcyPair: "USD/BDT", MidRate: 109.00}
	repo.wae["USD/BDT"] = WAEPosition{CcyPair: "USD/BDT", FcyBalance: 1000, LcyBalance: 110000, WAERate: 110.00}
	legs := &fakeLegWriter{}
	rev := newTestRevaluer(repo, legs)

	result, err := rev.Revalue(context.Background(), tranDate)
	if err != nil {
		t.Fatalf("revalue: %v", err)
	}
	if result.TotalLoss != 1000.00 {
		t.Fatalf("expected loss 1000.00, got %.2f", result.TotalLoss)
	}
	original := result.Entries[0]

	nextDay := tranDate.AddDate(0, 0, 1)
	reversed, err := rev.ReverseRevaluations(context.Background(), tranDate, nextDay)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if reversed != 1 {
		t.Fatalf("expected 1 reversal, got %d", reversed)
	}

	// Net posted amount across the four legs is zero per account.
	net := map[string]float64{}
	for _, leg := range legs.legs {
		amt := leg.LcyAmt
		if leg.DrCr == "C" {
			amt = -amt
		}
		net[leg.AccountNo] += amt
	}
	for account, amt := range net {
		if amt != 0 {
			t.Fatalf("account %s not flat after reversal: %.2f", account, amt)
		}
	}

	// Original entry carries the reversal linkage.
	var found bool
	for _, e := range repo.revals {
		if e.TranID == original.TranID {
			found = true
			if e.Status != RevalReversed {
				t.Fatalf("expected original marked REVERSED, got %s", e.Status)
			}
			if e.ReversalTranID != "REV-"+original.TranID {
				t.Fatalf("unexpected reversal linkage %s", e.ReversalTranID)
			}
		}
	}
	if !found {
		t.Fatal("original entry missing")
	}

	// A second sweep finds nothing left to reverse.
	again, err := rev.ReverseRevaluations(context.Background(), tranDate, nextDay)
	if err != nil {
		t.Fatalf("second reverse: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected idempotent reversal, got %d", again)
	}
}
