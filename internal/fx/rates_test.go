package fx

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mmbank/moneymarket/internal/platform/cache"
	"github.com/mmbank/moneymarket/internal/shared"
)

func TestMidRateBaseCurrency(t *testing.T) {
	svc := NewRateService(newFakeRepo(), nil, "BDT", slog.Default())

	mid, err := svc.MidRate(context.Background(), "BDT", tranDate)
	if err != nil {
		t.Fatalf("mid rate: %v", err)
	}
	if mid != 1 {
		t.Fatalf("expected 1, got %.4f", mid)
	}
}

func TestMidRateMissing(t *testing.T) {
	svc := NewRateService(newFakeRepo(), nil, "BDT", slog.Default())

	_, err := svc.MidRate(context.Background(), "USD", tranDate)
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMidRateCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newFakeRepo()
	repo.rates["USD/BDT"] = Rate{CcyPair: "USD/BDT", RateDate: tranDate, BuyingRate: 109.5, MidRate: 110, SellingRate: 110.5}
	svc := NewRateService(repo, cache.NewTTLCache(client, "fx:rate:", time.Minute), "BDT", slog.Default())

	for i := 0; i < 3; i++ {
		mid, err := svc.MidRate(context.Background(), "USD", tranDate)
		if err != nil {
			t.Fatalf("mid rate: %v", err)
		}
		if mid != 110 {
			t.Fatalf("expected 110, got %.4f", mid)
		}
	}
	if repo.rateCalls != 1 {
		t.Fatalf("expected a single repository read, got %d", repo.rateCalls)
	}
}

func TestConvertToLCY(t *testing.T) {
	repo := newFakeRepo()
	repo.rates["USD/BDT"] = Rate{CcyPair: "USD/BDT", MidRate: 110.25}
	svc := NewRateService(repo, nil, "BDT", slog.Default())

	lcy, err := svc.ConvertToLCY(context.Background(), 123.45, "USD", tranDate)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if lcy != shared.Round2(123.45*110.25) {
		t.Fatalf("unexpected lcy %.2f", lcy)
	}
}

func TestIngestRejectsInvertedSpread(t *testing.T) {
	svc := NewRateService(newFakeRepo(), nil, "BDT", slog.Default())

	_, err := svc.Ingest(context.Background(), IngestRateInput{
		Ccy:         "USD",
		RateDate:    tranDate,
		BuyingRate:  111,
		MidRate:     110,
		SellingRate: 112,
	})
	if !errors.Is(err, shared.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}
}

func TestIngestStoresQuotedPair(t *testing.T) {
	repo := newFakeRepo()
	svc := NewRateService(repo, nil, "BDT", slog.Default())

	rate, err := svc.Ingest(context.Background(), IngestRateInput{
		Ccy:         "USD",
		RateDate:    tranDate,
		BuyingRate:  109.5,
		MidRate:     110,
		SellingRate: 110.5,
		Source:      "treasury",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if rate.CcyPair != "USD/BDT" {
		t.Fatalf("unexpected pair %s", rate.CcyPair)
	}
	if _, ok := repo.rates["USD/BDT"]; !ok {
		t.Fatal("rate not persisted")
	}
}
