package paramstore

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mmbank/moneymarket/internal/shared"
)

type fakeRepo struct {
	params map[string]Parameter
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{params: make(map[string]Parameter)}
}

func (f *fakeRepo) Get(_ context.Context, key string) (Parameter, error) {
	p, ok := f.params[key]
	if !ok {
		return Parameter{}, shared.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) Upsert(_ context.Context, param Parameter) error {
	f.params[param.Key] = param
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, slog.Default(), "ADMIN")
}

func TestSystemDateMissing(t *testing.T) {
	svc := newTestService(newFakeRepo())

	_, err := svc.SystemDate(context.Background())
	if !errors.Is(err, shared.ErrSystemDateNotSet) {
		t.Fatalf("expected ErrSystemDateNotSet, got %v", err)
	}
}

func TestSystemDateMalformed(t *testing.T) {
	repo := newFakeRepo()
	repo.params[KeySystemDate] = Parameter{Key: KeySystemDate, Value: "31-12-2025"}
	svc := newTestService(repo)

	_, err := svc.SystemDate(context.Background())
	if !errors.Is(err, shared.ErrSystemDateNotSet) {
		t.Fatalf("expected ErrSystemDateNotSet, got %v", err)
	}
}

func TestSetAndGetSystemDate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	want := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if err := svc.SetSystemDate(context.Background(), want, "OPS1"); err != nil {
		t.Fatalf("set system date: %v", err)
	}

	got, err := svc.SystemDate(context.Background())
	if err != nil {
		t.Fatalf("system date: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestIncrementSystemDateStampsMarkers(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	start := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	if err := svc.SetSystemDate(context.Background(), start, "OPS1"); err != nil {
		t.Fatalf("set system date: %v", err)
	}

	next, err := svc.IncrementSystemDate(context.Background(), "ADMIN")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got := next.Format(DateLayout); got != "2025-07-01" {
		t.Fatalf("expected 2025-07-01, got %s", got)
	}
	if repo.params[KeyLastEODDate].Value != "2025-06-30" {
		t.Fatalf("expected last EOD date 2025-06-30, got %s", repo.params[KeyLastEODDate].Value)
	}
	if repo.params[KeyLastEODUser].Value != "ADMIN" {
		t.Fatalf("expected last EOD user ADMIN, got %s", repo.params[KeyLastEODUser].Value)
	}
}

func TestEODAdminUserFallback(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	if got := svc.EODAdminUser(context.Background()); got != "ADMIN" {
		t.Fatalf("expected fallback ADMIN, got %s", got)
	}

	repo.params[KeyEODAdminUser] = Parameter{Key: KeyEODAdminUser, Value: "EODOPS"}
	if got := svc.EODAdminUser(context.Background()); got != "EODOPS" {
		t.Fatalf("expected EODOPS, got %s", got)
	}
}
