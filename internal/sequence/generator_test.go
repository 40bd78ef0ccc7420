package sequence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mmbank/moneymarket/internal/shared"
)

type fakeRepo struct {
	tranSerial     int
	accrualMax     int
	customerSerial int
	officeSerial   int
}

func (f *fakeRepo) NextTranSerial(context.Context, string) (int, error) {
	f.tranSerial++
	return f.tranSerial, nil
}

func (f *fakeRepo) MaxAccrualSeqForDate(context.Context, string, time.Time) (int, error) {
	return f.accrualMax, nil
}

func (f *fakeRepo) MaxCustomerSerial(context.Context, int64, string) (int, error) {
	return f.customerSerial, nil
}

func (f *fakeRepo) NextOfficeSerial(context.Context, string) (int, error) {
	return f.officeSerial, nil
}

func fixedRand(v int) func(int) int {
	return func(int) int { return v }
}

var testDate = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func TestTranIDShape(t *testing.T) {
	gen := NewGenerator(&fakeRepo{tranSerial: 41}).WithRand(fixedRand(7))

	id, err := gen.TranID(context.Background(), testDate)
	if err != nil {
		t.Fatalf("tran id: %v", err)
	}
	if id != "T20250630000042007" {
		t.Fatalf("unexpected tran id %s", id)
	}
	if len(id) != 18 {
		t.Fatalf("expected 18 chars, got %d", len(id))
	}
}

func TestTranIDsNeverRepeat(t *testing.T) {
	gen := NewGenerator(&fakeRepo{}).WithRand(fixedRand(7))

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := gen.TranID(context.Background(), testDate)
		if err != nil {
			t.Fatalf("tran id %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("duplicate tran id %s", id)
		}
		seen[id] = true
	}
}

func TestCapitalizationIDPrefix(t *testing.T) {
	gen := NewGenerator(&fakeRepo{}).WithRand(fixedRand(1))

	id, err := gen.CapitalizationID(context.Background(), testDate)
	if err != nil {
		t.Fatalf("capitalization id: %v", err)
	}
	if !strings.HasPrefix(id, "C20250630") {
		t.Fatalf("unexpected prefix on %s", id)
	}
}

func TestAccrualIDShape(t *testing.T) {
	gen := NewGenerator(&fakeRepo{accrualMax: 122})

	id, err := gen.AccrualID(context.Background(), testDate)
	if err != nil {
		t.Fatalf("accrual id: %v", err)
	}
	if id != "S20250630000000123" {
		t.Fatalf("unexpected accrual id %s", id)
	}
	if got := LineID(id, 2); got != "S20250630000000123-2" {
		t.Fatalf("unexpected line id %s", got)
	}
}

func TestValueDateAccrualIDPrefix(t *testing.T) {
	gen := NewGenerator(&fakeRepo{})

	id, err := gen.ValueDateAccrualID(context.Background(), testDate)
	if err != nil {
		t.Fatalf("value date accrual id: %v", err)
	}
	if id != "V20250630000000001" {
		t.Fatalf("unexpected id %s", id)
	}
}

func TestCustomerAccountNumber(t *testing.T) {
	gen := NewGenerator(&fakeRepo{customerSerial: 4})

	acct, err := gen.CustomerAccountNumber(context.Background(), 12345678, "110101000")
	if err != nil {
		t.Fatalf("customer account number: %v", err)
	}
	if acct != "123456781005" {
		t.Fatalf("unexpected account number %s", acct)
	}
}

func TestCustomerAccountNumberExhausted(t *testing.T) {
	gen := NewGenerator(&fakeRepo{customerSerial: 999})

	_, err := gen.CustomerAccountNumber(context.Background(), 12345678, "110101000")
	if !errors.Is(err, shared.ErrSequenceExhausted) {
		t.Fatalf("expected ErrSequenceExhausted, got %v", err)
	}
}

func TestCustomerAccountNumberUnknownProduct(t *testing.T) {
	gen := NewGenerator(&fakeRepo{})

	_, err := gen.CustomerAccountNumber(context.Background(), 12345678, "999999999")
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestOfficeAccountNumber(t *testing.T) {
	gen := NewGenerator(&fakeRepo{officeSerial: 3})

	acct, err := gen.OfficeAccountNumber(context.Background(), "920101001")
	if err != nil {
		t.Fatalf("office account number: %v", err)
	}
	if acct != "992010100103" {
		t.Fatalf("unexpected account number %s", acct)
	}
}

func TestOfficeAccountNumberExhausted(t *testing.T) {
	gen := NewGenerator(&fakeRepo{officeSerial: 100})

	_, err := gen.OfficeAccountNumber(context.Background(), "920101001")
	if !errors.Is(err, shared.ErrSequenceExhausted) {
		t.Fatalf("expected ErrSequenceExhausted, got %v", err)
	}
}

func TestRevalIDShape(t *testing.T) {
	id := RevalID(testDate)
	if !strings.HasPrefix(id, "REVAL-2025-06-30-") {
		t.Fatalf("unexpected reval id %s", id)
	}
	if len(id) != len("REVAL-2025-06-30-")+8 {
		t.Fatalf("unexpected reval id length %d", len(id))
	}
	if got := ReversalID(id); got != "REV-"+id {
		t.Fatalf("unexpected reversal id %s", got)
	}
}
