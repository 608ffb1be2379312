package optimistic

import (
	"sync"
	"testing"
)

func TestLedgerRollbackIsIdempotent(t *testing.T) {
	ledger := NewLedger[string]()
	ledger.Add("temp_1", "processing")

	value, ok := ledger.Rollback("temp_1")
	if !ok || value != "processing" {
		t.Fatalf("expected pending value, got %q ok=%v", value, ok)
	}
	value, ok = ledger.Rollback("temp_1")
	if ok || value != "" {
		t.Fatalf("expected second rollback to be a no-op, got %q ok=%v", value, ok)
	}
	if ledger.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d", ledger.Len())
	}
}

func TestLedgerConfirmRemovesEntry(t *testing.T) {
	ledger := NewLedger[int]()
	ledger.Add("result_t1", 1)
	ledger.Add("result_t1", 2)

	if got, _ := ledger.Get("result_t1"); got != 2 {
		t.Fatalf("expected replaced value 2, got %d", got)
	}
	ledger.Confirm("result_t1")
	ledger.Confirm("result_t1")
	if _, ok := ledger.Get("result_t1"); ok {
		t.Fatalf("expected entry removed after confirm")
	}
}

func TestLedgerConcurrentAccess(t *testing.T) {
	ledger := NewLedger[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "k"
			if n%2 == 0 {
				key = "even"
			}
			ledger.Add(key, n)
			ledger.Get(key)
			ledger.Rollback(key)
		}(i)
	}
	wg.Wait()
	ledger.Clear()
	if ledger.Len() != 0 {
		t.Fatalf("expected cleared ledger")
	}
}
