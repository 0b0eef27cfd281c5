package history

import (
	"context"
	"testing"
	"time"

	"github.com/fraudops/kestrel/internal/cache"
	"github.com/fraudops/kestrel/internal/domain"
)

// countingStore records how many times each history read reaches the
// store. Only the methods the service touches do anything.
type countingStore struct {
	domain.Store

	deviceCount int
	deviceCalls int
	countCalls  int
	windowCalls int
}

func (s *countingStore) CountTransactions(ctx context.Context, customerID string, start, end time.Time, excludeID string) (int, error) {
	s.countCalls++
	return 3, nil
}

func (s *countingStore) TransactionsInWindow(ctx context.Context, customerID string, start, end time.Time, excludeID string) ([]*domain.Transaction, error) {
	s.windowCalls++
	return nil, nil
}

func (s *countingStore) DistinctCustomersForDevice(ctx context.Context, deviceID string, start, end time.Time) (int, error) {
	s.deviceCalls++
	return s.deviceCount, nil
}

func newTestCache(t *testing.T) domain.Cache {
	t.Helper()
	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCountTransactions(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{}
	svc := NewService(store, nil)

	t.Run("RequiresCustomerID", func(t *testing.T) {
		if _, err := svc.CountTransactions(ctx, "", time.Time{}, time.Time{}, ""); err == nil {
			t.Error("expected error for empty customer id")
		}
	})

	t.Run("DelegatesToStore", func(t *testing.T) {
		now := time.Now()
		count, err := svc.CountTransactions(ctx, "CUST-001", now.Add(-time.Hour), now, "TXN-001")
		if err != nil {
			t.Fatalf("CountTransactions failed: %v", err)
		}
		if count != 3 {
			t.Errorf("expected 3, got %d", count)
		}
		if store.countCalls != 1 {
			t.Errorf("expected 1 store call, got %d", store.countCalls)
		}
	})
}

func TestDistinctCustomersForDevice(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	start := now.Add(-7 * 24 * time.Hour)

	t.Run("RequiresDeviceID", func(t *testing.T) {
		svc := NewService(&countingStore{}, nil)
		if _, err := svc.DistinctCustomersForDevice(ctx, "", start, now); err == nil {
			t.Error("expected error for empty device id")
		}
	})

	t.Run("WorksWithoutCache", func(t *testing.T) {
		store := &countingStore{deviceCount: 4}
		svc := NewService(store, nil)

		count, err := svc.DistinctCustomersForDevice(ctx, "DEV-001", start, now)
		if err != nil {
			t.Fatalf("DistinctCustomersForDevice failed: %v", err)
		}
		if count != 4 {
			t.Errorf("expected 4, got %d", count)
		}
	})

	t.Run("SecondReadServedFromCache", func(t *testing.T) {
		store := &countingStore{deviceCount: 4}
		svc := NewService(store, newTestCache(t))

		for i := 0; i < 3; i++ {
			count, err := svc.DistinctCustomersForDevice(ctx, "DEV-001", start, now)
			if err != nil {
				t.Fatalf("DistinctCustomersForDevice failed: %v", err)
			}
			if count != 4 {
				t.Errorf("expected 4, got %d", count)
			}
		}
		if store.deviceCalls != 1 {
			t.Errorf("expected 1 store call, got %d", store.deviceCalls)
		}
	})

	t.Run("DifferentWindowsAreDistinctKeys", func(t *testing.T) {
		store := &countingStore{deviceCount: 4}
		svc := NewService(store, newTestCache(t))

		if _, err := svc.DistinctCustomersForDevice(ctx, "DEV-001", start, now); err != nil {
			t.Fatalf("DistinctCustomersForDevice failed: %v", err)
		}
		if _, err := svc.DistinctCustomersForDevice(ctx, "DEV-001", start, now.Add(time.Hour)); err != nil {
			t.Fatalf("DistinctCustomersForDevice failed: %v", err)
		}
		if store.deviceCalls != 2 {
			t.Errorf("expected 2 store calls for distinct windows, got %d", store.deviceCalls)
		}
	})
}
