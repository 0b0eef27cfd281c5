// Package history serves the transaction-history lookups the rule
// evaluator needs, with an optional cache in front of the store.
package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fraudops/kestrel/internal/domain"
)

// deviceCountTTL bounds staleness of cached device-sharing counts. The
// count only grows as new transactions arrive, so a short TTL trades a
// brief undercount for far fewer store round trips on hot devices.
const deviceCountTTL = 30 * time.Second

// Service answers history queries from the store. When a cache is
// configured, device-sharing counts are served read-through; velocity
// and location queries always hit the store because their windows are
// anchored to each transaction's own timestamp.
type Service struct {
	store domain.Store
	cache domain.Cache
}

// NewService creates a history service. cache may be nil.
func NewService(store domain.Store, cache domain.Cache) *Service {
	return &Service{store: store, cache: cache}
}

// CountTransactions counts the customer's transactions in [start, end],
// both ends inclusive, excluding excludeID.
func (s *Service) CountTransactions(ctx context.Context, customerID string, start, end time.Time, excludeID string) (int, error) {
	if customerID == "" {
		return 0, fmt.Errorf("customerID is required")
	}
	return s.store.CountTransactions(ctx, customerID, start, end, excludeID)
}

// TransactionsInWindow returns the customer's transactions in
// [start, end), excluding excludeID, ordered most recent first.
func (s *Service) TransactionsInWindow(ctx context.Context, customerID string, start, end time.Time, excludeID string) ([]*domain.Transaction, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customerID is required")
	}
	return s.store.TransactionsInWindow(ctx, customerID, start, end, excludeID)
}

// DistinctCustomersForDevice counts distinct customers that used the
// device in [start, end], serving from cache when possible.
func (s *Service) DistinctCustomersForDevice(ctx context.Context, deviceID string, start, end time.Time) (int, error) {
	if deviceID == "" {
		return 0, fmt.Errorf("deviceID is required")
	}

	key := fmt.Sprintf("device:%s:customers:%d:%d", deviceID, start.Unix(), end.Unix())
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			if count, err := strconv.Atoi(string(data)); err == nil {
				return count, nil
			}
		}
	}

	count, err := s.store.DistinctCustomersForDevice(ctx, deviceID, start, end)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		// Cache write failures are invisible to callers; the store
		// already answered.
		_ = s.cache.Set(ctx, key, []byte(strconv.Itoa(count)), deviceCountTTL)
	}

	return count, nil
}
