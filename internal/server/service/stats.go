package service

import (
	"context"
	"errors"
	"math"

	"drive/internal/server/database"
)

// StatsResult reports a user's storage usage and dedup savings.
type StatsResult struct {
	ActualUsedBytes   int64   `json:"actual_used_bytes"`
	OriginalSizeBytes int64   `json:"original_size_bytes"`
	SavingsBytes      int64   `json:"savings_bytes"`
	SavingsPercentage float64 `json:"savings_percentage"`
}

// GetStats derives savings metrics from the user's two storage counters.
// Read-only.
func (s *Service) GetStats(ctx context.Context, userID string) (*StatsResult, error) {
	user, err := s.ledger.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	saved := user.StorageUsedOriginal - user.StorageUsedActual
	var pct float64
	if user.StorageUsedOriginal > 0 {
		pct = float64(saved) / float64(user.StorageUsedOriginal) * 100
		pct = math.Round(pct*100) / 100
	}

	return &StatsResult{
		ActualUsedBytes:   user.StorageUsedActual,
		OriginalSizeBytes: user.StorageUsedOriginal,
		SavingsBytes:      saved,
		SavingsPercentage: pct,
	}, nil
}

// ServerStats returns service-wide aggregates.
func (s *Service) ServerStats(ctx context.Context) (*database.ServerStats, error) {
	return s.ledger.ServerStats(ctx)
}
