package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trailmetrics/internal/source"
	"trailmetrics/internal/store"
	"trailmetrics/internal/strava"
)

// SyncService orchestrates enriching new Strava activities
type SyncService struct {
	client   *strava.Client
	store    *store.DB
	enricher *EnrichService
	limit    int
	logger   *slog.Logger
}

// NewSyncService creates a new sync service. limit caps the number of
// most recent activities fetched per sync, 0 for no cap.
func NewSyncService(client *strava.Client, db *store.DB, enricher *EnrichService, limit int, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SyncService{
		client:   client,
		store:    db,
		enricher: enricher,
		limit:    limit,
		logger:   logger,
	}
}

// Sync fetches the activities started since the last sync, enriches their
// streams and saves the run. full ignores the last sync time.
func (s *SyncService) Sync(ctx context.Context, full bool, progress chan<- RunProgress) (*RunResult, error) {
	var after time.Time
	if !full {
		var err error
		after, err = s.lastSync()
		if err != nil {
			if progress != nil {
				close(progress)
			}
			return nil, err
		}
	}
	s.logger.Info("syncing strava activities", "after", after, "limit", s.limit)

	src := &source.StravaSource{
		API:    s.client,
		After:  after,
		Limit:  s.limit,
		Logger: s.logger,
	}
	started := time.Now()
	res, err := s.enricher.Run(ctx, src, progress)
	if err != nil {
		return nil, fmt.Errorf("syncing activities: %w", err)
	}

	// Update last sync time
	if err := s.store.SetSyncTime(LastActivitySyncKey, started); err != nil {
		return res, fmt.Errorf("updating sync state: %w", err)
	}
	return res, nil
}

// LastSync returns the time of the last successful sync, zero if none
func (s *SyncService) LastSync() (time.Time, error) {
	return s.lastSync()
}

func (s *SyncService) lastSync() (time.Time, error) {
	return s.store.GetSyncTime(LastActivitySyncKey)
}

// RateLimitStatus returns the current rate limit status from the client
func (s *SyncService) RateLimitStatus() (shortRemaining, dailyRemaining int) {
	return s.client.RateLimitStatus()
}
