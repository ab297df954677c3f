package service

const (
	// Sync state keys
	LastActivitySyncKey = "last_activity_sync"

	// Progress phases
	PhaseLoad    = "load"
	PhaseEnrich  = "enrich"
	PhasePersist = "persist"

	// Runs listed by default
	RecentRunsLimit = 10
)

const (
	// Unit conversions
	MetersPerKm      = 1000.0
	SecondsPerMinute = 60
)
