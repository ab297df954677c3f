package store

// NewTestDB opens a migrated in-memory database.
// This is only intended for use in tests.
func NewTestDB() (*DB, error) {
	return Open(MemoryPath)
}
