package postgres

// NewStoreForTest creates a Store backed by the provided querier (test-only).
func NewStoreForTest(q querier) *Store {
	return &Store{q: q, dimensions: defaultDimensions}
}

// NewStoreForTestWithDimensions is NewStoreForTest with an explicit
// vector width.
func NewStoreForTestWithDimensions(q querier, dims int) *Store {
	return &Store{q: q, dimensions: dims}
}
