package db

// Op constants name store operations for error context.
const (
	OpPing         = "ping"
	OpSchema       = "ensure-schema"
	OpUpsert       = "upsert-papers"
	OpStoreVectors = "store-vectors"
	OpLinks        = "links-with-embedding"
	OpFetch        = "fetch-by-ids"
	OpCount        = "count-papers"
	OpSearchVector = "search-vector"
	OpSearchText   = "search-keyword"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
