package store

// RawItem is the normalized unit of harvested content. Every adapter maps
// its platform-specific payload into this shape before returning; items are
// immutable once created.
type RawItem struct {
	NaturalID       string `json:"natural_id"`
	Body            string `json:"body"`
	AuthorHandle    string `json:"author_handle"`
	AuthorFollowers int64  `json:"author_followers"`
	AuthorVerified  bool   `json:"author_verified"`
	Likes           int64  `json:"likes"`
	Shares          int64  `json:"shares"`
	Replies         int64  `json:"replies"`
	Views           int64  `json:"views"`
	CreatedAt       int64  `json:"created_at"`   // unix ms
	SourceName      string `json:"source_name"`
	CollectedAt     int64  `json:"collected_at"` // unix ms
}

// UpsertReport summarises one gateway upsert call.
type UpsertReport struct {
	Inserted         int `json:"inserted"`
	SkippedDuplicate int `json:"skipped_duplicate"`
}

// FetchLogEntry is one crawl-cycle record for a source.
type FetchLogEntry struct {
	ID           string `json:"id"`
	SourceName   string `json:"source_name"`
	Status       string `json:"status"` // success | partial | error
	Items        int    `json:"items"`
	Inserted     int    `json:"inserted"`
	ErrorMessage string `json:"error_message"`
	DurationMs   int64  `json:"duration_ms"`
	FetchedAt    int64  `json:"fetched_at"` // unix ms
}

// SourceStats holds aggregate counters for one source.
type SourceStats struct {
	SourceName string `json:"source_name"`
	Items      int    `json:"items"`
	Cycles     int    `json:"cycles"`
}
