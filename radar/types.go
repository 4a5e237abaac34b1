package radar

import (
	"github.com/solweave/degenradar/radar/internal/adapter"
	"github.com/solweave/degenradar/radar/internal/scheduler"
	"github.com/solweave/degenradar/radar/internal/snapshot"
	"github.com/solweave/degenradar/radar/internal/store"
)

// Aliases for the types callers exchange with the service.
type (
	RawItem      = store.RawItem
	UpsertReport = store.UpsertReport
	CrawlSource  = adapter.CrawlSource
	Adapter      = adapter.Adapter
	SourcePlan   = scheduler.SourcePlan
	CycleSummary = scheduler.CycleSummary
	ScoredItem   = snapshot.ScoredItem
	Snapshot     = snapshot.Snapshot
)

// Cycle status values.
const (
	StatusSuccess = scheduler.StatusSuccess
	StatusPartial = scheduler.StatusPartial
	StatusError   = scheduler.StatusError
)
