// Package scoring turns raw engagement signals into a bounded
// virality score in [0,100].
//
// The pipeline is: follower-normalized engagement, log compression,
// exponential time decay with a 20% floor, a sentiment nudge, a
// trending-term bonus, and an optional auxiliary model blend. The
// function is pure with respect to its inputs; all state it reads
// (acceleration, clock) is passed in explicitly.
package scoring

import (
	"math"
	"time"

	"github.com/jonreiter/govader"

	"github.com/solweave/degenradar/radar/internal/buzz"
	"github.com/solweave/degenradar/radar/internal/store"
)

// AccelFunc reports the acceleration ratio for a term, typically
// (*buzz.Accelerator).AccelerationOf.
type AccelFunc func(term string) float64

// Result is a derived score for one item. Never a source of truth;
// recompute from the item and current buzz state when needed.
type Result struct {
	NaturalID  string `json:"natural_id"`
	Score      int    `json:"score"`
	ComputedAt int64  `json:"computed_at"`
}

const (
	decayHalfLifeHours = 12.0
	decayFloor         = 0.2
	sentimentThreshold = 0.6
	sentimentNudge     = 5.0
	accelThreshold     = 2.0
	accelBonus         = 10.0
	fallbackFloor      = 20.0
)

// Engine scores items. Safe for concurrent use; the sentiment
// analyzer is read-only after construction.
type Engine struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func New() *Engine {
	return &Engine{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Score computes the virality score for item at time now.
// mlHint, when non-nil, must be in [0,100].
func (e *Engine) Score(item store.RawItem, accel AccelFunc, mlHint *float64, now time.Time) int {
	// Engagement base: shares count double, then per-mille of
	// followers so a mid-size account's viral post can outrank a
	// whale's routine one.
	weighted := float64(item.Likes + 2*item.Shares + item.Replies)
	if item.AuthorFollowers > 0 {
		weighted = weighted / float64(item.AuthorFollowers) * 1000
	}
	base := math.Min(math.Log(1+weighted)*25, 100)

	ageHours := now.Sub(time.UnixMilli(item.CreatedAt)).Hours()
	decay := math.Max(math.Exp(-ageHours/decayHalfLifeHours), decayFloor)
	decayed := base * decay

	compound := e.analyzer.PolarityScores(item.Body).Compound
	switch {
	case compound > sentimentThreshold:
		decayed += sentimentNudge
	case compound < -sentimentThreshold:
		decayed -= sentimentNudge
	}

	// Flat bonus, applied once no matter how many terms are spiking.
	if accel != nil {
		for _, term := range buzz.Terms(item.Body) {
			if accel(term) > accelThreshold {
				decayed += accelBonus
				break
			}
		}
	}

	var final float64
	switch {
	case mlHint != nil:
		final = 0.6**mlHint + 0.4*decayed
	case decayed > 0:
		final = decayed
	default:
		final = fallbackFloor
	}

	return clamp(int(math.Round(final)), 0, 100)
}

// ScoreBatch scores each item and stamps the results with now.
func (e *Engine) ScoreBatch(items []store.RawItem, accel AccelFunc, now time.Time) []Result {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		results = append(results, Result{
			NaturalID:  item.NaturalID,
			Score:      e.Score(item, accel, nil, now),
			ComputedAt: now.UnixMilli(),
		})
	}
	return results
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
