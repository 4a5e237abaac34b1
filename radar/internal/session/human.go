package session

import (
	"math/rand/v2"
	"time"
)

// Humanization parameters. Chosen to mimic a person skimming a feed;
// all draws come from the process-wide CSPRNG-seeded generator, so no
// two cycles replay the same interaction trace.
const (
	pauseBaseMs       = 1500
	pauseJitterMs     = 1500
	distractionChance = 0.15
	distractionBaseMs = 8000
	distractionJitMs  = 12000
	hoverChance       = 0.20
	scrollMinPx       = 400
	scrollJitterPx    = 800
)

// humanPause sleeps for a reading-length pause, occasionally a much
// longer "looked away" one.
func (m *Manager) humanPause() {
	d := time.Duration(pauseBaseMs+rand.IntN(pauseJitterMs)) * time.Millisecond
	if rand.Float64() < distractionChance {
		d += time.Duration(distractionBaseMs+rand.IntN(distractionJitMs)) * time.Millisecond
	}
	time.Sleep(d)
}

// humanScroll performs one randomized scroll, sometimes hovering a
// visible post on the way past.
func (m *Manager) humanScroll() error {
	distance := float64(scrollMinPx + rand.IntN(scrollJitterPx))
	steps := 2 + rand.IntN(4)
	if err := m.page.Mouse.Scroll(0, distance, steps); err != nil {
		return err
	}
	if rand.Float64() < hoverChance {
		m.hoverRandomItem()
	}
	return nil
}

func (m *Manager) hoverRandomItem() {
	arts := m.articles()
	if len(arts) == 0 {
		return
	}
	el := arts[rand.IntN(len(arts))]
	if err := el.Hover(); err != nil {
		m.cfg.Logger.Debug("session: hover failed", "error", err)
		return
	}
	time.Sleep(time.Duration(400+rand.IntN(900)) * time.Millisecond)
}
