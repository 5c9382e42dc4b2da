package upstream

import (
	"time"

	"github.com/robotalks/wavepass.go/pkg/msgs"
)

// Default gate timings.
const (
	DefaultReportCooldown = 3 * time.Second
	DefaultReportInterval = time.Second
)

// Gate decides when a scanned card of a single node is reported.
// A card is reported once it differs from the last reported one and
// Interval has passed since the last report. Scans within Cooldown of a
// report are ignored. The same card is reported again only after it was
// removed and Cooldown has passed.
type Gate struct {
	Cooldown time.Duration
	Interval time.Duration

	current    *msgs.CardEvent
	reported   *msgs.CardEvent
	reportTime time.Time
	removed    bool
}

// NewGate creates a Gate with default timings.
func NewGate() *Gate {
	return &Gate{Cooldown: DefaultReportCooldown, Interval: DefaultReportInterval}
}

func sameCard(a, b *msgs.CardEvent) bool {
	return a != nil && b != nil && a.CardType == b.CardType && a.Uid == b.Uid
}

func (g *Gate) inCooldown(now time.Time) bool {
	return !g.reportTime.IsZero() && now.Sub(g.reportTime) < g.Cooldown
}

// Observe records a scan result. An event without Uid means no card.
func (g *Gate) Observe(ev *msgs.CardEvent, now time.Time) {
	if ev.Uid == "" {
		if g.reported != nil {
			g.removed = true
		}
		g.current = nil
		return
	}
	if g.inCooldown(now) {
		return
	}
	g.current = ev
}

// Due returns the card to report at now, if any.
func (g *Gate) Due(now time.Time) (*msgs.CardEvent, bool) {
	if g.current == nil {
		return nil, false
	}
	if sameCard(g.current, g.reported) && (!g.removed || g.inCooldown(now)) {
		return nil, false
	}
	if !g.reportTime.IsZero() && now.Sub(g.reportTime) <= g.Interval {
		return nil, false
	}
	g.reported, g.reportTime, g.removed = g.current, now, false
	return g.current, true
}

// Reported returns the last reported card.
func (g *Gate) Reported() *msgs.CardEvent {
	return g.reported
}
