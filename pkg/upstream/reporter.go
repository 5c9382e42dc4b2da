package upstream

import (
	"sort"
	"time"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/msgs"
)

// Reporter is a loop controller publishing the events posted by readers.
// Card events pass through a per-node Gate. Other events are published
// as they arrive.
type Reporter struct {
	Publisher Publisher
	Cooldown  time.Duration
	Interval  time.Duration

	gates map[uint32]*Gate
}

// NewReporter creates a Reporter with default timings.
func NewReporter(pub Publisher) *Reporter {
	return &Reporter{
		Publisher: pub,
		Cooldown:  DefaultReportCooldown,
		Interval:  DefaultReportInterval,
	}
}

func (r *Reporter) gate(node uint32) *Gate {
	if r.gates == nil {
		r.gates = make(map[uint32]*Gate)
	}
	g := r.gates[node]
	if g == nil {
		g = &Gate{Cooldown: r.Cooldown, Interval: r.Interval}
		r.gates[node] = g
	}
	return g
}

// Control implements Controller.
func (r *Reporter) Control(cc fx.ControlContext) error {
	var errs fx.AggregatedError
	now := cc.Time()
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		switch msg := mc.CurrentMessage().(type) {
		case *msgs.CardEvent:
			mc.MessageTaken()
			r.gate(msg.Node).Observe(msg, now)
		case *msgs.KeypadEvent, *msgs.ReaderStatus:
			mc.MessageTaken()
			errs.Add(r.Publisher.Publish(cc.Context(), msg))
		}
	}))

	nodes := make([]uint32, 0, len(r.gates))
	for node := range r.gates {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	for _, node := range nodes {
		if ev, ok := r.gates[node].Due(now); ok {
			errs.Add(r.Publisher.Publish(cc.Context(), ev))
		}
	}
	return errs.Aggregate()
}

// AddToLoop implements LoopAdder.
func (r *Reporter) AddToLoop(l *fx.Loop) {
	l.AddController(fx.StageReport, r)
	if adder, ok := r.Publisher.(fx.LoopAdder); ok {
		l.Add(adder)
	}
}
