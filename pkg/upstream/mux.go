package upstream

import (
	"context"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
)

// Mux publishes to multiple Publishers.
type Mux struct {
	Publishers []Publisher
}

// Publish implements Publisher.
func (m *Mux) Publish(ctx context.Context, msg fx.Message) error {
	var errs fx.AggregatedError
	for _, pub := range m.Publishers {
		errs.Add(pub.Publish(ctx, msg))
	}
	return errs.Aggregate()
}

// AddToLoop implements LoopAdder.
func (m *Mux) AddToLoop(l *fx.Loop) {
	for _, pub := range m.Publishers {
		if adder, ok := pub.(fx.LoopAdder); ok {
			l.Add(adder)
		} else if runner, ok := pub.(fx.Runnable); ok {
			l.AddRunnable(runner)
		}
	}
}

// Add adds more publishers.
func (m *Mux) Add(pubs ...Publisher) *Mux {
	m.Publishers = append(m.Publishers, pubs...)
	return m
}

// Len returns the number of publishers.
func (m *Mux) Len() int {
	return len(m.Publishers)
}
