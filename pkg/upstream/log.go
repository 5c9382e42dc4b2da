package upstream

import (
	"context"

	"github.com/golang/glog"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/msgs"
)

// LogPublisher writes events to the log.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(_ context.Context, msg fx.Message) error {
	switch m := msg.(type) {
	case *msgs.CardEvent:
		glog.Infof("node %d: card type=%d uid=%s", m.Node, m.CardType, m.Uid)
	case *msgs.KeypadEvent:
		glog.Infof("node %d: keys %04x", m.Node, m.Keys)
	case *msgs.ReaderStatus:
		if m.Error != "" {
			glog.Infof("reader %s on %s: %s (%s)", m.Reader, m.Port, m.State, m.Error)
		} else {
			glog.Infof("reader %s on %s: %s, %d nodes", m.Reader, m.Port, m.State, len(m.Nodes))
		}
	default:
		glog.V(1).Infof("event %T", msg)
	}
	return nil
}
