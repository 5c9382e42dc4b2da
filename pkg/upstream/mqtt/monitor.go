package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/msgs"
	"github.com/robotalks/wavepass.go/pkg/upstream"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// EventHandler receives events from readers.
type EventHandler func(upstream.ReaderRef, fx.Message)

// Monitor watches readers publishing to a broker.
type Monitor struct {
	Queue *Queue
}

// NewMonitor creates a Monitor.
func NewMonitor(brokerURL string) (*Monitor, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Monitor{Queue: q}, nil
}

// RefFromTopic parses <type>/<id>/<name> into a reader ref and name.
func RefFromTopic(topic string) (upstream.ReaderRef, string, bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 {
		return upstream.ReaderRef{}, "", false
	}
	return upstream.ReaderRef{Type: items[0], ID: items[1]}, items[2], true
}

// Connect connects to the broker.
func (m *Monitor) Connect(ctx context.Context) error {
	return WaitToken(ctx, m.Queue.Connect())
}

// Close implements io.Closer.
func (m *Monitor) Close() error {
	return m.Queue.Close()
}

// Discover collects the retained metadata of online readers.
func (m *Monitor) Discover(ctx context.Context, timeout time.Duration) (res []upstream.ReaderInfo, err error) {
	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	infoCh := make(chan upstream.ReaderInfo, 16)
	sub := m.Queue.Sub("+/+/"+TopicMeta, func(topic string, payload []byte) {
		ref, _, ok := RefFromTopic(topic)
		if !ok || len(payload) == 0 {
			return
		}
		info := upstream.ReaderInfo{Ref: ref}
		if err := json.Unmarshal(payload, &info.Meta); err != nil {
			glog.Warningf("meta of %s: %v", ref.Name(), err)
		}
		select {
		case infoCh <- info:
		case <-time.After(time.Second):
		}
	})
	defer sub.Close()

	expire := time.After(timeout)
	for {
		select {
		case info := <-infoCh:
			res = append(res, info)
		case <-expire:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Watch calls handler for every event until ctx is done.
func (m *Monitor) Watch(ctx context.Context, handler EventHandler) error {
	sub := m.Queue.Sub("+/+/"+TopicMsg, func(topic string, payload []byte) {
		ref, _, ok := RefFromTopic(topic)
		if !ok {
			return
		}
		msg, err := msgs.DecodeMessage(payload)
		if err != nil {
			glog.Warningf("event from %s: %v", ref.Name(), err)
			return
		}
		handler(ref, msg)
	})
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}

// Eject sends an EjectCommand to the reader.
func (m *Monitor) Eject(ctx context.Context, ref upstream.ReaderRef, node uint32) error {
	data, err := msgs.Encode(&msgs.EjectCommand{Reader: ref.ID, Node: node, Source: "mqtt"})
	if err != nil {
		return err
	}
	return WaitToken(ctx, m.Queue.Pub(ref.Name()+"/"+TopicCmd, data))
}
