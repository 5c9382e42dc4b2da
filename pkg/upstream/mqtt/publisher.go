package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/msgs"
	"github.com/robotalks/wavepass.go/pkg/upstream"
)

// Topics under the reader name.
const (
	TopicMeta = "meta"
	TopicMsg  = "msg"
	TopicCmd  = "cmd"
)

// ConnectRetryInterval is the delay between initial connection attempts.
const ConnectRetryInterval = 5 * time.Second

// ErrNotEvent indicates only events can be published.
var ErrNotEvent = errors.New("message is not an event")

// Publisher implements upstream.Publisher using MQTT. Events go to
// <prefix><type>/<id>/msg, metadata is retained on .../meta, and commands
// are received on .../cmd.
type Publisher struct {
	Queue *Queue
	Info  upstream.ReaderInfo

	metaJSON []byte
}

// NewPublisher creates a Publisher.
func NewPublisher(brokerURL string, info upstream.ReaderInfo) (*Publisher, error) {
	meta, err := json.Marshal(&info.Meta)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+info.Ref.Name()+"/"+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID(upstream.DefaultReaderType + ":" + info.Ref.Name())
	}
	p := &Publisher{
		Queue:    NewQueue(opts, topicPrefix),
		Info:     info,
		metaJSON: meta,
	}
	p.Queue.OnConnect = func(q *Queue) {
		q.PubWith(p.topic(TopicMeta), p.metaJSON, 1, true)
	}
	return p, nil
}

func (p *Publisher) topic(name string) string {
	return p.Info.Ref.Name() + "/" + name
}

// Publish implements upstream.Publisher.
func (p *Publisher) Publish(ctx context.Context, msg fx.Message) error {
	typed, err := msgs.TypedFrom(msg)
	if err != nil {
		return err
	}
	if !typed.IsEvent() {
		return ErrNotEvent
	}
	data, err := typed.Encode()
	if err != nil {
		return err
	}
	return WaitToken(ctx, p.Queue.Pub(p.topic(TopicMsg), data))
}

// AddToLoop implements LoopAdder.
func (p *Publisher) AddToLoop(l *fx.Loop) {
	l.AddRunnable(p)
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	if loopCtl := fx.LoopCtlFrom(ctx); loopCtl != nil {
		sub := p.Queue.Sub(p.topic(TopicCmd), func(_ string, payload []byte) {
			p.handleCommand(loopCtl, payload)
		})
		defer sub.Close()
	}

	for {
		token := p.Queue.Connect()
		token.Wait()
		err := token.Error()
		if err == nil {
			break
		}
		glog.Warningf("mqtt connect failed: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ConnectRetryInterval):
		}
	}

	<-ctx.Done()
	p.Queue.PubWith(p.topic(TopicMeta), nil, 1, true).WaitTimeout(time.Second)
	p.Queue.Close()
	return ctx.Err()
}

func (p *Publisher) handleCommand(loopCtl fx.LoopControl, payload []byte) {
	typed, err := msgs.DecodeTyped(payload)
	if err != nil {
		glog.Warningf("mqtt command decode: %v", err)
		return
	}
	if !typed.IsCommand() {
		return
	}
	msg, err := typed.Decode()
	if err != nil {
		glog.Warningf("mqtt command: %v", err)
		return
	}
	if cmd, ok := msg.(*msgs.EjectCommand); ok {
		if cmd.Reader != "" && cmd.Reader != p.Info.Ref.ID {
			return
		}
		if cmd.Source == "" {
			cmd.Source = "mqtt"
		}
	}
	loopCtl.PostMessage(msg)
	loopCtl.TriggerNext()
}
