// Package reader runs the card reader nodes of a bus in the loop: it
// brings the bus up, polls every node and posts what it finds.
package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/wavepass.go/pkg/acio"
	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/iccx"
	"github.com/robotalks/wavepass.go/pkg/msgs"
)

// Eject trigger sources.
const (
	SourceKeypad    = "keypad"
	SourceAutoEject = "auto-eject"
)

// Reader is a loop controller owning the bus.
type Reader struct {
	Config

	ID     string
	Port   acio.Port
	Tracer acio.Tracer
	// PortName is reported in ReaderStatus.
	PortName string
	Sleep    func(context.Context, time.Duration) error

	bus         *acio.Bus
	nodes       []*node
	failures    int
	nextBringup time.Time
}

type node struct {
	ctl       *iccx.Controller
	info      acio.Node
	crcErrors int

	card        iccx.Card
	keys        iccx.Keys
	cardSince   time.Time
	autoEjected bool
}

// NewReader creates a Reader with default config.
func NewReader(id string, port acio.Port) *Reader {
	return &Reader{
		Config: defaultConfig,
		ID:     id,
		Port:   port,
		Sleep:  acio.Sleep,
	}
}

// AddToLoop implements LoopAdder.
func (r *Reader) AddToLoop(l *fx.Loop) {
	l.AddController(fx.StageControl, r)
}

// Online reports whether the bus is up.
func (r *Reader) Online() bool {
	return r.bus != nil
}

// Nodes returns the controllers of the enumerated nodes.
func (r *Reader) Nodes() []*iccx.Controller {
	ctls := make([]*iccx.Controller, len(r.nodes))
	for n, nd := range r.nodes {
		ctls[n] = nd.ctl
	}
	return ctls
}

// Control implements Controller.
func (r *Reader) Control(cc fx.ControlContext) error {
	var ejects []*msgs.EjectCommand
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		if cmd, ok := mc.CurrentMessage().(*msgs.EjectCommand); ok {
			mc.MessageTaken()
			ejects = append(ejects, cmd)
		}
	}))
	for _, cmd := range ejects {
		if err := r.Eject(cc.Context(), cmd); err != nil {
			glog.Warningf("eject from %s: %v", cmd.Source, err)
		}
	}
	events, err := r.Poll(cc.Context(), cc.Time())
	cc.Messages().AddMessages(events...)
	return err
}

// Eject handles an eject command. Encrypted readers have no slot, so the
// command is ignored.
func (r *Reader) Eject(ctx context.Context, cmd *msgs.EjectCommand) error {
	if r.Encrypted || r.bus == nil {
		return nil
	}
	var errs fx.AggregatedError
	for _, nd := range r.nodes {
		if cmd.Node != 0 && cmd.Node != uint32(nd.ctl.Node) {
			continue
		}
		glog.Infof("node %d: eject requested by %s", nd.ctl.Node, cmd.Source)
		errs.Add(nd.ctl.EjectCard(ctx, iccx.SlotOpen))
	}
	return errs.Aggregate()
}

// Poll runs one cycle: the bus is brought up when it's down, otherwise
// every node is scanned. It returns the events to publish.
func (r *Reader) Poll(ctx context.Context, now time.Time) ([]fx.Message, error) {
	if r.bus == nil {
		if now.Before(r.nextBringup) {
			return nil, nil
		}
		if err := r.bringUp(ctx); err != nil {
			r.nextBringup = now.Add(r.RetryDelay)
			return []fx.Message{r.status(msgs.ReaderStateOffline, err, now)}, err
		}
		return []fx.Message{r.status(msgs.ReaderStateOnline, nil, now)}, nil
	}

	var events []fx.Message
	var errs fx.AggregatedError
	failed := false
	for _, nd := range r.nodes {
		evs, err := r.pollNode(ctx, nd, now)
		events = append(events, evs...)
		if err != nil {
			errs.Add(fmt.Errorf("node %d: %w", nd.ctl.Node, err))
			failed = true
		}
	}
	if !failed {
		r.failures = 0
		return events, nil
	}
	if r.failures++; r.failures >= r.MaxFailures {
		err := errs.Aggregate()
		glog.Warningf("bus down after %d failed polls: %v", r.failures, err)
		r.shutdown()
		r.nextBringup = now
		events = append(events, r.status(msgs.ReaderStateOffline, err, now))
	}
	return events, errs.Aggregate()
}

func (r *Reader) pollNode(ctx context.Context, nd *node, now time.Time) ([]fx.Message, error) {
	var events []fx.Message
	if !nd.ctl.Active() {
		if err := nd.ctl.Init(ctx); err != nil {
			return nil, err
		}
	}
	card, err := nd.ctl.ScanCard(ctx)
	if err != nil {
		if errors.Is(err, iccx.ErrCRCMismatch) {
			if nd.crcErrors++; nd.crcErrors >= r.MaxCRCErrors {
				glog.Warningf("node %d: %d CRC errors, re-initializing", nd.ctl.Node, nd.crcErrors)
				nd.crcErrors = 0
				nd.ctl.Deactivate()
			}
		}
		return nil, err
	}
	nd.crcErrors = 0

	if card.Keys != nd.keys {
		pressed := card.Keys &^ nd.keys
		nd.keys = card.Keys
		events = append(events, &msgs.KeypadEvent{
			Reader: r.ID,
			Node:   uint32(nd.ctl.Node),
			Keys:   uint32(card.Keys),
			Time:   now.UnixMilli(),
		})
		if !r.Encrypted && pressed.Has(iccx.KeyEmpty) {
			glog.Infof("node %d: eject requested by %s", nd.ctl.Node, SourceKeypad)
			if err := nd.ctl.EjectCard(ctx, iccx.SlotOpen); err != nil {
				return events, err
			}
		}
	}

	switch {
	case !card.Present():
		nd.cardSince = time.Time{}
	case !card.SameCard(nd.card) || nd.cardSince.IsZero():
		nd.cardSince, nd.autoEjected = now, false
	}
	nd.card = card

	if r.AutoEject > 0 && !r.Encrypted && !nd.autoEjected &&
		!nd.cardSince.IsZero() && now.Sub(nd.cardSince) >= r.AutoEject {
		glog.Infof("node %d: eject requested by %s", nd.ctl.Node, SourceAutoEject)
		nd.autoEjected = true
		if err := nd.ctl.EjectCard(ctx, iccx.SlotOpen); err != nil {
			return events, err
		}
	}

	ev := &msgs.CardEvent{Reader: r.ID, Node: uint32(nd.ctl.Node), Keys: uint32(card.Keys), Time: now.UnixMilli()}
	if card.Present() {
		ev.CardType, ev.Uid = uint32(card.Type), card.ID()
	}
	return append(events, ev), nil
}

func (r *Reader) bringUp(ctx context.Context) error {
	r.shutdown()
	bus := acio.NewBus(r.Port)
	bus.Tracer = r.Tracer
	if r.Sleep != nil {
		bus.Sleep = r.Sleep
	}
	infos, err := bus.Open(ctx)
	if err != nil {
		return err
	}
	if err := r.sleep(ctx, r.InitDelay); err != nil {
		return err
	}
	nodes := make([]*node, 0, len(infos))
	for _, info := range infos {
		ctl := iccx.NewController(bus, info.ID)
		ctl.Encrypted = r.Encrypted
		ctl.NewCipher = r.NewCipher
		ctl.EjectDelay = r.EjectDelay
		if r.Sleep != nil {
			ctl.Sleep = r.Sleep
		}
		if err := ctl.Init(ctx); err != nil {
			return fmt.Errorf("node %d init: %w", info.ID, err)
		}
		nodes = append(nodes, &node{ctl: ctl, info: info})
	}
	r.bus, r.nodes, r.failures = bus, nodes, 0
	glog.Infof("bus up with %d nodes", len(nodes))
	return nil
}

func (r *Reader) shutdown() {
	r.bus, r.nodes = nil, nil
}

func (r *Reader) status(state string, err error, now time.Time) *msgs.ReaderStatus {
	st := &msgs.ReaderStatus{
		Reader: r.ID,
		Port:   r.PortName,
		State:  state,
		Time:   now.UnixMilli(),
	}
	if err != nil {
		st.Error = err.Error()
	}
	for _, nd := range r.nodes {
		st.Nodes = append(st.Nodes, &msgs.NodeInfo{
			Id:        uint32(nd.info.ID),
			Product:   nd.info.Version.ProductCode(),
			Version:   fmt.Sprintf("%d.%d.%d", nd.info.Version.Major, nd.info.Version.Minor, nd.info.Version.Revision),
			Encrypted: r.Encrypted,
		})
	}
	return st
}

func (r *Reader) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return acio.Sleep(ctx, d)
}
