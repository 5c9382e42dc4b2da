package acio

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Direction of a frame on the bus.
type Direction uint8

// Directions.
const (
	DirSend Direction = iota + 1
	DirRecv
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case DirSend:
		return "SEND"
	case DirRecv:
		return "RECV"
	}
	return "?"
}

// Tracer observes every frame crossing the bus. msg is nil when the
// frame couldn't be decoded.
type Tracer interface {
	TraceFrame(dir Direction, frame []byte, msg *Message, err error)
}

// Transactor performs one request/response exchange.
type Transactor interface {
	Transact(ctx context.Context, req *Message, respSize int) (*Message, error)
}

// Bus runs transactions against the nodes on a Port. It is safe for
// concurrent use, transactions are serialized.
type Bus struct {
	Port   Port
	Tracer Tracer
	// Sleep is used for the delays required between bring-up steps.
	Sleep func(context.Context, time.Duration) error

	seq   Seq
	dec   *Decoder
	nodes []Node
	lock  sync.Mutex
}

// NewBus creates a Bus. The first transaction uses FirstSeq.
func NewBus(port Port) *Bus {
	return &Bus{
		Port:  port,
		Sleep: Sleep,
		seq:   FirstSeq,
		dec:   NewDecoder(port),
	}
}

// Seq returns the sequence number for the next transaction.
func (b *Bus) Seq() Seq {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.seq
}

// Transact sends req and waits for the response. The response must echo
// the request code and carry at least respSize bytes of payload.
func (b *Bus) Transact(ctx context.Context, req *Message, respSize int) (*Message, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.transact(ctx, req, respSize)
}

func (b *Bus) transact(ctx context.Context, req *Message, respSize int) (*Message, error) {
	req.Seq = b.seq
	frame, err := req.Frame()
	if err != nil {
		return nil, err
	}
	if glog.V(2) {
		glog.Infof("SEND %s: % x", req.Code, frame)
	}
	_, err = b.Port.Write(frame)
	b.trace(DirSend, frame, req, err)
	if err != nil {
		return nil, err
	}
	b.seq = b.seq.Next()

	data, err := b.dec.Decode(ctx)
	var resp *Message
	if err == nil {
		resp, err = ParseMessage(data)
	}
	b.trace(DirRecv, b.dec.Raw(), resp, err)
	if err != nil {
		return nil, err
	}
	if glog.V(2) {
		glog.Infof("RECV %s: % x", resp.Code, b.dec.Raw())
	}
	if resp.Code != req.Code {
		return nil, &ResponseMismatchError{Request: req.Code, Response: resp.Code}
	}
	if len(resp.Payload) < respSize {
		return nil, &ShortResponseError{Code: req.Code, Expected: respSize, Actual: len(resp.Payload)}
	}
	return resp, nil
}

func (b *Bus) trace(dir Direction, frame []byte, msg *Message, err error) {
	if t := b.Tracer; t != nil {
		t.TraceFrame(dir, append([]byte(nil), frame...), msg, err)
	}
}

func (b *Bus) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep == nil {
		return Sleep(ctx, d)
	}
	return b.Sleep(ctx, d)
}
