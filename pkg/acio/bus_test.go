package acio

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptPort is a Port which answers each request frame with the frame
// produced by handler.
type scriptPort struct {
	t       *testing.T
	in      []byte
	writes  [][]byte
	reqs    []*Message
	handler func(req *Message) *Message
	// resetReply is returned for a bare SOF.
	resetReply []byte
}

func newScriptPort(t *testing.T, handler func(req *Message) *Message) *scriptPort {
	return &scriptPort{t: t, handler: handler, resetReply: []byte{SOF}}
}

func (p *scriptPort) ReadByteContext(ctx context.Context) (byte, error) {
	if len(p.in) == 0 {
		return 0, io.EOF
	}
	b := p.in[0]
	p.in = p.in[1:]
	return b, nil
}

func (p *scriptPort) Available() bool {
	return len(p.in) > 0
}

func (p *scriptPort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), b...))
	if len(b) == 1 && b[0] == SOF {
		p.in = append(p.in, p.resetReply...)
		return 1, nil
	}
	data, err := decodeBytes(p.t, b)
	require.NoError(p.t, err)
	req, err := ParseMessage(data)
	require.NoError(p.t, err)
	p.reqs = append(p.reqs, req)
	if p.handler != nil {
		if resp := p.handler(req); resp != nil {
			frame, err := resp.Frame()
			require.NoError(p.t, err)
			p.in = append(p.in, frame...)
		}
	}
	return len(b), nil
}

func echo(payload ...byte) func(req *Message) *Message {
	return func(req *Message) *Message {
		return &Message{Addr: req.Addr, Code: req.Code, Seq: req.Seq, Payload: payload}
	}
}

type recordTracer struct {
	dirs []Direction
	errs []error
}

func (r *recordTracer) TraceFrame(dir Direction, frame []byte, msg *Message, err error) {
	r.dirs = append(r.dirs, dir)
	r.errs = append(r.errs, err)
}

func TestTransactSequence(t *testing.T) {
	port := newScriptPort(t, echo(0))
	bus := NewBus(port)
	require.Equal(t, FirstSeq, bus.Seq())
	bus.seq = 0xfe
	for n := 0; n < 4; n++ {
		resp, err := bus.Transact(context.Background(), NewMessage(1, CmdStartUp), 1)
		require.NoError(t, err)
		require.Equal(t, port.reqs[n].Seq, resp.Seq)
	}
	var seqs []Seq
	for _, req := range port.reqs {
		seqs = append(seqs, req.Seq)
	}
	require.Equal(t, []Seq{0xfe, 0xff, 0x00, 0x01}, seqs)
	require.Equal(t, Seq(0x02), bus.Seq())
}

func TestTransactResponseMismatch(t *testing.T) {
	port := newScriptPort(t, func(req *Message) *Message {
		return &Message{Addr: req.Addr, Code: req.Code + 1, Seq: req.Seq, Payload: []byte{0}}
	})
	tracer := &recordTracer{}
	bus := NewBus(port)
	bus.Tracer = tracer
	_, err := bus.Transact(context.Background(), NewMessage(1, CmdGetVersion), 0)
	require.ErrorIs(t, err, ErrResponseMismatch)
	var mismatch *ResponseMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, CmdGetVersion, mismatch.Request)
	require.Equal(t, CmdStartUp, mismatch.Response)
	require.Equal(t, []Direction{DirSend, DirRecv}, tracer.dirs)
}

func TestTransactShortResponse(t *testing.T) {
	bus := NewBus(newScriptPort(t, echo(1, 2)))
	_, err := bus.Transact(context.Background(), NewMessage(1, CmdGetVersion), 3)
	require.ErrorIs(t, err, ErrShortResponse)
}

func TestTransactChecksumError(t *testing.T) {
	port := newScriptPort(t, nil)
	bus := NewBus(port)
	frame, err := (&Message{Addr: 1, Code: CmdStartUp, Seq: FirstSeq}).Frame()
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0x01
	port.in = frame
	tracer := &recordTracer{}
	bus.Tracer = tracer
	_, err = bus.Transact(context.Background(), NewMessage(1, CmdStartUp), 0)
	require.ErrorIs(t, err, ErrChecksum)
	require.Len(t, tracer.errs, 2)
	require.ErrorIs(t, tracer.errs[1], ErrChecksum)
}

func TestReset(t *testing.T) {
	port := &resetPort{
		scriptPort: newScriptPort(t, nil),
		replies:    [][]byte{{0x00}, {0x12}, {SOF, 0x01, 0x02}},
	}
	bus := NewBus(port)
	require.NoError(t, bus.Reset(context.Background()))
	require.Equal(t, 3, port.writes)
	require.Empty(t, port.in)
	require.Equal(t, FirstSeq, bus.Seq())
}

// resetPort answers each written byte with the next reply.
type resetPort struct {
	*scriptPort
	replies [][]byte
	writes  int
}

func (p *resetPort) Write(b []byte) (int, error) {
	p.writes++
	if len(p.replies) > 0 {
		p.in = append(p.in, p.replies[0]...)
		p.replies = p.replies[1:]
	}
	return len(b), nil
}

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func nodeHandler(count byte, failVersion byte) func(req *Message) *Message {
	return func(req *Message) *Message {
		resp := &Message{Addr: req.Addr, Code: req.Code, Seq: req.Seq}
		switch req.Code {
		case CmdAssignAddrs:
			resp.Payload = []byte{count}
		case CmdGetVersion:
			if req.Addr == failVersion {
				resp.Code = CmdStartUp
			}
			ver := Version{Major: 1, Minor: 6, Revision: req.Addr}
			copy(ver.Product[:], "ICCA")
			ver.Date = "Jul 19 2018"
			ver.Time = "10:21:00"
			resp.Payload = ver.Bytes()
		case CmdStartUp:
			resp.Payload = []byte{0}
		}
		return resp
	}
}

func TestOpen(t *testing.T) {
	port := newScriptPort(t, nodeHandler(2, 0))
	bus := NewBus(port)
	var delays []time.Duration
	bus.Sleep = noSleep(&delays)
	nodes, err := bus.Open(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	for n, node := range nodes {
		require.Equal(t, byte(n+1), node.ID)
		require.Equal(t, "ICCA", node.Version.ProductCode())
		require.Equal(t, byte(n+1), node.Version.Revision)
		require.Equal(t, "Jul 19 2018", node.Version.Date)
		require.Equal(t, "10:21:00", node.Version.Time)
	}
	require.Equal(t, nodes, bus.Nodes())
	require.Equal(t, []time.Duration{NodeDelay, NodeDelay, NodeDelay, NodeDelay}, delays)

	var codes []Code
	var addrs []byte
	for _, req := range port.reqs {
		codes = append(codes, req.Code)
		addrs = append(addrs, req.Addr)
	}
	require.Equal(t, []Code{CmdAssignAddrs, CmdGetVersion, CmdGetVersion, CmdStartUp, CmdStartUp}, codes)
	require.Equal(t, []byte{BroadcastAddr, 1, 2, 1, 2}, addrs)
}

func TestOpenNoNodes(t *testing.T) {
	port := newScriptPort(t, nodeHandler(0, 0))
	bus := NewBus(port)
	var delays []time.Duration
	bus.Sleep = noSleep(&delays)
	_, err := bus.Open(context.Background())
	require.ErrorIs(t, err, ErrEnumerationFailed)
	var bringupErr *BringupError
	require.ErrorAs(t, err, &bringupErr)
	require.Equal(t, StepEnumerate, bringupErr.Step)
	require.Len(t, port.reqs, 1)
	require.Empty(t, delays)
	require.Empty(t, bus.Nodes())
}

func TestOpenVersionFailure(t *testing.T) {
	port := newScriptPort(t, nodeHandler(3, 2))
	bus := NewBus(port)
	var delays []time.Duration
	bus.Sleep = noSleep(&delays)
	_, err := bus.Open(context.Background())
	require.ErrorIs(t, err, ErrResponseMismatch)
	var bringupErr *BringupError
	require.ErrorAs(t, err, &bringupErr)
	require.Equal(t, StepVersion, bringupErr.Step)
	require.Equal(t, byte(2), bringupErr.Node)
	for _, req := range port.reqs {
		require.NotEqual(t, CmdStartUp, req.Code)
	}
}

func TestDecodeVersion(t *testing.T) {
	_, err := DecodeVersion([]byte{0, 0, 0, 3, 0, 1})
	require.ErrorIs(t, err, ErrShortResponse)

	ver, err := DecodeVersion([]byte{0, 0, 0, 3, 1, 1, 2, 3, 'I', 'C', 'C', 'B'})
	require.NoError(t, err)
	require.Equal(t, uint32(3), ver.Type)
	require.Equal(t, "ICCB v1.2.3", ver.String())
	require.Empty(t, ver.Date)
}
