// Package sim emulates a chain of ACIO card reader nodes behind a serial
// port, for tests and dry runs without hardware.
package sim

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/wavepass.go/pkg/acio"
)

// Chain is an io.ReadWriteCloser speaking the ACIO protocol on behalf of
// its nodes.
type Chain struct {
	Nodes []*Node

	inCh   chan byte
	outCh  chan []byte
	rest   []byte
	done   chan struct{}
	once   sync.Once
	cancel func()
}

// NewChain creates a Chain and starts serving requests.
func NewChain(nodes ...*Node) *Chain {
	c := &Chain{
		Nodes: nodes,
		inCh:  make(chan byte, acio.MaxFrameSize),
		outCh: make(chan []byte, 16),
		done:  make(chan struct{}),
	}
	var ctx context.Context
	ctx, c.cancel = context.WithCancel(context.Background())
	go c.serve(ctx)
	return c
}

// Read implements io.Reader.
func (c *Chain) Read(p []byte) (int, error) {
	if len(c.rest) == 0 {
		select {
		case b := <-c.outCh:
			c.rest = b
		case <-c.done:
			return 0, io.EOF
		}
	}
	n := copy(p, c.rest)
	c.rest = c.rest[n:]
	return n, nil
}

// Write implements io.Writer.
func (c *Chain) Write(p []byte) (int, error) {
	for n, b := range p {
		select {
		case c.inCh <- b:
		case <-c.done:
			return n, io.ErrClosedPipe
		}
	}
	return len(p), nil
}

// Close implements io.Closer.
func (c *Chain) Close() error {
	c.once.Do(func() {
		c.cancel()
		close(c.done)
	})
	return nil
}

// readByte reads the next request byte.
func (c *Chain) readByte(ctx context.Context) (byte, error) {
	select {
	case b := <-c.inCh:
		return b, nil
	case <-ctx.Done():
		return 0, io.EOF
	}
}

func (c *Chain) send(b []byte) {
	select {
	case c.outCh <- b:
	case <-c.done:
	}
}

// pushback returns a buffered byte before reading from the chain.
type pushback struct {
	c       *Chain
	pending []byte
}

func (r *pushback) ReadByteContext(ctx context.Context) (byte, error) {
	if len(r.pending) > 0 {
		b := r.pending[0]
		r.pending = r.pending[1:]
		return b, nil
	}
	return r.c.readByte(ctx)
}

func (c *Chain) serve(ctx context.Context) {
	r := &pushback{c: c}
	dec := acio.NewDecoder(r)
	for {
		b, err := c.readByte(ctx)
		if err != nil {
			return
		}
		if b == acio.SOF {
			c.send([]byte{acio.SOF})
			continue
		}
		r.pending = append(r.pending, b)
		data, err := dec.Decode(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			glog.Warningf("sim: drop frame: %v", err)
			continue
		}
		req, err := acio.ParseMessage(data)
		if err != nil {
			glog.Warningf("sim: drop message: %v", err)
			continue
		}
		resp := c.handle(req)
		if resp == nil {
			continue
		}
		frame, err := resp.Frame()
		if err != nil {
			glog.Errorf("sim: encode %s: %v", resp.Code, err)
			continue
		}
		c.send(frame)
	}
}

func (c *Chain) handle(req *acio.Message) *acio.Message {
	resp := &acio.Message{Addr: req.Addr, Code: req.Code, Seq: req.Seq}
	if req.Addr == acio.BroadcastAddr {
		if req.Code != acio.CmdAssignAddrs {
			return nil
		}
		resp.Payload = []byte{byte(len(c.Nodes))}
		return resp
	}
	if int(req.Addr) > len(c.Nodes) {
		glog.Warningf("sim: no node %d", req.Addr)
		return nil
	}
	resp.Payload = c.Nodes[req.Addr-1].handle(req)
	return resp
}
