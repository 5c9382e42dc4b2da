// Package passthrough bridges the serial port of a node chain to a TCP
// client, so host software can drive the nodes directly.
package passthrough

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
)

// Bridge forwards bytes between Stream and one TCP client at a time.
// Bytes from Stream without a client are dropped.
type Bridge struct {
	Addr   string
	Stream io.ReadWriter

	lock   sync.Mutex
	client net.Conn
}

// New creates a Bridge.
func New(addr string, stream io.ReadWriter) *Bridge {
	return &Bridge{Addr: addr, Stream: stream}
}

// AddToLoop implements LoopAdder.
func (b *Bridge) AddToLoop(l *fx.Loop) {
	l.AddRunnable(b)
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.Addr)
	if err != nil {
		return err
	}
	if closer, ok := b.Stream.(io.Closer); ok {
		defer closer.Close()
	}
	return b.Serve(ctx, ln)
}

// Serve accepts clients from ln until ctx is done.
func (b *Bridge) Serve(ctx context.Context, ln net.Listener) error {
	go b.pump()
	glog.Infof("passthrough serving at %s", ln.Addr())
	return fx.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			b.serveConn(ctx, conn)
		}
	})
}

// Client returns the remote address of the connected client.
func (b *Bridge) Client() net.Addr {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.client == nil {
		return nil
	}
	return b.client.RemoteAddr()
}

func (b *Bridge) serveConn(ctx context.Context, conn net.Conn) {
	glog.Infof("passthrough client %s connected", conn.RemoteAddr())
	b.lock.Lock()
	b.client = conn
	b.lock.Unlock()
	err := fx.RunWithContextCloser(ctx, conn, func() error {
		_, err := io.Copy(b.Stream, conn)
		return err
	})
	b.lock.Lock()
	b.client = nil
	b.lock.Unlock()
	glog.Infof("passthrough client %s disconnected: %v", conn.RemoteAddr(), err)
}

func (b *Bridge) pump() {
	buf := make([]byte, 256)
	for {
		n, err := b.Stream.Read(buf)
		if n > 0 {
			b.lock.Lock()
			if b.client != nil {
				if _, werr := b.client.Write(buf[:n]); werr != nil {
					glog.V(1).Infof("passthrough write: %v", werr)
				}
			} else {
				glog.V(2).Infof("passthrough drop % x", buf[:n])
			}
			b.lock.Unlock()
		}
		if err != nil {
			glog.V(1).Infof("passthrough stream closed: %v", err)
			return
		}
	}
}
