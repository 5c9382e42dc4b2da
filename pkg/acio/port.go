package acio

import (
	"context"
	"io"
	"sync"
	"time"
)

// Port is the byte level transport a Bus runs on.
type Port interface {
	ByteReader
	io.Writer
	// Available reports whether ReadByteContext can return without blocking.
	Available() bool
}

// StreamPort adapts an io.ReadWriter, e.g. a serial port, to Port.
type StreamPort struct {
	ReadWriter io.ReadWriter
	// ReadTimeout bounds a single ReadByteContext. Zero blocks until a byte
	// arrives or the context is done.
	ReadTimeout time.Duration

	once   sync.Once
	byteCh chan byte
	err    error
}

// NewStreamPort creates a StreamPort.
func NewStreamPort(rw io.ReadWriter) *StreamPort {
	return &StreamPort{ReadWriter: rw}
}

func (p *StreamPort) start() {
	p.once.Do(func() {
		p.byteCh = make(chan byte, MaxFrameSize)
		go p.readLoop()
	})
}

func (p *StreamPort) readLoop() {
	buf := make([]byte, 64)
	for {
		n, err := p.ReadWriter.Read(buf)
		for _, b := range buf[:n] {
			p.byteCh <- b
		}
		if err != nil {
			p.err = err
			close(p.byteCh)
			return
		}
	}
}

// ReadByteContext implements ByteReader.
func (p *StreamPort) ReadByteContext(ctx context.Context) (byte, error) {
	p.start()
	var timeout <-chan time.Time
	if p.ReadTimeout > 0 {
		timer := time.NewTimer(p.ReadTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case b, ok := <-p.byteCh:
		if !ok {
			return 0, p.err
		}
		return b, nil
	case <-timeout:
		return 0, ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Available implements Port.
func (p *StreamPort) Available() bool {
	p.start()
	return len(p.byteCh) > 0
}

// Write implements io.Writer.
func (p *StreamPort) Write(b []byte) (int, error) {
	return p.ReadWriter.Write(b)
}

// Close closes the underlying stream if it's an io.Closer.
func (p *StreamPort) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
