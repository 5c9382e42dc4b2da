package acio

import "context"

// Frame markers.
const (
	SOF byte = 0xaa
	ESC byte = 0xff
)

// MaxFrameSize is the capacity of the send buffer, SOF and checksum included.
const MaxFrameSize = 512

func needsEscape(b byte) bool {
	return b == SOF || b == ESC
}

func appendEscaped(buf []byte, b byte) []byte {
	if needsEscape(b) {
		return append(buf, ESC, ^b)
	}
	return append(buf, b)
}

// Checksum calculates the 8-bit sum of the bytes.
func Checksum(p []byte) (sum byte) {
	for _, b := range p {
		sum += b
	}
	return
}

// EncodeFrame escapes a message and appends the checksum.
func EncodeFrame(msg []byte) ([]byte, error) {
	frame := make([]byte, 0, len(msg)+len(msg)/8+4)
	frame = append(frame, SOF)
	for _, b := range msg {
		frame = appendEscaped(frame, b)
	}
	frame = appendEscaped(frame, Checksum(msg))
	if len(frame) > MaxFrameSize {
		return nil, ErrFrameOverflow
	}
	return frame, nil
}

// ByteReader reads one byte, blocking until it's available.
type ByteReader interface {
	ReadByteContext(ctx context.Context) (byte, error)
}

// Decoder reassembles frames from a byte stream.
type Decoder struct {
	r   ByteReader
	buf []byte
	raw []byte
}

// NewDecoder creates a Decoder.
func NewDecoder(r ByteReader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 0, MaxFrameSize),
		raw: make([]byte, 0, MaxFrameSize),
	}
}

// Raw returns the wire bytes of the last decoded frame, leading SOF
// bytes included.
func (d *Decoder) Raw() []byte {
	return d.raw
}

func (d *Decoder) readRaw(ctx context.Context) (byte, error) {
	b, err := d.r.ReadByteContext(ctx)
	if err == nil {
		d.raw = append(d.raw, b)
	}
	return b, err
}

// Decode reads the next frame and returns the message with the checksum
// verified and stripped. The returned slice is only valid until the next
// call to Decode.
func (d *Decoder) Decode(ctx context.Context) ([]byte, error) {
	d.buf, d.raw = d.buf[:0], d.raw[:0]

	b, err := d.readRaw(ctx)
	for err == nil && b == SOF {
		b, err = d.readRaw(ctx)
	}
	if err != nil {
		return nil, err
	}

	size := headerSize
	for {
		if b == ESC {
			if b, err = d.readRaw(ctx); err != nil {
				return nil, err
			}
			b = ^b
		}
		d.buf = append(d.buf, b)
		if len(d.buf) == headerSize {
			size = headerSize + int(b) + 1
		}
		if len(d.buf) >= size && len(d.buf) > headerSize {
			break
		}
		if b, err = d.readRaw(ctx); err != nil {
			return nil, err
		}
	}

	msg, sum := d.buf[:len(d.buf)-1], d.buf[len(d.buf)-1]
	if actual := Checksum(msg); actual != sum {
		return nil, &ChecksumError{Expected: sum, Actual: actual}
	}
	return msg, nil
}
