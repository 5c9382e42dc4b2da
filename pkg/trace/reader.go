package trace

import (
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/robotalks/wavepass.go/pkg/acio"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	Session   string
	Dir       acio.Direction
	Node      *byte
	Code      acio.Code
	ErrorOnly bool
	TimeStart time.Time
	TimeEnd   time.Time
}

// Match returns true if the event matches all criteria.
func (f *Filter) Match(ev Event) bool {
	if f.Session != "" && ev.Session != f.Session {
		return false
	}
	if f.Dir != 0 && ev.Dir != f.Dir {
		return false
	}
	if f.Node != nil && (ev.Message == nil || ev.Message.Addr != *f.Node) {
		return false
	}
	if f.Code != 0 && (ev.Message == nil || ev.Message.Code != f.Code) {
		return false
	}
	if f.ErrorOnly && ev.Error == "" {
		return false
	}
	if !f.TimeStart.IsZero() && ev.Time.Before(f.TimeStart) {
		return false
	}
	if !f.TimeEnd.IsZero() && !ev.Time.Before(f.TimeEnd) {
		return false
	}
	return true
}

// Reader iterates the events of a trace file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens a trace file reading all events.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a trace file reading the events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF.
func (r *Reader) Next() (Event, error) {
	for {
		var ev Event
		if err := r.decoder.Decode(&ev); err != nil {
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.Match(ev) {
			return ev, nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
