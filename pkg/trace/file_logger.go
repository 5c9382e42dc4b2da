package trace

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/robotalks/wavepass.go/pkg/acio"
)

// FileLogger appends bus events to a file. Every FileLogger is a new
// session with its own ID. It's safe for concurrent use.
type FileLogger struct {
	session string
	file    *os.File
	encoder *cbor.Encoder
	lock    sync.Mutex
	closed  bool
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := &FileLogger{
		session: uuid.NewString(),
		file:    f,
		encoder: NewEncoder(f),
	}
	glog.Infof("tracing session %s to %s", l.session, path)
	return l, nil
}

// Session returns the session ID stamped on events.
func (l *FileLogger) Session() string {
	return l.session
}

// Log appends an event. Events are dropped after Close.
func (l *FileLogger) Log(ev Event) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		return
	}
	if err := l.encoder.Encode(ev); err != nil {
		glog.Warningf("trace: %v", err)
	}
}

// TraceFrame implements acio.Tracer.
func (l *FileLogger) TraceFrame(dir acio.Direction, frame []byte, msg *acio.Message, err error) {
	l.Log(NewEvent(l.session, dir, frame, msg, err))
}

// Close closes the file. It's safe to call Close multiple times.
func (l *FileLogger) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ acio.Tracer = (*FileLogger)(nil)
