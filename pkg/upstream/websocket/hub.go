// Package websocket streams reader events to websocket clients.
package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/msgs"
)

// DefaultPath is where the hub serves websocket connections.
const DefaultPath = "/events"

// Conn sends and receives binary packets over a websocket.
type Conn websocket.Conn

// ReadPacket reads a binary packet.
func (c *Conn) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(c), &pkt)
	return
}

// WritePacket writes a binary packet.
func (c *Conn) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(c), pkt)
}

type client struct {
	conn   *Conn
	sendCh chan []byte
}

// Hub implements upstream.Publisher by broadcasting typed events to all
// connected clients. Commands sent by clients are posted to the loop.
type Hub struct {
	Addr string
	Path string
	// Backlog is the number of packets queued per client before packets
	// get dropped for it.
	Backlog int

	lock    sync.Mutex
	clients map[*client]struct{}
	loopCtl fx.LoopControl
}

// NewHub creates a Hub listening on addr.
func NewHub(addr string) *Hub {
	return &Hub{Addr: addr, Path: DefaultPath, Backlog: 16}
}

// Publish implements upstream.Publisher.
func (h *Hub) Publish(_ context.Context, msg fx.Message) error {
	data, err := msgs.Encode(msg)
	if err != nil {
		return err
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.sendCh <- data:
		default:
			glog.Warningf("websocket %s: backlog full, event dropped", (*websocket.Conn)(c.conn).RemoteAddr())
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// AddToLoop implements LoopAdder.
func (h *Hub) AddToLoop(l *fx.Loop) {
	l.AddRunnable(h)
}

// Handler returns the http.Handler serving websocket clients.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serveConn)
}

// Run implements Runnable.
func (h *Hub) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.Addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, ln)
}

// Serve serves websocket clients on the listener until ctx is done.
// Commands from clients are posted to the loop running the hub.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	h.lock.Lock()
	h.loopCtl = fx.LoopCtlFrom(ctx)
	h.lock.Unlock()
	path := h.Path
	if path == "" {
		path = DefaultPath
	}
	mux := http.NewServeMux()
	mux.Handle(path, h.Handler())
	server := &http.Server{Handler: mux}
	glog.Infof("websocket serving at %s%s", ln.Addr(), path)
	return fx.RunWithContextCloser(ctx, server, func() error {
		return server.Serve(ln)
	})
}

func (h *Hub) addClient(conn *websocket.Conn) *client {
	backlog := h.Backlog
	if backlog <= 0 {
		backlog = 1
	}
	c := &client{conn: (*Conn)(conn), sendCh: make(chan []byte, backlog)}
	h.lock.Lock()
	if h.clients == nil {
		h.clients = make(map[*client]struct{})
	}
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	return c
}

func (h *Hub) removeClient(c *client) {
	h.lock.Lock()
	delete(h.clients, c)
	h.lock.Unlock()
}

func (h *Hub) serveConn(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	c := h.addClient(conn)
	defer h.removeClient(c)
	glog.Infof("websocket client %s connected", conn.Request().RemoteAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.readCommands(c)
	}()
	for {
		select {
		case data := <-c.sendCh:
			if err := c.conn.WritePacket(data); err != nil {
				glog.Warningf("websocket %s: %v", conn.Request().RemoteAddr, err)
				return
			}
		case err := <-errCh:
			glog.Infof("websocket client %s disconnected: %v", conn.Request().RemoteAddr, err)
			return
		}
	}
}

func (h *Hub) readCommands(c *client) error {
	for {
		pkt, err := c.conn.ReadPacket()
		if err != nil {
			return err
		}
		typed, err := msgs.DecodeTyped(pkt)
		if err != nil || !typed.IsCommand() {
			continue
		}
		msg, err := typed.Decode()
		if err != nil {
			glog.Warningf("websocket command: %v", err)
			continue
		}
		if cmd, ok := msg.(*msgs.EjectCommand); ok && cmd.Source == "" {
			cmd.Source = "websocket"
		}
		h.lock.Lock()
		loopCtl := h.loopCtl
		h.lock.Unlock()
		if loopCtl != nil {
			loopCtl.PostMessage(msg)
			loopCtl.TriggerNext()
		}
	}
}
