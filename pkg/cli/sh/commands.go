package sh

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/wavepass.go/pkg/acio"
	"github.com/robotalks/wavepass.go/pkg/iccx"
	"github.com/robotalks/wavepass.go/pkg/sim"
)

var (
	// OpenCmd opens a port.
	OpenCmd = ishell.Cmd{
		Name: "open",
		Help: "open [PORT] - open serial device or sim://N",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			conf := *s.Config
			if len(c.Args) > 0 {
				conf.Port = c.Args[0]
			}
			if err := s.Open(&conf); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the port.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "close the opened port",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// ResetCmd resynchronizes the link.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "resynchronize framing with the nodes",
		Func: MustBeOpen(func(c *ishell.Context, s *Session) {
			ctx, cancel := Context()
			defer cancel()
			if err := s.Bus.Reset(ctx); err != nil {
				c.Err(err)
			}
		}),
	}

	// NodesCmd brings up the bus and lists the nodes.
	NodesCmd = ishell.Cmd{
		Name: "nodes",
		Help: "bring up the bus and list nodes",
		Func: MustBeOpen(func(c *ishell.Context, s *Session) {
			ctx, cancel := Context()
			defer cancel()
			nodes, err := s.Bus.Open(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			s.ctls = make(map[byte]*iccx.Controller)
			Output(c, nodes, FormatNodes(nodes))
		}),
	}

	// InitCmd starts the session with a node.
	InitCmd = ishell.Cmd{
		Name: "init",
		Help: "init NODE - start the card session",
		Func: WithNode(func(c *ishell.Context, s *Session, ctl *iccx.Controller) {
			ctx, cancel := Context()
			defer cancel()
			if err := ctl.Init(ctx); err != nil {
				c.Err(err)
			}
		}),
	}

	// ScanCmd reads the card.
	ScanCmd = ishell.Cmd{
		Name: "scan",
		Help: "scan NODE - read the card in reach",
		Func: WithNode(func(c *ishell.Context, s *Session, ctl *iccx.Controller) {
			ctx, cancel := Context()
			defer cancel()
			card, err := ctl.ScanCard(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			Output(c, card, FormatCard(card))
		}),
	}

	// PollCmd polls the raw state.
	PollCmd = ishell.Cmd{
		Name: "poll",
		Help: "poll NODE - show the raw slot state",
		Func: WithNode(func(c *ishell.Context, s *Session, ctl *iccx.Controller) {
			ctx, cancel := Context()
			defer cancel()
			state, err := ctl.GetState(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			Output(c, state, FormatState(state, ctl.Phase()))
		}),
	}

	// EjectCmd ejects the card.
	EjectCmd = ishell.Cmd{
		Name: "eject",
		Help: "eject NODE - eject the card and reopen the slot",
		Func: WithNode(func(c *ishell.Context, s *Session, ctl *iccx.Controller) {
			ctx, cancel := Context()
			defer cancel()
			if err := ctl.EjectCard(ctx, iccx.SlotOpen); err != nil {
				c.Err(err)
			}
		}),
	}

	// SlotCmd sends a slot command.
	SlotCmd = ishell.Cmd{
		Name: "slot",
		Help: "slot NODE open|close|eject",
		Func: WithNode(func(c *ishell.Context, s *Session, ctl *iccx.Controller) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("slot command required"))
				return
			}
			cmd, ok := iccx.ParseSlotCommand(c.Args[1])
			if !ok {
				c.Err(fmt.Errorf("invalid slot command: %q", c.Args[1]))
				return
			}
			ctx, cancel := Context()
			defer cancel()
			if err := ctl.SetSlot(ctx, cmd); err != nil {
				c.Err(err)
			}
		}),
	}

	// TraceCmd prints frames crossing the bus.
	TraceCmd = ishell.Cmd{
		Name: "trace",
		Help: "trace on|off - print frames crossing the bus",
		Func: MustBeOpen(func(c *ishell.Context, s *Session) {
			switch {
			case len(c.Args) == 0 || c.Args[0] == "on":
				s.Bus.Tracer = &printTracer{sh: ShellFrom(c).Shell}
			case c.Args[0] == "off":
				s.Bus.Tracer = nil
			default:
				c.Err(fmt.Errorf("on or off expected"))
			}
		}),
	}

	// SimCmd manipulates an emulated node.
	SimCmd = ishell.Cmd{
		Name: "sim",
		Help: "sim NODE insert UID [TYPE] | invalid | remove | keys HEX",
		Func: MustBeOpen(func(c *ishell.Context, s *Session) {
			if s.Chain == nil {
				c.Err(fmt.Errorf("not a sim port"))
				return
			}
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("NODE and action required"))
				return
			}
			node, err := ParseNode(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if int(node) > len(s.Chain.Nodes) {
				c.Err(fmt.Errorf("no such node: %d", node))
				return
			}
			if err := SimAction(s.Chain.Nodes[node-1], c.Args[1], c.Args[2:]...); err != nil {
				c.Err(err)
			}
		}),
	}
)

// SimAction applies a sim command to an emulated node.
func SimAction(n *sim.Node, action string, args ...string) error {
	switch action {
	case "insert":
		if len(args) < 1 {
			return fmt.Errorf("UID required")
		}
		uid, err := ParseUID(args[0])
		if err != nil {
			return err
		}
		var cardType byte
		if len(args) > 1 {
			val, err := strconv.ParseUint(args[1], 0, 8)
			if err != nil {
				return fmt.Errorf("invalid card type: %q", args[1])
			}
			cardType = byte(val)
		}
		n.InsertCard(cardType, uid)
	case "invalid":
		n.InsertInvalid()
	case "remove":
		n.RemoveCard()
	case "keys":
		if len(args) < 1 {
			return fmt.Errorf("keys required")
		}
		val, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 16)
		if err != nil {
			return fmt.Errorf("invalid keys: %q", args[0])
		}
		n.PressKeys(iccx.Keys(val))
	default:
		return fmt.Errorf("unknown action: %q", action)
	}
	return nil
}

// ParseUID parses a card UID of 16 hex digits.
func ParseUID(s string) (uid [8]byte, err error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(uid) {
		return uid, fmt.Errorf("invalid UID: %q", s)
	}
	copy(uid[:], b)
	return uid, nil
}

// FormatNodes formats enumerated nodes one per line.
func FormatNodes(nodes []acio.Node) string {
	if len(nodes) == 0 {
		return "no nodes"
	}
	lines := make([]string, len(nodes))
	for n, node := range nodes {
		lines[n] = fmt.Sprintf("%d: %s", node.ID, node.Version)
	}
	return strings.Join(lines, "\n")
}

// FormatCard formats a scanned card.
func FormatCard(card iccx.Card) string {
	var str string
	if card.Present() {
		str = fmt.Sprintf("card type=%d uid=%s", card.Type, card.ID())
	} else {
		str = "no card"
	}
	if card.Keys != 0 {
		str += " keys=" + card.Keys.String()
	}
	return str
}

// FormatState formats a polled state.
func FormatState(state iccx.State, phase iccx.SlotPhase) string {
	return fmt.Sprintf("status=%02x sensor=%02x type=%02x uid=%X keys=%04x phase=%s",
		byte(state.Status), byte(state.Sensor), state.CardType, state.UID[:], uint16(state.Keys), phase)
}

type printTracer struct {
	sh *ishell.Shell
}

func (t *printTracer) TraceFrame(dir acio.Direction, frame []byte, msg *acio.Message, err error) {
	t.sh.Println(FormatFrame(dir, frame, msg, err))
}

// FormatFrame formats a traced frame.
func FormatFrame(dir acio.Direction, frame []byte, msg *acio.Message, err error) string {
	str := fmt.Sprintf("%s % X", dir, frame)
	if msg != nil {
		str += " " + msg.String()
	}
	if err != nil {
		str += " error: " + err.Error()
	}
	return str
}
