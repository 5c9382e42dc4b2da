// Package sh provides the interactive diagnostic shell of an ACIO bus.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/wavepass.go/pkg/acio"
	"github.com/robotalks/wavepass.go/pkg/env"
	"github.com/robotalks/wavepass.go/pkg/iccx"
	"github.com/robotalks/wavepass.go/pkg/sim"
)

// CommandTimeout bounds a single shell command.
const CommandTimeout = 10 * time.Second

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell   *ishell.Shell
	Config  *env.Config
	Session *Session
}

// Session is an opened port with the bus on it.
type Session struct {
	Name  string
	Port  *acio.StreamPort
	Bus   *acio.Bus
	Chain *sim.Chain

	ctls   map[byte]*iccx.Controller
	newCtl func(byte) *iccx.Controller
}

const (
	shellKey       = "$shell"
	closedPrompt   = "[closed] > "
	defaultTimeout = CommandTimeout
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&ResetCmd,
		&NodesCmd,
		&InitCmd,
		&ScanCmd,
		&PollCmd,
		&EjectCmd,
		&SlotCmd,
		&TraceCmd,
		&SimCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requiring an opened port.
func MustBeOpen(fn func(c *ishell.Context, s *Session)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c).Session
		if s == nil {
			c.Err(fmt.Errorf("port not opened"))
			return
		}
		fn(c, s)
	}
}

// WithNode wraps command func taking NODE as the first argument.
func WithNode(fn func(c *ishell.Context, s *Session, ctl *iccx.Controller)) func(c *ishell.Context) {
	return MustBeOpen(func(c *ishell.Context, s *Session) {
		if len(c.Args) < 1 {
			c.Err(fmt.Errorf("NODE required"))
			return
		}
		node, err := ParseNode(c.Args[0])
		if err != nil {
			c.Err(err)
			return
		}
		fn(c, s, s.Controller(node))
	})
}

// ParseNode parses a node address, starting from 1.
func ParseNode(arg string) (byte, error) {
	val, err := strconv.ParseUint(arg, 0, 8)
	if err != nil || val == 0 {
		return 0, fmt.Errorf("invalid NODE: %q", arg)
	}
	return byte(val), nil
}

// Context creates the context of a command.
func Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultTimeout)
}

// Output prints v in JSON when requested, otherwise the text.
func Output(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Open opens the port of the config.
func (s *Shell) Open(conf *env.Config) error {
	port, err := conf.OpenPort()
	if err != nil {
		return err
	}
	sess := &Session{
		Name: conf.Port,
		Port: port,
		Bus:  acio.NewBus(port),
		ctls: make(map[byte]*iccx.Controller),
	}
	sess.Chain, _ = port.ReadWriter.(*sim.Chain)
	factory, err := conf.NewCipher()
	if err != nil {
		port.Close()
		return err
	}
	sess.newCtl = func(node byte) *iccx.Controller {
		ctl := iccx.NewController(sess.Bus, node)
		ctl.Encrypted = conf.Encrypted
		ctl.NewCipher = factory
		ctl.EjectDelay = conf.EjectDelay
		return ctl
	}
	s.Close()
	s.Session = sess
	name := sess.Name
	if name == "" {
		name = "serial"
	}
	s.Shell.SetPrompt(fmt.Sprintf("[%s] > ", name))
	return nil
}

// Close closes the opened port.
func (s *Shell) Close() {
	if s.Session != nil {
		s.Session.Port.Close()
		s.Session = nil
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Controller returns the session controller of a node.
func (s *Session) Controller(node byte) *iccx.Controller {
	ctl := s.ctls[node]
	if ctl == nil {
		ctl = s.newCtl(node)
		s.ctls[node] = ctl
	}
	return ctl
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.Config.Port != "" {
		if err := s.Open(s.Config); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.Port, err)
		}
	}
	defer s.Close()
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.MustLoad()).Run(flag.Args()...)
}
