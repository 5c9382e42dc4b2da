package env

import (
	"fmt"
	"io"
	"log"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/trace"
	"github.com/robotalks/wavepass.go/pkg/upstream"
	"github.com/robotalks/wavepass.go/pkg/upstream/mqtt"
	"github.com/robotalks/wavepass.go/pkg/upstream/websocket"
)

// Env is the upstream side of a reader process.
type Env struct {
	Config    *Config
	Info      upstream.ReaderInfo
	Publisher *upstream.Mux
	Reporter  *upstream.Reporter
	// Tracer is set when a trace file is configured.
	Tracer *trace.FileLogger
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	if c.ID == "" {
		c.ID = MachineID()
	}
	env := &Env{
		Config:    c,
		Info:      c.ReaderInfo(),
		Publisher: (&upstream.Mux{}).Add(upstream.LogPublisher{}),
	}
	if !env.Info.Ref.IsValid() {
		return nil, fmt.Errorf("reader type and id must be specified")
	}
	if c.MQTTBrokerURL != "" {
		pub, err := mqtt.NewPublisher(c.MQTTBrokerURL, env.Info)
		if err != nil {
			return nil, fmt.Errorf("create MQTT publisher error: %w", err)
		}
		env.Publisher.Add(pub)
	}
	if c.WebsocketAddr != "" {
		env.Publisher.Add(websocket.NewHub(c.WebsocketAddr))
	}
	if c.TraceFile != "" {
		tracer, err := trace.NewFileLogger(c.TraceFile)
		if err != nil {
			return nil, fmt.Errorf("open trace error: %w", err)
		}
		env.Tracer = tracer
	}
	env.Reporter = upstream.NewReporter(env.Publisher)
	env.Reporter.Cooldown = c.ReportCooldown
	env.Reporter.Interval = c.ReportInterval
	return env, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

// AddToLoop adds the reporter and publishers to loop.
func (e *Env) AddToLoop(l *fx.Loop) {
	l.Add(e.Reporter)
}

// Close implements io.Closer.
func (e *Env) Close() error {
	if e.Tracer != nil {
		return e.Tracer.Close()
	}
	return nil
}

var _ io.Closer = (*Env)(nil)
