package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/robotalks/wavepass.go/pkg/button"
	"github.com/robotalks/wavepass.go/pkg/env"
	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/passthrough"
	"github.com/robotalks/wavepass.go/pkg/reader"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()

	conf := env.MustLoad()
	runner := fx.NewRunner().HandleSignals()
	loop := fx.NewLoop()

	if conf.Passthrough != "" {
		stream, err := conf.OpenStream()
		if err != nil {
			log.Fatalln(err)
		}
		loop.Add(passthrough.New(conf.Passthrough, stream)).RunOrFail(runner.Context)
		return
	}

	e := conf.MustNewEnv()
	defer e.Close()
	port, err := conf.OpenPort()
	if err != nil {
		log.Fatalln(err)
	}
	defer port.Close()
	rconf, err := reader.ConfigFrom(conf)
	if err != nil {
		log.Fatalln(err)
	}
	r := rconf.NewReader(conf.ID, port)
	r.PortName = conf.Port
	if e.Tracer != nil {
		r.Tracer = e.Tracer
	}
	loop.Add(e, r)
	if conf.EjectPin != "" {
		btn, err := button.Open(conf.EjectPin)
		if err != nil {
			log.Fatalln(err)
		}
		loop.Add(btn)
	}
	loop.RunOrFail(runner.Context)
}
