package main

import (
	"context"
	"flag"
	"log"
	"os"
	"reflect"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/msgs"
	"github.com/robotalks/wavepass.go/pkg/upstream"
	"github.com/robotalks/wavepass.go/pkg/upstream/mqtt"
)

var (
	mqttURL  = "mqtt://localhost:1883/wavepass/"
	discover bool
	eject    string
	node     uint
)

func init() {
	if val := os.Getenv("WAVEPASS_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.BoolVar(&discover, "discover", discover, "List readers and exit.")
	flag.StringVar(&eject, "eject", eject, "Eject the card of reader ID and exit.")
	flag.UintVar(&node, "node", node, "Node to eject, 0 for all.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	mon, err := mqtt.NewMonitor(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	runner := fx.NewRunner().HandleSignals()
	ctx := runner.Context
	if err := mon.Connect(ctx); err != nil {
		log.Fatalln(err)
	}
	defer mon.Close()

	switch {
	case discover:
		readers, err := mon.Discover(ctx, mqtt.DefaultDiscoverTimeout)
		if err != nil {
			log.Fatalln(err)
		}
		for _, info := range readers {
			log.Printf("%s: %s port=%s", info.Ref.Name(), info.Meta.Description, info.Meta.Port)
		}
	case eject != "":
		ref := upstream.ReaderRef{Type: upstream.DefaultReaderType, ID: eject}
		if err := mon.Eject(ctx, ref, uint32(node)); err != nil {
			log.Fatalln(err)
		}
	default:
		err := mon.Watch(ctx, func(ref upstream.ReaderRef, msg fx.Message) {
			log.Printf("%s: [%s] %s", ref.Name(),
				reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
				msg.(msgs.SerializableMessage).Serializable().String())
		})
		if err != nil && err != context.Canceled {
			log.Fatalln(err)
		}
	}
}
