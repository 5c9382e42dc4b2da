// Package button watches the eject button wired to a GPIO pin.
package button

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
	"github.com/robotalks/wavepass.go/pkg/msgs"
)

// Source is set on the EjectCommand posted by the button.
const Source = "button"

// DefaultDebounce is how long the level must be stable.
const DefaultDebounce = 10 * time.Millisecond

// pollTimeout bounds waiting for an edge so cancellation is noticed.
const pollTimeout = 100 * time.Millisecond

// Button posts an EjectCommand to the loop when the active low button is
// pressed.
type Button struct {
	Pin      gpio.PinIn
	Debounce time.Duration
}

// Open initializes the host drivers and finds the pin by name, e.g.
// GPIO7.
func Open(name string) (*Button, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	return New(pin), nil
}

// New creates a Button on pin.
func New(pin gpio.PinIn) *Button {
	return &Button{Pin: pin, Debounce: DefaultDebounce}
}

// AddToLoop implements LoopAdder.
func (b *Button) AddToLoop(l *fx.Loop) {
	l.AddRunnable(b)
}

// Run implements Runnable.
func (b *Button) Run(ctx context.Context) error {
	if err := b.Pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return fmt.Errorf("button %s: %w", b.Pin, err)
	}
	defer b.Pin.Halt()
	loopCtl := fx.LoopCtlFrom(ctx)
	debounce := b.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	glog.Infof("eject button on %s", b.Pin)

	pressed, newPressed := false, false
	for ctx.Err() == nil {
		timeout := pollTimeout
		if newPressed != pressed {
			timeout = debounce
		}
		if b.Pin.WaitForEdge(timeout) {
			newPressed = b.Pin.Read() == gpio.Low
			continue
		}
		if newPressed == pressed {
			continue
		}
		if pressed = newPressed; pressed && loopCtl != nil {
			glog.V(1).Info("eject button pressed")
			loopCtl.PostMessage(&msgs.EjectCommand{Source: Source})
			loopCtl.TriggerNext()
		}
	}
	return ctx.Err()
}
