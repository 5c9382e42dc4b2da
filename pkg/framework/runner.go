package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Wait when a second stop signal arrives.
var ErrForcedExit = errors.New("forced exit")

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Runner runs multiple Runnables and collects errors.
type Runner struct {
	Context context.Context

	cancel  context.CancelFunc
	count   int
	lock    sync.Mutex
	errCh   chan error
	exitCh  chan struct{}
	exitOne sync.Once
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner derived from the specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		Context: ctx,
		cancel:  cancel,
		errCh:   make(chan error),
		exitCh:  make(chan struct{}),
	}
}

// HandleSignals handles CtrlC and SIGTERM from the system.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		r.cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		r.exitOne.Do(func() { close(r.exitCh) })
	}()
	return r
}

// Stop cancels the context of all Runnables.
func (r *Runner) Stop() {
	r.cancel()
}

// Go spawns Runnables with the runner context.
func (r *Runner) Go(runners ...Runnable) *Runner {
	for _, runner := range runners {
		r.lock.Lock()
		name := strconv.Itoa(r.count)
		r.count++
		r.lock.Unlock()
		if named, ok := runner.(Named); ok {
			name = named.Name()
		}
		go func(runner Runnable, name string) {
			glog.V(4).Infof("Runner[%s] started", name)
			err := runner.Run(r.Context)
			glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
			r.errCh <- err
		}(runner, name)
	}
	return r
}

// Wait waits until all Runnables stop and aggregates errors. The first
// Runnable to stop cancels the rest.
func (r *Runner) Wait() error {
	r.lock.Lock()
	count := r.count
	r.lock.Unlock()
	var errs AggregatedError
	for n := 0; n < count; n++ {
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case err := <-r.errCh:
			r.cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs a func which doesn't accept a context.
// onCancel is called only when the context is canceled, and must make fn
// return.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// RunWithContextCloser ensures closer.Close is called either on cancel or
// after fn returns.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var once sync.Once
	closeFn := func() { closer.Close() }
	err := RunWithContextCancel(ctx, func() { once.Do(closeFn) }, fn)
	once.Do(closeFn)
	return err
}
