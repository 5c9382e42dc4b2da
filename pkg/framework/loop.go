package framework

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the loop interval when none is set.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers stage by stage on every tick, with runners in
// the background feeding it messages.
type Loop struct {
	Interval time.Duration

	controllers [stageCount][]Controller
	runners     []Runnable

	messages messageList
	lock     sync.Mutex
	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	*Loop
	ctx      context.Context
	time     time.Time
	stage    Stage
	messages messageList
}

type messageList struct {
	head *messageItem
	tail *messageItem
}

type messageItem struct {
	msg  Message
	next *messageItem
}

func (l *messageList) append(item *messageItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
}

func (l *messageList) take() (lst messageList) {
	lst, l.head, l.tail = *l, nil, nil
	return
}

func (l *messageList) concat(lst *messageList) {
	if lst.head == nil {
		return
	}
	if l.head == nil {
		l.head = lst.head
	} else {
		l.tail.next = lst.head
	}
	l.tail = lst.tail
}

type loopCtxKey struct{}

// LoopCtlFrom gets LoopControl from the context passed to runners. It
// returns nil if the context doesn't come from a Loop.
func LoopCtlFrom(ctx context.Context) LoopControl {
	ctl, _ := ctx.Value(loopCtxKey{}).(LoopControl)
	return ctl
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a stage. Controllers which are
// also Runnable are started with the loop.
func (l *Loop) AddController(stage Stage, ctls ...Controller) *Loop {
	l.controllers[stage] = append(l.controllers[stage], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds background runners.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.lock.Lock()
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	l.lock.Unlock()

	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey{}, LoopControl(l)))
	runner.Go(l.runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.RunIteration(ctx)
		case <-l.wakeUpCh:
			l.RunIteration(ctx)
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages.append(&messageItem{msg: msg})
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	l.lock.Lock()
	ch := l.wakeUpCh
	l.lock.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// RunIteration runs all controllers once with the messages posted so
// far. Messages not taken by any controller are dropped.
func (l *Loop) RunIteration(ctx context.Context) {
	iter := &loopIteration{Loop: l, time: time.Now()}
	l.lock.Lock()
	iter.messages = l.messages.take()
	l.lock.Unlock()
	iter.ctx = ctx
	for stage := Stage(0); stage < stageCount; stage++ {
		iter.stage = stage
		for _, ctl := range l.controllers[stage] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time          { return t.time }
func (t *loopIteration) Stage() Stage             { return t.stage }
func (t *loopIteration) Messages() MessageStore   { return t }

type messageContext struct {
	iter  *loopIteration
	item  *messageItem
	taken bool
	stop  bool
}

func (c *messageContext) CurrentMessage() Message     { return c.item.msg }
func (c *messageContext) MessageTaken()               { c.taken = true }
func (c *messageContext) StopProcessing()             { c.stop = true }
func (c *messageContext) AddMessages(msgs ...Message) { c.iter.AddMessages(msgs...) }

func (t *loopIteration) ProcessMessages(proc MessageProcessor) {
	var remains messageList
	msgs := t.messages.take()
	for msgs.head != nil {
		mctx := &messageContext{iter: t, item: msgs.head}
		msgs.head = msgs.head.next
		mctx.item.next = nil
		proc.ProcessMessage(mctx)
		if !mctx.taken {
			remains.append(mctx.item)
		}
		if mctx.stop {
			remains.concat(&msgs)
			break
		}
	}
	remains.concat(&t.messages)
	t.messages = remains
}

func (t *loopIteration) AddMessages(msgs ...Message) {
	for _, msg := range msgs {
		t.messages.append(&messageItem{msg: msg})
	}
}
