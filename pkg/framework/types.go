package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Message is passed between runners and controllers through the loop.
type Message interface {
	// NewMessage creates an empty message of the same type.
	NewMessage() Message
}

// Controller is invoked once per loop iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc is the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// Stage orders controllers within an iteration.
type Stage int

// Stages, run in this order.
const (
	// StageSense handles inputs like buttons and remote commands.
	StageSense Stage = iota
	// StageControl drives the hardware.
	StageControl
	// StageReport publishes results.
	StageReport

	stageCount
)

// ControlContext is the context of the current iteration.
type ControlContext interface {
	// Context retrieves context.Context.
	Context() context.Context
	// Time is when the iteration started.
	Time() time.Time
	// Stage is the stage being run.
	Stage() Stage
	// Messages retrieves the messages of this iteration.
	Messages() MessageStore

	LoopControl
}

// LoopControl exposes access to the loop from runners.
type LoopControl interface {
	// PostMessage enqueues the message for the next iteration.
	PostMessage(Message)
	// TriggerNext runs the next iteration without waiting for the
	// interval.
	TriggerNext()
}

// MessageStore provides read/write access to the messages of an iteration.
type MessageStore interface {
	// ProcessMessages uses a processor to process all messages.
	ProcessMessages(MessageProcessor)

	MessageAppender
}

// MessageAppender appends messages to the store.
type MessageAppender interface {
	// AddMessages appends messages visible to the controllers run after
	// the current one.
	AddMessages(msgs ...Message)
}

// MessageProcessor is used by MessageStore to process messages.
type MessageProcessor interface {
	ProcessMessage(MessageProcessingContext)
}

// ProcessMessageFunc is the func form of MessageProcessor.
type ProcessMessageFunc func(MessageProcessingContext)

// ProcessMessage implements MessageProcessor.
func (f ProcessMessageFunc) ProcessMessage(mc MessageProcessingContext) {
	f(mc)
}

// MessageProcessingContext provides context for current message.
type MessageProcessingContext interface {
	// CurrentMessage gets the current message being processed.
	CurrentMessage() Message
	// MessageTaken removes the message from the store.
	MessageTaken()
	// StopProcessing skips the remaining messages.
	StopProcessing()

	MessageAppender
}
