package acio

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameOverflow indicates the escaped frame exceeds MaxFrameSize or
	// the payload doesn't fit the length field.
	ErrFrameOverflow = errors.New("frame overflow")
	// ErrChecksum indicates a received frame failed checksum verification.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrResponseMismatch indicates the response doesn't belong to the request.
	ErrResponseMismatch = errors.New("response mismatch")
	// ErrShortResponse indicates the response carries less payload than expected.
	ErrShortResponse = errors.New("short response")
	// ErrShortMessage indicates a decoded frame is shorter than a message header.
	ErrShortMessage = errors.New("short message")
	// ErrTimeout indicates no byte arrived within the port read deadline.
	ErrTimeout = errors.New("read timeout")
	// ErrEnumerationFailed indicates no node answered address assignment.
	ErrEnumerationFailed = errors.New("enumeration failed")
)

// ChecksumError reports the checksums of a corrupted frame.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %02x, got %02x", e.Expected, e.Actual)
}

// Is matches ErrChecksum.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksum
}

// ResponseMismatchError reports a response carrying a different code.
type ResponseMismatchError struct {
	Request  Code
	Response Code
}

// Error implements error.
func (e *ResponseMismatchError) Error() string {
	return fmt.Sprintf("response mismatch: sent %s, received %s", e.Request, e.Response)
}

// Is matches ErrResponseMismatch.
func (e *ResponseMismatchError) Is(target error) bool {
	return target == ErrResponseMismatch
}

// ShortResponseError reports a response with insufficient payload.
type ShortResponseError struct {
	Code     Code
	Expected int
	Actual   int
}

// Error implements error.
func (e *ShortResponseError) Error() string {
	return fmt.Sprintf("short response to %s: expected %d bytes, got %d", e.Code, e.Expected, e.Actual)
}

// Is matches ErrShortResponse.
func (e *ShortResponseError) Is(target error) bool {
	return target == ErrShortResponse
}

// BringupStep names a step of the bring-up sequence.
type BringupStep string

// Bring-up steps.
const (
	StepReset     BringupStep = "reset"
	StepEnumerate BringupStep = "enumerate"
	StepVersion   BringupStep = "version"
	StepStartUp   BringupStep = "startup"
)

// BringupError wraps the failure of a bring-up step.
type BringupError struct {
	Step BringupStep
	Node byte
	Err  error
}

// Error implements error.
func (e *BringupError) Error() string {
	if e.Node != 0 {
		return fmt.Sprintf("bring-up %s node %d: %v", e.Step, e.Node, e.Err)
	}
	return fmt.Sprintf("bring-up %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *BringupError) Unwrap() error {
	return e.Err
}
