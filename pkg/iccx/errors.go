package iccx

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized indicates the session must be initialized first.
	ErrNotInitialized = errors.New("session not initialized")
	// ErrNoCipher indicates encrypted mode has no cipher available.
	ErrNoCipher = errors.New("no cipher")
	// ErrShortState indicates a poll returned less than a full state block.
	ErrShortState = errors.New("short state")
	// ErrCRCMismatch indicates a decrypted poll block failed its CRC.
	ErrCRCMismatch = errors.New("crc mismatch")
)

// CRCError reports the CRCs of a corrupted poll block.
type CRCError struct {
	Expected uint16
	Actual   uint16
}

// Error implements error.
func (e *CRCError) Error() string {
	return fmt.Sprintf("crc mismatch: expected %04x, got %04x", e.Expected, e.Actual)
}

// Is matches ErrCRCMismatch.
func (e *CRCError) Is(target error) bool {
	return target == ErrCRCMismatch
}
