// Package upstream delivers reader events to consumers.
package upstream

import (
	"context"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
)

// Publisher delivers events to consumers.
type Publisher interface {
	Publish(context.Context, fx.Message) error
}

// ReaderRef identifies a reader.
type ReaderRef struct {
	// Type is the reader type.
	Type string
	// ID is unique ID of the device.
	ID string
}

// DefaultReaderType is the reader type used when none is configured.
const DefaultReaderType = "wavepass"

// Name retrieves the name from ref.
func (r ReaderRef) Name() string {
	return r.Type + "/" + r.ID
}

// IsValid indicates ReaderRef is valid.
func (r ReaderRef) IsValid() bool {
	return r.Type != "" && r.ID != ""
}

// ReaderMeta is published as retained metadata of a reader.
type ReaderMeta struct {
	Description string            `json:"description,omitempty"`
	Port        string            `json:"port,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// ReaderInfo provides information of a reader.
type ReaderInfo struct {
	Ref  ReaderRef
	Meta ReaderMeta
}
