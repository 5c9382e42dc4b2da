package msgs

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
)

// TypeID masks
const (
	TypeIDMaskKind  uint32 = 0x80000000
	TypeIDMaskGroup uint32 = 0x7fff0000
	TypeIDMaskID    uint32 = 0x0000ffff
)

// Message Kinds
const (
	TypeIDKindCommand uint32 = 0x00000000
	TypeIDKindEvent   uint32 = 0x80000000
)

// Typed wraps a serialized message with its type ID.
type Typed struct {
	TypeId  uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Message []byte `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

// ProtoMessage implements proto.Message.
func (p *Typed) ProtoMessage() {}

// Reset implements proto.Message.
func (p *Typed) Reset() { *p = Typed{} }

// String implements proto.Message.
func (p *Typed) String() string { return proto.CompactTextString(p) }

// ErrUnknownType indicates unknown type id.
type ErrUnknownType struct {
	TypeID uint32
}

// Error implements error.
func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type: %x", e.TypeID)
}

// ErrNotSerializable indicates the message is not serializable.
var ErrNotSerializable = errors.New("not serializable message")

// SerializableMessage can be serialized over the wire.
type SerializableMessage interface {
	fx.Message
	TypeID() uint32
	Serializable() proto.Message
}

// MessageTypes maps type IDs to messages.
var MessageTypes = map[uint32]SerializableMessage{
	CardEventTypeID:    (*CardEvent)(nil),
	KeypadEventTypeID:  (*KeypadEvent)(nil),
	ReaderStatusTypeID: (*ReaderStatus)(nil),
	EjectCommandTypeID: (*EjectCommand)(nil),
}

// TypedFrom creates a Typed from a serializable message.
func TypedFrom(msg fx.Message) (*Typed, error) {
	s, ok := msg.(SerializableMessage)
	if !ok {
		return nil, ErrNotSerializable
	}
	data, err := proto.Marshal(s.Serializable())
	if err != nil {
		return nil, err
	}
	return &Typed{TypeId: s.TypeID(), Message: data}, nil
}

// Encode is the shortcut of TypedFrom followed by Typed.Encode.
func Encode(msg fx.Message) ([]byte, error) {
	typed, err := TypedFrom(msg)
	if err != nil {
		return nil, err
	}
	return typed.Encode()
}

// Decode decodes the envelope into the actual message.
func (p *Typed) Decode() (fx.Message, error) {
	msgType, ok := MessageTypes[p.TypeId]
	if !ok {
		return nil, &ErrUnknownType{TypeID: p.TypeId}
	}
	msg := msgType.NewMessage()
	if err := proto.Unmarshal(p.Message, msg.(SerializableMessage).Serializable()); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode encodes the Typed to bytes.
func (p *Typed) Encode() ([]byte, error) {
	return proto.Marshal(p)
}

// Kind gets message kind from type ID.
func (p *Typed) Kind() uint32 {
	return p.TypeId & TypeIDMaskKind
}

// IsCommand determines if the message is a command.
func (p *Typed) IsCommand() bool {
	return p.Kind() == TypeIDKindCommand
}

// IsEvent determines if the message is an event.
func (p *Typed) IsEvent() bool {
	return p.Kind() == TypeIDKindEvent
}

// DecodeTyped decodes bytes into Typed.
func DecodeTyped(data []byte) (*Typed, error) {
	var typed Typed
	if err := proto.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	return &typed, nil
}

// DecodeMessage decodes bytes into the actual message.
func DecodeMessage(data []byte) (fx.Message, error) {
	typed, err := DecodeTyped(data)
	if err != nil {
		return nil, err
	}
	return typed.Decode()
}
