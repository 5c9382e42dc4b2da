package msgs

import (
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/wavepass.go/pkg/framework"
)

// GroupReader contains all reader messages.
const GroupReader uint32 = 0x00010000

// TypeIDs
const (
	CardEventTypeID    uint32 = GroupReader | TypeIDKindEvent | 0x0001
	KeypadEventTypeID  uint32 = GroupReader | TypeIDKindEvent | 0x0002
	ReaderStatusTypeID uint32 = GroupReader | TypeIDKindEvent | 0x0003
	EjectCommandTypeID uint32 = GroupReader | TypeIDKindCommand | 0x0001
)

// CardEvent reports a card scanned by a node. An empty Uid reports the
// card was removed.
type CardEvent struct {
	Reader   string `protobuf:"bytes,1,opt,name=reader,proto3" json:"reader,omitempty"`
	Node     uint32 `protobuf:"varint,2,opt,name=node,proto3" json:"node,omitempty"`
	CardType uint32 `protobuf:"varint,3,opt,name=card_type,json=cardType,proto3" json:"card_type,omitempty"`
	Uid      string `protobuf:"bytes,4,opt,name=uid,proto3" json:"uid,omitempty"`
	Keys     uint32 `protobuf:"varint,5,opt,name=keys,proto3" json:"keys,omitempty"`
	Time     int64  `protobuf:"varint,6,opt,name=time,proto3" json:"time,omitempty"`
}

// NewMessage implements Message.
func (m *CardEvent) NewMessage() fx.Message { return &CardEvent{} }

// TypeID implements SerializableMessage.
func (m *CardEvent) TypeID() uint32 { return CardEventTypeID }

// Serializable implements SerializableMessage.
func (m *CardEvent) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *CardEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CardEvent) Reset() { *m = CardEvent{} }

// String implements proto.Message.
func (m *CardEvent) String() string { return proto.CompactTextString(m) }

// KeypadEvent reports the keys held on a node keypad.
type KeypadEvent struct {
	Reader string `protobuf:"bytes,1,opt,name=reader,proto3" json:"reader,omitempty"`
	Node   uint32 `protobuf:"varint,2,opt,name=node,proto3" json:"node,omitempty"`
	Keys   uint32 `protobuf:"varint,3,opt,name=keys,proto3" json:"keys,omitempty"`
	Time   int64  `protobuf:"varint,4,opt,name=time,proto3" json:"time,omitempty"`
}

// NewMessage implements Message.
func (m *KeypadEvent) NewMessage() fx.Message { return &KeypadEvent{} }

// TypeID implements SerializableMessage.
func (m *KeypadEvent) TypeID() uint32 { return KeypadEventTypeID }

// Serializable implements SerializableMessage.
func (m *KeypadEvent) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *KeypadEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *KeypadEvent) Reset() { *m = KeypadEvent{} }

// String implements proto.Message.
func (m *KeypadEvent) String() string { return proto.CompactTextString(m) }

// EjectCommand requests a card eject. Node 0 ejects on all nodes.
type EjectCommand struct {
	Reader string `protobuf:"bytes,1,opt,name=reader,proto3" json:"reader,omitempty"`
	Node   uint32 `protobuf:"varint,2,opt,name=node,proto3" json:"node,omitempty"`
	Source string `protobuf:"bytes,3,opt,name=source,proto3" json:"source,omitempty"`
}

// NewMessage implements Message.
func (m *EjectCommand) NewMessage() fx.Message { return &EjectCommand{} }

// TypeID implements SerializableMessage.
func (m *EjectCommand) TypeID() uint32 { return EjectCommandTypeID }

// Serializable implements SerializableMessage.
func (m *EjectCommand) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *EjectCommand) ProtoMessage() {}

// Reset implements proto.Message.
func (m *EjectCommand) Reset() { *m = EjectCommand{} }

// String implements proto.Message.
func (m *EjectCommand) String() string { return proto.CompactTextString(m) }

// Reader states.
const (
	ReaderStateOffline = "offline"
	ReaderStateOnline  = "online"
)

// ReaderStatus is published when the bus comes up or goes down.
type ReaderStatus struct {
	Reader string      `protobuf:"bytes,1,opt,name=reader,proto3" json:"reader,omitempty"`
	Port   string      `protobuf:"bytes,2,opt,name=port,proto3" json:"port,omitempty"`
	State  string      `protobuf:"bytes,3,opt,name=state,proto3" json:"state,omitempty"`
	Error  string      `protobuf:"bytes,4,opt,name=error,proto3" json:"error,omitempty"`
	Nodes  []*NodeInfo `protobuf:"bytes,5,rep,name=nodes,proto3" json:"nodes,omitempty"`
	Time   int64       `protobuf:"varint,6,opt,name=time,proto3" json:"time,omitempty"`
}

// NewMessage implements Message.
func (m *ReaderStatus) NewMessage() fx.Message { return &ReaderStatus{} }

// TypeID implements SerializableMessage.
func (m *ReaderStatus) TypeID() uint32 { return ReaderStatusTypeID }

// Serializable implements SerializableMessage.
func (m *ReaderStatus) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *ReaderStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ReaderStatus) Reset() { *m = ReaderStatus{} }

// String implements proto.Message.
func (m *ReaderStatus) String() string { return proto.CompactTextString(m) }

// NodeInfo describes an enumerated node.
type NodeInfo struct {
	Id        uint32 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Product   string `protobuf:"bytes,2,opt,name=product,proto3" json:"product,omitempty"`
	Version   string `protobuf:"bytes,3,opt,name=version,proto3" json:"version,omitempty"`
	Encrypted bool   `protobuf:"varint,4,opt,name=encrypted,proto3" json:"encrypted,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *NodeInfo) ProtoMessage() {}

// Reset implements proto.Message.
func (m *NodeInfo) Reset() { *m = NodeInfo{} }

// String implements proto.Message.
func (m *NodeInfo) String() string { return proto.CompactTextString(m) }
