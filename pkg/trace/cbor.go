package trace

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("trace CBOR encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	if decMode, err = decOpts.DecMode(); err != nil {
		panic(fmt.Sprintf("trace CBOR decoder mode: %v", err))
	}
}

// EncodeEvent encodes an Event to CBOR.
func EncodeEvent(ev Event) ([]byte, error) {
	return encMode.Marshal(ev)
}

// DecodeEvent decodes an Event from CBOR.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := decMode.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// NewEncoder creates an Event encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates an Event decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
