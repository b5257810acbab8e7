package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/renproject/surge"
)

// Enumeration of all supported versions.
const (
	V1 = uint8(1)
)

// Enumeration of all supported message types.
const (
	// This value is reserved for forwards compatibility.
	Reserved0 = uint8(0)

	// Hello and HelloAck are exchanged immediately after a connection is
	// established. Hello carries the sender's public key and a signature over
	// its signatory; HelloAck carries the same payload in the opposite
	// direction. A peer that has verified the payload considers the remote
	// authenticated, which raises the inbound message size limit.
	Hello    = uint8(1)
	HelloAck = uint8(2)

	// Err notifies the remote peer why it is about to be disconnected. It is
	// a courtesy; the sender does not wait for it to be acknowledged.
	Err = uint8(3)

	// Data carries an opaque application payload.
	Data = uint8(4)
)

// A Msg is the envelope for everything sent between peers. On the wire, a Msg
// is serialized and framed with a 4-byte length prefix.
type Msg struct {
	// The Version is written and read first. This allows peers to choose
	// their unmarshaling logic for the rest of the Msg based on this Version.
	Version uint8  `json:"version"`
	Type    uint8  `json:"type"`
	Data    []byte `json:"data"`
}

// Equal compares one Msg to another. It returns true if they are equal,
// otherwise it returns false.
func (msg Msg) Equal(other *Msg) bool {
	return msg.Version == other.Version && msg.Type == other.Type && bytes.Equal(msg.Data, other.Data)
}

// SizeHint returns the number of bytes required to represent this Msg in
// binary.
func (msg Msg) SizeHint() int {
	return surge.SizeHint(msg.Version) +
		surge.SizeHint(msg.Type) +
		surge.SizeHint(msg.Data)
}

// Marshal this Msg into binary.
func (msg Msg) Marshal(w io.Writer, m int) (int, error) {
	m, err := surge.Marshal(w, msg.Version, m)
	if err != nil {
		return m, fmt.Errorf("marshaling version: %v", err)
	}
	m, err = surge.Marshal(w, msg.Type, m)
	if err != nil {
		return m, fmt.Errorf("marshaling type: %v", err)
	}
	m, err = surge.Marshal(w, msg.Data, m)
	if err != nil {
		return m, fmt.Errorf("marshaling data: %v", err)
	}
	return m, nil
}

// Unmarshal from binary into this Msg.
func (msg *Msg) Unmarshal(r io.Reader, m int) (int, error) {
	m, err := surge.Unmarshal(r, &msg.Version, m)
	if err != nil {
		return m, fmt.Errorf("unmarshaling version: %v", err)
	}
	m, err = surge.Unmarshal(r, &msg.Type, m)
	if err != nil {
		return m, fmt.Errorf("unmarshaling type: %v", err)
	}
	m, err = surge.Unmarshal(r, &msg.Data, m)
	if err != nil {
		return m, fmt.Errorf("unmarshaling data: %v", err)
	}
	return m, nil
}

// HelloV1 is the payload of Hello and HelloAck messages.
type HelloV1 struct {
	PubKey    []byte `json:"pubKey"`
	Signature []byte `json:"signature"`
}

func (hello HelloV1) SizeHint() int {
	return surge.SizeHint(hello.PubKey) + surge.SizeHint(hello.Signature)
}

func (hello HelloV1) Marshal(w io.Writer, m int) (int, error) {
	m, err := surge.Marshal(w, hello.PubKey, m)
	if err != nil {
		return m, err
	}
	m, err = surge.Marshal(w, hello.Signature, m)
	if err != nil {
		return m, err
	}
	return m, nil
}

func (hello *HelloV1) Unmarshal(r io.Reader, m int) (int, error) {
	m, err := surge.Unmarshal(r, &hello.PubKey, m)
	if err != nil {
		return m, err
	}
	m, err = surge.Unmarshal(r, &hello.Signature, m)
	if err != nil {
		return m, err
	}
	return m, nil
}
