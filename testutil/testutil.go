package testutil

import (
	"bytes"
	"math/rand"

	"github.com/cygnusnet/ow/codec"
	"github.com/cygnusnet/ow/tcp"
	"github.com/cygnusnet/ow/wire"
)

// RandomPayload returns n random bytes.
func RandomPayload(n int) []byte {
	buf := make([]byte, n)
	rand.Read(buf)
	return buf
}

// RandomMsg returns a data message with a random payload of the given size.
func RandomMsg(n int) wire.Msg {
	return wire.Msg{Version: wire.V1, Type: wire.Data, Data: RandomPayload(n)}
}

// MarshalMsg serializes a message envelope the way the transport does before
// framing it.
func MarshalMsg(msg wire.Msg) []byte {
	buf := new(bytes.Buffer)
	if _, err := msg.Marshal(buf, tcp.MaxMessageSize); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Frame wraps a serialized payload in the on-wire framing.
func Frame(payload []byte) []byte {
	buf := new(bytes.Buffer)
	enc := codec.LengthPrefixEncoder(codec.PlainEncoder, codec.PlainEncoder)
	if _, err := enc(buf, payload); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// FrameMsg serializes and frames a message envelope.
func FrameMsg(msg wire.Msg) []byte {
	return Frame(MarshalMsg(msg))
}
