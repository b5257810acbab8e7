package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PrefixSize is the number of bytes in a length prefix.
const PrefixSize = 4

// ContinuationBit marks the final record of a serialized value. It is set on
// the first byte of every length prefix that is written, and must be masked
// off when decoding the length.
const ContinuationBit = 0x80

// EncodeLength returns the big-endian 4-byte prefix for a payload of the given
// length, with the continuation bit set.
func EncodeLength(length uint32) [PrefixSize]byte {
	prefix := [PrefixSize]byte{}
	binary.BigEndian.PutUint32(prefix[:], length)
	prefix[0] |= ContinuationBit
	return prefix
}

// DecodeLength returns the payload length encoded in a 4-byte prefix. The
// continuation bit is masked off.
func DecodeLength(prefix []byte) uint32 {
	_ = prefix[3]
	length := uint32(prefix[0]&^ContinuationBit) << 24
	length |= uint32(prefix[1]) << 16
	length |= uint32(prefix[2]) << 8
	length |= uint32(prefix[3])
	return length
}

// LengthPrefixEncoder composes a prefix encoder and a body encoder into an
// encoder that writes the length prefix, with the continuation bit set,
// followed by the body. The returned count is the number of body bytes
// written; the prefix is not counted.
func LengthPrefixEncoder(prefixEnc Encoder, bodyEnc Encoder) Encoder {
	return func(w io.Writer, buf []byte) (int, error) {
		prefix := EncodeLength(uint32(len(buf)))
		if _, err := prefixEnc(w, prefix[:]); err != nil {
			return 0, fmt.Errorf("encoding data length: %v", err)
		}
		n, err := bodyEnc(w, buf)
		if err != nil {
			return n, fmt.Errorf("encoding data: %v", err)
		}
		return n, nil
	}
}

// LengthPrefixDecoder composes a prefix decoder and a body decoder into a
// decoder that reads a length prefix, masks the continuation bit, and then
// reads that many bytes of body into the buffer.
func LengthPrefixDecoder(prefixDec Decoder, bodyDec Decoder) Decoder {
	return func(r io.Reader, buf []byte) (int, error) {
		prefix := [PrefixSize]byte{}
		if _, err := prefixDec(r, prefix[:]); err != nil {
			return 0, fmt.Errorf("decoding data length: %v", err)
		}
		length := DecodeLength(prefix[:])
		if uint32(len(buf)) < length {
			return 0, fmt.Errorf("decoding data length: expected %v, got %v", len(buf), length)
		}
		n, err := bodyDec(r, buf[:length])
		if err != nil {
			return n, fmt.Errorf("decoding data: %v", err)
		}
		return n, nil
	}
}
