package codec

import (
	"io"
)

// An Encoder is a function that encodes a byte slice into an I/O writer. It
// returns the number of bytes written, and errors that happen.
type Encoder func(w io.Writer, buf []byte) (int, error)

// A Decoder is a function that decodes bytes from an I/O reader into a byte
// slice. It returns the number of bytes read, and errors that happen.
type Decoder func(r io.Reader, buf []byte) (int, error)

// PlainEncoder writes data directly to the IO writer without modification. The
// entire buffer is written.
func PlainEncoder(w io.Writer, buf []byte) (int, error) {
	return w.Write(buf)
}

// PlainDecoder reads data directly from the IO reader without modification. The
// entire buffer will be filled by reading data from the IO reader, so the
// buffer must be of the right length with respect to the data that is being
// read.
func PlainDecoder(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	return n, err
}
