package codec_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cygnusnet/ow/codec"
)

var _ = Describe("Length prefix codec", func() {
	Context("when encoding a length", func() {
		It("should set the continuation bit on the first byte", func() {
			prefix := codec.EncodeLength(3)
			Expect(prefix).To(Equal([4]byte{0x80, 0x00, 0x00, 0x03}))
		})

		It("should round-trip through decoding", func() {
			for _, length := range []uint32{1, 3, 0x1000, 0x1000000, 0x7FFFFFFF} {
				prefix := codec.EncodeLength(length)
				Expect(codec.DecodeLength(prefix[:])).To(Equal(length))
			}
		})
	})

	Context("when decoding a length", func() {
		It("should mask the continuation bit", func() {
			Expect(codec.DecodeLength([]byte{0xFF, 0xFF, 0xFF, 0xFF})).To(Equal(uint32(0x7FFFFFFF)))
			Expect(codec.DecodeLength([]byte{0x80, 0x00, 0x00, 0x00})).To(Equal(uint32(0)))
		})
	})

	Context("when framing a payload", func() {
		It("should write the prefix followed by the payload", func() {
			buf := new(bytes.Buffer)
			enc := codec.LengthPrefixEncoder(codec.PlainEncoder, codec.PlainEncoder)
			n, err := enc(buf, []byte{0x01, 0x02, 0x03})
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(3))
			Expect(buf.Bytes()).To(Equal([]byte{0x80, 0x00, 0x00, 0x03, 0x01, 0x02, 0x03}))
		})

		It("should round-trip through the decoder", func() {
			buf := new(bytes.Buffer)
			data := "Hi there!"

			enc := codec.LengthPrefixEncoder(codec.PlainEncoder, codec.PlainEncoder)
			n, err := enc(buf, []byte(data))
			Expect(n).To(Equal(9))
			Expect(err).ToNot(HaveOccurred())

			var out [1024]byte
			dec := codec.LengthPrefixDecoder(codec.PlainDecoder, codec.PlainDecoder)
			n, err = dec(buf, out[:])
			Expect(n).To(Equal(9))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(out[:n])).To(Equal(data))
		})

		It("should reject a buffer smaller than the payload", func() {
			buf := new(bytes.Buffer)
			enc := codec.LengthPrefixEncoder(codec.PlainEncoder, codec.PlainEncoder)
			_, err := enc(buf, make([]byte, 64))
			Expect(err).ToNot(HaveOccurred())

			var out [8]byte
			dec := codec.LengthPrefixDecoder(codec.PlainDecoder, codec.PlainDecoder)
			_, err = dec(buf, out[:])
			Expect(err).To(HaveOccurred())
		})
	})
})
