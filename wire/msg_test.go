package wire_test

import (
	"bytes"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cygnusnet/ow/wire"
)

var _ = Describe("Msg", func() {
	Context("when marshaling and unmarshaling", func() {
		It("should round-trip", func() {
			msg := wire.Msg{Version: wire.V1, Type: wire.Data, Data: []byte("hello")}

			buf := new(bytes.Buffer)
			_, err := msg.Marshal(buf, 1024)
			Expect(err).ToNot(HaveOccurred())

			got := wire.Msg{}
			_, err = got.Unmarshal(buf, 1024)
			Expect(err).ToNot(HaveOccurred())
			Expect(cmp.Diff(msg, got)).To(BeEmpty())
			Expect(msg.Equal(&got)).To(BeTrue())
		})

		It("should reject bodies that exceed the byte budget", func() {
			msg := wire.Msg{Version: wire.V1, Type: wire.Data, Data: make([]byte, 1024)}

			buf := new(bytes.Buffer)
			_, err := msg.Marshal(buf, len(msg.Data)+64)
			Expect(err).ToNot(HaveOccurred())

			got := wire.Msg{}
			_, err = got.Unmarshal(buf, 16)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when comparing messages", func() {
		It("should distinguish by type and data", func() {
			msg := wire.Msg{Version: wire.V1, Type: wire.Data, Data: []byte{1}}
			other := wire.Msg{Version: wire.V1, Type: wire.Err, Data: []byte{1}}
			Expect(msg.Equal(&other)).To(BeFalse())

			other = wire.Msg{Version: wire.V1, Type: wire.Data, Data: []byte{2}}
			Expect(msg.Equal(&other)).To(BeFalse())
		})
	})
})

var _ = Describe("Error", func() {
	It("should round-trip through marshaling", func() {
		e := wire.Error{Code: wire.ErrCodeData, Reason: "received corrupt message"}

		buf := new(bytes.Buffer)
		_, err := e.Marshal(buf, 1024)
		Expect(err).ToNot(HaveOccurred())

		got := wire.Error{}
		_, err = got.Unmarshal(buf, 1024)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(e))
		Expect(got.Error()).To(ContainSubstring("corrupt"))
	})
})
