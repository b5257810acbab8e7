package handshake_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cygnusnet/ow/handshake"
	"github.com/cygnusnet/ow/wire"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/renproject/id"
)

var _ = Describe("Hello", func() {
	Context("when verifying a well-formed hello", func() {
		It("should return the signatory of the sender", func() {
			privKey, err := crypto.GenerateKey()
			Expect(err).ToNot(HaveOccurred())

			hello, err := handshake.Hello(privKey)
			Expect(err).ToNot(HaveOccurred())

			signatory, err := handshake.VerifyHello(hello)
			Expect(err).ToNot(HaveOccurred())
			expected := id.NewSignatory(privKey.PublicKey)
			Expect(signatory.Equal(&expected)).To(BeTrue())
		})
	})

	Context("when verifying a tampered hello", func() {
		It("should reject a forged public key", func() {
			privKey, err := crypto.GenerateKey()
			Expect(err).ToNot(HaveOccurred())
			otherKey, err := crypto.GenerateKey()
			Expect(err).ToNot(HaveOccurred())

			hello, err := handshake.Hello(privKey)
			Expect(err).ToNot(HaveOccurred())

			// Claim someone else's identity while keeping the original
			// signature.
			hello.PubKey = crypto.FromECDSAPub(&otherKey.PublicKey)
			_, err = handshake.VerifyHello(hello)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a mangled signature", func() {
			privKey, err := crypto.GenerateKey()
			Expect(err).ToNot(HaveOccurred())

			hello, err := handshake.Hello(privKey)
			Expect(err).ToNot(HaveOccurred())

			hello.Signature[10] ^= 0xFF
			_, err = handshake.VerifyHello(hello)
			Expect(err).To(HaveOccurred())
		})

		It("should reject garbage", func() {
			garbage := wire.HelloV1{PubKey: []byte{1, 2, 3}, Signature: []byte{4, 5, 6}}
			_, err := handshake.VerifyHello(garbage)
			Expect(err).To(HaveOccurred())
		})
	})
})
