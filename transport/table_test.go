package transport_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cygnusnet/ow/transport"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/renproject/id"
	"github.com/renproject/kv"
)

func randomSignatory() id.Signatory {
	privKey, err := crypto.GenerateKey()
	Expect(err).ToNot(HaveOccurred())
	return id.NewSignatory(privKey.PublicKey)
}

func newTable() transport.Table {
	return transport.NewTable(kv.NewTable(kv.NewMemDB(kv.JSONCodec), "addressbook"))
}

var _ = Describe("Table", func() {
	Context("when adding peers", func() {
		It("should return their addresses", func() {
			table := newTable()
			signatory := randomSignatory()

			Expect(table.AddPeer(signatory, "192.168.0.1:19740")).To(Succeed())

			addr, ok, err := table.PeerAddress(signatory)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(addr).To(Equal("192.168.0.1:19740"))
			Expect(table.NumPeers()).To(Equal(1))
		})

		It("should replace a previous address", func() {
			table := newTable()
			signatory := randomSignatory()

			Expect(table.AddPeer(signatory, "192.168.0.1:19740")).To(Succeed())
			Expect(table.AddPeer(signatory, "192.168.0.2:19740")).To(Succeed())

			addr, ok, err := table.PeerAddress(signatory)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(addr).To(Equal("192.168.0.2:19740"))
			Expect(table.NumPeers()).To(Equal(1))
		})
	})

	Context("when querying an unknown peer", func() {
		It("should return not found", func() {
			table := newTable()
			_, ok, err := table.PeerAddress(randomSignatory())
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Context("when deleting peers", func() {
		It("should forget their addresses", func() {
			table := newTable()
			signatory := randomSignatory()

			Expect(table.AddPeer(signatory, "192.168.0.1:19740")).To(Succeed())
			Expect(table.DeletePeer(signatory)).To(Succeed())

			_, ok, err := table.PeerAddress(signatory)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(table.NumPeers()).To(Equal(0))
		})
	})

	Context("when listing addresses", func() {
		It("should return the address of every peer", func() {
			table := newTable()
			Expect(table.AddPeer(randomSignatory(), "192.168.0.1:19740")).To(Succeed())
			Expect(table.AddPeer(randomSignatory(), "192.168.0.2:19740")).To(Succeed())

			addrs, err := table.Addresses()
			Expect(err).ToNot(HaveOccurred())
			Expect(addrs).To(ConsistOf("192.168.0.1:19740", "192.168.0.2:19740"))
		})
	})
})
