package transport_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cygnusnet/ow/tcp"
	"github.com/cygnusnet/ow/transport"
	"github.com/cygnusnet/ow/wire"
	"github.com/renproject/id"
	"go.uber.org/zap"
)

// runTransport starts a transport on a loopback ephemeral port and waits for
// it to bind.
func runTransport(ctx context.Context) *transport.Transport {
	opts := transport.DefaultOptions().
		WithLogger(zap.NewNop()).
		WithHost("127.0.0.1").
		WithPort(0)
	t := transport.New(opts, newTable())
	go t.Run(ctx)
	Eventually(t.Addr, 5*time.Second).ShouldNot(BeNil())
	return t
}

var _ = Describe("Transport", func() {
	Context("when initiating a connection to a listening transport", func() {
		It("should authenticate both sides and route messages", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ta := runTransport(ctx)
			tb := runTransport(ctx)

			received := make(chan wire.Msg, 1)
			from := make(chan id.Signatory, 1)
			ta.Receive(func(f id.Signatory, msg wire.Msg) {
				from <- f
				received <- msg
			})

			_, err := tb.Initiate(ta.Addr().String())
			Expect(err).ToNot(HaveOccurred())

			Eventually(func() bool { return tb.IsConnected(ta.Self()) }, 5*time.Second).Should(BeTrue())
			Eventually(func() bool { return ta.IsConnected(tb.Self()) }, 5*time.Second).Should(BeTrue())

			sent := wire.Msg{Version: wire.V1, Type: wire.Data, Data: []byte("ahoy")}
			Expect(tb.Send(ta.Self(), sent)).To(Succeed())

			var got wire.Msg
			Eventually(received, 5*time.Second).Should(Receive(&got))
			Expect(got.Equal(&sent)).To(BeTrue())
			Eventually(from).Should(Receive(Equal(tb.Self())))

			// The initiator remembers the listener's dial address.
			addr, ok, err := tb.Table().PeerAddress(ta.Self())
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(addr).To(Equal(ta.Addr().String()))
		})
	})

	Context("when a peer is dropped", func() {
		It("should leave both registries", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ta := runTransport(ctx)
			tb := runTransport(ctx)

			p, err := tb.Initiate(ta.Addr().String())
			Expect(err).ToNot(HaveOccurred())
			Eventually(func() bool { return ta.IsConnected(tb.Self()) }, 5*time.Second).Should(BeTrue())

			p.Drop("test over", tcp.WeDroppedRemote, tcp.IgnoreWriteQueue)

			Eventually(func() bool { return tb.IsConnected(ta.Self()) }, 5*time.Second).Should(BeFalse())
			Eventually(func() bool { return ta.IsConnected(tb.Self()) }, 5*time.Second).Should(BeFalse())
			Eventually(tb.NumPeers, 5*time.Second).Should(Equal(0))
		})
	})

	Context("when sending to an unknown signatory", func() {
		It("should return an error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ta := runTransport(ctx)
			err := ta.Send(randomSignatory(), wire.Msg{Version: wire.V1, Type: wire.Data})
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when bootstrapping from the address book", func() {
		It("should dial and authenticate every recorded peer", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ta := runTransport(ctx)
			tb := runTransport(ctx)

			Expect(tb.Table().AddPeer(ta.Self(), ta.Addr().String())).To(Succeed())
			tb.Bootstrap(ctx)

			Eventually(func() bool { return tb.IsConnected(ta.Self()) }, 5*time.Second).Should(BeTrue())
			Eventually(func() bool { return ta.IsConnected(tb.Self()) }, 5*time.Second).Should(BeTrue())
		})
	})

	Context("when initiating to a non-IPv4 address", func() {
		It("should return an error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ta := runTransport(ctx)
			_, err := ta.Initiate("[::1]:19740")
			Expect(err).To(HaveOccurred())
		})
	})
})
