package policy_test

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cygnusnet/ow/policy"
)

type fakeAddr struct {
	addr string
}

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return a.addr }

type fakeConn struct {
	net.Conn
	remote net.Addr
}

func (c fakeConn) RemoteAddr() net.Addr { return c.remote }

func conn(addr string) net.Conn {
	return fakeConn{remote: fakeAddr{addr: addr}}
}

var _ = Describe("Policies", func() {
	Context("when limiting the number of connections", func() {
		It("should reject connections once the maximum is reached", func() {
			max := policy.Max(2)

			err1, cleanup1 := max(conn("10.0.0.1:1"))
			Expect(err1).ToNot(HaveOccurred())
			err2, _ := max(conn("10.0.0.2:1"))
			Expect(err2).ToNot(HaveOccurred())

			err3, _ := max(conn("10.0.0.3:1"))
			Expect(err3).To(Equal(policy.ErrMaxConnectionsExceeded))

			// Closing a connection opens room for another.
			cleanup1()
			err4, _ := max(conn("10.0.0.4:1"))
			Expect(err4).ToNot(HaveOccurred())
		})
	})

	Context("when rate limiting by IP address", func() {
		It("should reject an address that connects too quickly", func() {
			limit := policy.RateLimit(1.0, 2, 128)

			err, _ := limit(conn("10.0.0.1:1"))
			Expect(err).ToNot(HaveOccurred())
			err, _ = limit(conn("10.0.0.1:2"))
			Expect(err).ToNot(HaveOccurred())
			err, _ = limit(conn("10.0.0.1:3"))
			Expect(err).To(Equal(policy.ErrRateLimited))

			// Other addresses have their own budget.
			err, _ = limit(conn("10.0.0.2:1"))
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Context("when composing policies", func() {
		It("should require every policy to pass", func() {
			all := policy.All(policy.Max(1), policy.RateLimit(1.0, 8, 128))

			err, _ := all(conn("10.0.0.1:1"))
			Expect(err).ToNot(HaveOccurred())
			err, _ = all(conn("10.0.0.2:1"))
			Expect(err).To(Equal(policy.ErrMaxConnectionsExceeded))
		})
	})

	Context("when using dial timeouts", func() {
		It("should return the same timeout for every attempt", func() {
			timeout := policy.ConstantTimeout(time.Second)
			Expect(timeout(1)).To(Equal(time.Second))
			Expect(timeout(100)).To(Equal(time.Second))
		})
	})
})
