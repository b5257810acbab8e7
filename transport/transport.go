package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/cygnusnet/ow/handshake"
	"github.com/cygnusnet/ow/metrics"
	"github.com/cygnusnet/ow/policy"
	"github.com/cygnusnet/ow/tcp"
	"github.com/cygnusnet/ow/wire"
	"github.com/renproject/id"
	"github.com/renproject/phi"
	"go.uber.org/zap"
)

// A Receiver is given every application message received from an
// authenticated peer.
type Receiver func(from id.Signatory, msg wire.Msg)

// A Transport is the overlay manager's view of the network. It maintains the
// set of live peers, accepts inbound connections, initiates outbound ones,
// routes outbound messages by signatory, and drives the hello exchange that
// authenticates peers.
type Transport struct {
	opts    Options
	self    id.Signatory
	metrics *metrics.Overlay
	table   Table

	mu          sync.RWMutex
	peers       map[*tcp.Peer]policy.Cleanup
	bySignatory map[id.Signatory]*tcp.Peer
	receiver    Receiver

	addrMu sync.Mutex
	addr   net.Addr
}

func New(opts Options, table Table) *Transport {
	return &Transport{
		opts:    opts,
		self:    id.NewSignatory(opts.PrivKey.PublicKey),
		metrics: metrics.NewOverlay(),
		table:   table,

		peers:       map[*tcp.Peer]policy.Cleanup{},
		bySignatory: map[id.Signatory]*tcp.Peer{},
	}
}

// Self returns the signatory of the local peer.
func (t *Transport) Self() id.Signatory {
	return t.self
}

// Table returns the address book used by the transport.
func (t *Transport) Table() Table {
	return t.table
}

// Metrics returns the overlay metrics maintained by the transport.
func (t *Transport) Metrics() *metrics.Overlay {
	return t.metrics
}

// Receive registers the receiver for application messages. It replaces any
// previous receiver.
func (t *Transport) Receive(receiver Receiver) {
	t.mu.Lock()
	t.receiver = receiver
	t.mu.Unlock()
}

// Addr returns the address the transport is listening on, or nil before Run
// has bound its listener.
func (t *Transport) Addr() net.Addr {
	t.addrMu.Lock()
	defer t.addrMu.Unlock()
	return t.addr
}

// Run listens for inbound connections until the context is done.
func (t *Transport) Run(ctx context.Context) error {
	address := fmt.Sprintf("%v:%v", t.opts.Host, t.opts.Port)
	listener, err := new(net.ListenConfig).Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %v: %v", address, err)
	}

	t.addrMu.Lock()
	t.addr = listener.Addr()
	t.addrMu.Unlock()

	t.opts.Logger.Info("listening", zap.String("addr", listener.Addr().String()))

	return tcp.ListenWithListener(
		ctx,
		listener,
		t.handle,
		func(err error) {
			t.opts.Logger.Error("accepting connection", zap.Error(err))
		},
		t.opts.Allow)
}

func (t *Transport) handle(conn net.Conn, cleanup policy.Cleanup) {
	p, err := t.Accept(conn)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return
	}
	if cleanup != nil {
		stored := false
		t.mu.Lock()
		if _, ok := t.peers[p]; ok {
			t.peers[p] = cleanup
			stored = true
		}
		t.mu.Unlock()
		// The peer dropped itself before the cleanup could be registered.
		if !stored {
			cleanup()
		}
	}
}

// Accept creates an inbound peer from an accepted connection. It returns an
// error, and no peer, if socket option setup fails. The accepting side waits
// for the initiator's hello.
func (t *Transport) Accept(conn net.Conn) (*tcp.Peer, error) {
	p, err := tcp.Accept(t.opts.PeerOptions, conn, t, t, t.metrics)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.peers[p] = nil
	t.mu.Unlock()
	return p, nil
}

// Initiate creates an outbound peer. The address must be IPv4. The hello that
// authenticates the local peer is queued immediately and flows as soon as the
// connection is established.
func (t *Transport) Initiate(addr string) (*tcp.Peer, error) {
	p, err := tcp.Initiate(t.opts.PeerOptions, addr, t, t, t.metrics)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.peers[p] = nil
	t.mu.Unlock()

	msg, err := t.helloMsg(wire.Hello)
	if err != nil {
		p.Drop("error building hello", tcp.WeDroppedRemote, tcp.IgnoreWriteQueue)
		return nil, err
	}
	p.Send(msg)
	return p, nil
}

// Send routes a message to the peer with the given signatory. It returns an
// error if no authenticated peer has that signatory.
func (t *Transport) Send(to id.Signatory, msg wire.Msg) error {
	t.mu.RLock()
	p, ok := t.bySignatory[to]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%v not found", to)
	}
	p.Send(msg)
	return nil
}

// Peers returns the signatories of all authenticated peers.
func (t *Transport) Peers() []id.Signatory {
	t.mu.RLock()
	defer t.mu.RUnlock()

	signatories := make([]id.Signatory, 0, len(t.bySignatory))
	for signatory := range t.bySignatory {
		signatories = append(signatories, signatory)
	}
	return signatories
}

// NumPeers returns the number of live peers, authenticated or not.
func (t *Transport) NumPeers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// IsConnected returns true when an authenticated peer with the given
// signatory is live.
func (t *Transport) IsConnected(signatory id.Signatory) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.bySignatory[signatory]
	return ok
}

// Bootstrap dials every address in the address book, bounded by the
// configured number of workers, until the context is done.
func (t *Transport) Bootstrap(ctx context.Context) {
	addrs, err := t.table.Addresses()
	if err != nil {
		t.opts.Logger.Error("listing addresses", zap.Error(err))
		return
	}
	if len(addrs) == 0 {
		return
	}

	queue := make(chan string, len(addrs))
	for _, addr := range addrs {
		queue <- addr
	}
	close(queue)

	workers := t.opts.BootstrapWorkers
	if workers > len(addrs) {
		workers = len(addrs)
	}
	phi.ForAll(workers, func(_ int) {
		for addr := range queue {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if _, err := t.Initiate(addr); err != nil {
				t.opts.Logger.Debug("bootstrapping", zap.String("addr", addr), zap.Error(err))
			}
		}
	})
}

// RemovePeer removes a peer from the registry. It is invoked by peers as part
// of dropping themselves; after Drop returns, the transport no longer holds a
// reference to the peer.
func (t *Transport) RemovePeer(p *tcp.Peer) {
	t.mu.Lock()
	cleanup := t.peers[p]
	delete(t.peers, p)
	if remote, ok := p.Remote(); ok {
		if t.bySignatory[remote] == p {
			delete(t.bySignatory, remote)
		}
	}
	t.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
}

// DidReceiveMessage dispatches every message assembled by a peer. Hello
// messages drive authentication, Err messages drop the peer whether or not it
// is authenticated, and Data messages require authentication.
func (t *Transport) DidReceiveMessage(p *tcp.Peer, msg wire.Msg) {
	if msg.Version != wire.V1 {
		p.SendErrorAndDrop(wire.ErrCodeConf, "unsupported version", tcp.IgnoreWriteQueue)
		return
	}

	switch msg.Type {
	case wire.Hello:
		t.didReceiveHello(p, msg, true)
	case wire.HelloAck:
		t.didReceiveHello(p, msg, false)
	case wire.Err:
		e := wire.Error{}
		reason := "remote error"
		if _, err := e.Unmarshal(bytes.NewReader(msg.Data), tcp.MaxUnauthMessageSize); err == nil {
			reason = e.Reason
		}
		p.Drop(reason, tcp.RemoteDroppedUs, tcp.IgnoreWriteQueue)
	case wire.Data:
		if !p.IsAuthenticated() {
			p.SendErrorAndDrop(wire.ErrCodeAuth, "message before authentication", tcp.IgnoreWriteQueue)
			return
		}
		remote, _ := p.Remote()
		t.mu.RLock()
		receiver := t.receiver
		t.mu.RUnlock()
		if receiver != nil {
			receiver(remote, msg)
		}
	default:
		p.SendErrorAndDrop(wire.ErrCodeData, "unsupported message type", tcp.IgnoreWriteQueue)
	}
}

func (t *Transport) didReceiveHello(p *tcp.Peer, msg wire.Msg, ack bool) {
	if p.IsAuthenticated() {
		// Duplicate hello; ignore.
		return
	}

	hello := wire.HelloV1{}
	if _, err := hello.Unmarshal(bytes.NewReader(msg.Data), tcp.MaxUnauthMessageSize); err != nil {
		p.SendErrorAndDrop(wire.ErrCodeData, "received corrupt hello", tcp.IgnoreWriteQueue)
		return
	}
	remote, err := handshake.VerifyHello(hello)
	if err != nil {
		t.opts.Logger.Debug("verifying hello", zap.String("peer", p.String()), zap.Error(err))
		p.SendErrorAndDrop(wire.ErrCodeAuth, "bad hello signature", tcp.IgnoreWriteQueue)
		return
	}
	if err := p.Authenticate(remote); err != nil {
		t.opts.Logger.Debug("authenticating", zap.String("peer", p.String()), zap.Error(err))
		return
	}

	t.mu.Lock()
	prev := t.bySignatory[remote]
	t.bySignatory[remote] = p
	t.mu.Unlock()
	if prev != nil && prev != p {
		// One connection per remote identity; the newest wins.
		prev.Drop("duplicate connection", tcp.WeDroppedRemote, tcp.IgnoreWriteQueue)
	}

	// Outbound dial addresses are worth remembering; an inbound remote's
	// ephemeral port is not its listening address.
	if p.Role() == tcp.WeCalledRemote {
		if err := t.table.AddPeer(remote, p.String()); err != nil {
			t.opts.Logger.Error("recording address", zap.String("peer", p.String()), zap.Error(err))
		}
	}

	t.opts.Logger.Info("authenticated",
		zap.String("peer", p.String()),
		zap.String("remote", remote.String()))

	if ack {
		reply, err := t.helloMsg(wire.HelloAck)
		if err != nil {
			p.Drop("error building hello ack", tcp.WeDroppedRemote, tcp.IgnoreWriteQueue)
			return
		}
		p.Send(reply)
	}
}

func (t *Transport) helloMsg(msgType uint8) (wire.Msg, error) {
	hello, err := handshake.Hello(t.opts.PrivKey)
	if err != nil {
		return wire.Msg{}, fmt.Errorf("building hello: %v", err)
	}
	data := new(bytes.Buffer)
	if _, err := hello.Marshal(data, tcp.MaxUnauthMessageSize); err != nil {
		return wire.Msg{}, fmt.Errorf("marshaling hello: %v", err)
	}
	return wire.Msg{Version: wire.V1, Type: msgType, Data: data.Bytes()}, nil
}
