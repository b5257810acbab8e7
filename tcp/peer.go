package tcp

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cygnusnet/ow/codec"
	"github.com/cygnusnet/ow/metrics"
	"github.com/cygnusnet/ow/wire"
	"github.com/renproject/id"
	"go.uber.org/zap"
)

const (
	// BufSize is the size of the socket-level send and receive buffers, and
	// of the stream buffers layered on top of them.
	BufSize = 0x40000

	// MaxMessageSize bounds the decoded length of inbound frames from an
	// authenticated peer.
	MaxMessageSize = 0x1000000

	// MaxUnauthMessageSize bounds the decoded length of inbound frames until
	// the remote peer has authenticated.
	MaxUnauthMessageSize = 0x1000
)

// ErrAddressNotIPv4 is returned by Initiate when the host of the target
// address is not a literal IPv4 address. Host names are not resolved.
var ErrAddressNotIPv4 = errors.New("address is not ipv4")

// A State describes where a peer is in its connection lifecycle. States only
// ever advance; Closing is terminal.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateGotAuth
	StateClosing
)

func (state State) String() string {
	switch state {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateGotAuth:
		return "authenticated"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int(state))
	}
}

// A Role records which side initiated the connection.
type Role int

const (
	WeCalledRemote Role = iota
	RemoteCalledUs
)

func (role Role) String() string {
	if role == WeCalledRemote {
		return "we-called-remote"
	}
	return "remote-called-us"
}

// A DropDirection records whether the local peer decided to disconnect, or is
// reacting to the remote disconnecting.
type DropDirection int

const (
	WeDroppedRemote DropDirection = iota
	RemoteDroppedUs
)

// A DropMode controls whether a drop tears the connection down immediately,
// or waits for the write queue to drain first.
type DropMode int

const (
	IgnoreWriteQueue DropMode = iota
	KeepWriteQueue
)

// A Manager is notified when a peer removes itself. The reference held by a
// peer to its Manager is lookup-only; it never extends the lifetime of
// anything.
type Manager interface {
	RemovePeer(*Peer)
}

// A Handler receives every message that a peer fully assembles.
type Handler interface {
	DidReceiveMessage(*Peer, wire.Msg)
}

// A Peer owns exactly one TCP connection to one remote peer, and is
// responsible for framing and transmitting outbound messages in FIFO order,
// receiving and dispatching inbound frames, enforcing per-peer size and idle
// limits, and tearing the connection down gracefully.
type Peer struct {
	opts    Options
	role    Role
	addr    string
	manager Manager
	handler Handler
	metrics *metrics.Overlay
	enc     codec.Encoder

	mu                sync.Mutex
	state             State
	conn              net.Conn
	br                *bufio.Reader
	bw                *bufio.Writer
	writeQueue        []*TimestampedMessage
	writing           bool
	delayedShutdown   bool
	shutdownScheduled bool
	lastEmpty         time.Time
	lastWrite         time.Time
	idleTimer         *time.Timer
	remote            id.Signatory
	hasRemote         bool

	// wmu serializes access to the buffered writer between the write pump and
	// the final flush done by shutdown.
	wmu sync.Mutex
}

func newPeer(opts Options, role Role, addr string, manager Manager, handler Handler, m *metrics.Overlay) *Peer {
	if m == nil {
		m = metrics.NewOverlay()
	}
	return &Peer{
		opts:    opts,
		role:    role,
		addr:    addr,
		manager: manager,
		handler: handler,
		metrics: m,
		enc:     codec.LengthPrefixEncoder(codec.PlainEncoder, codec.PlainEncoder),

		state: StateConnecting,
	}
}

// Initiate an outbound connection. The address must be IPv4. The returned
// peer is in the connecting state; the dial happens in the background, and
// the peer drops itself if the dial fails. Messages sent before the dial
// completes are queued.
func Initiate(opts Options, addr string, manager Manager, handler Handler, m *metrics.Overlay) (*Peer, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing address %v: %v", addr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return nil, ErrAddressNotIPv4
	}

	opts.Logger.Debug("initiate", zap.String("addr", addr))

	p := newPeer(opts, WeCalledRemote, addr, manager, handler, m)
	p.startIdleTimer()
	go func() {
		conn, err := net.DialTimeout("tcp4", addr, opts.DialTimeout)
		if err != nil {
			p.connectHandler(nil, err)
			return
		}
		tconn := conn.(*net.TCPConn)
		if err := tconn.SetNoDelay(true); err != nil {
			tconn.Close()
			p.connectHandler(nil, err)
			return
		}
		setSocketBuffers(tconn, opts.Logger)
		p.connectHandler(tconn, nil)
	}()
	return p, nil
}

// Accept an inbound connection that has already been established. Returns an
// error, and no peer, if socket option setup fails.
func Accept(opts Options, conn net.Conn, manager Manager, handler Handler, m *metrics.Overlay) (*Peer, error) {
	if tconn, ok := conn.(*net.TCPConn); ok {
		if err := tconn.SetNoDelay(true); err != nil {
			opts.Logger.Debug("accept", zap.Error(err))
			conn.Close()
			return nil, fmt.Errorf("setting nodelay: %v", err)
		}
		setSocketBuffers(tconn, opts.Logger)
	}

	opts.Logger.Debug("accept", zap.String("addr", conn.RemoteAddr().String()))

	p := newPeer(opts, RemoteCalledUs, conn.RemoteAddr().String(), manager, handler, m)
	p.conn = conn
	p.br = bufio.NewReaderSize(conn, BufSize)
	p.bw = bufio.NewWriterSize(conn, BufSize)
	p.state = StateConnected
	p.startIdleTimer()
	p.connected()
	return p, nil
}

func setSocketBuffers(conn *net.TCPConn, logger *zap.Logger) {
	if err := conn.SetReadBuffer(BufSize); err != nil {
		logger.Debug("setting read buffer", zap.Error(err))
	}
	if err := conn.SetWriteBuffer(BufSize); err != nil {
		logger.Debug("setting write buffer", zap.Error(err))
	}
}

// connectHandler finalizes an outbound connection attempt.
func (p *Peer) connectHandler(conn net.Conn, err error) {
	if err != nil {
		p.opts.Logger.Debug("connect", zap.String("peer", p.String()), zap.Error(err))
		p.Drop("error during connect", WeDroppedRemote, IgnoreWriteQueue)
		return
	}

	p.mu.Lock()
	if p.state == StateClosing {
		// Dropped while the dial was in flight.
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.conn = conn
	p.br = bufio.NewReaderSize(conn, BufSize)
	p.bw = bufio.NewWriterSize(conn, BufSize)
	p.state = StateConnected
	arm := !p.writing && len(p.writeQueue) > 0
	if arm {
		p.writing = true
	}
	p.mu.Unlock()

	if arm {
		go p.messageSender()
	}
	p.connected()
}

// connected begins reading as soon as the socket is usable. Authentication
// runs over the same byte stream as normal messages, gated by the state.
func (p *Peer) connected() {
	go p.startRead()
}

// Authenticate advances the peer to the authenticated state, which raises the
// inbound message size limit. It fails unless the peer is connected and not
// yet authenticated.
func (p *Peer) Authenticate(remote id.Signatory) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateConnected {
		return fmt.Errorf("cannot authenticate peer in state %v", p.state)
	}
	p.remote = remote
	p.hasRemote = true
	p.state = StateGotAuth
	return nil
}

// Remote returns the authenticated identity of the remote peer, if one has
// been established.
func (p *Peer) Remote() (id.Signatory, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote, p.hasRemote
}

// State returns the current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Role returns which side initiated the connection.
func (p *Peer) Role() Role {
	return p.role
}

// IsConnected returns true once the connection is established, until the peer
// begins closing.
func (p *Peer) IsConnected() bool {
	state := p.State()
	return state == StateConnected || state == StateGotAuth
}

// IsAuthenticated returns true once the remote peer has authenticated.
func (p *Peer) IsAuthenticated() bool {
	return p.State() == StateGotAuth
}

func (p *Peer) shouldAbort() bool {
	return p.State() == StateClosing
}

// NumQueued returns the number of messages waiting in the write queue.
func (p *Peer) NumQueued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writeQueue)
}

// IP returns the IP of the remote endpoint, or an empty string if the
// connection is not established.
func (p *Peer) IP() string {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return ""
	}
	return host
}

// String returns the remote address the peer was created with.
func (p *Peer) String() string {
	return p.addr
}

// Drop is the sole entry point for terminating a peer. It transitions the
// peer to the closing state, removes it from its manager, and shuts the
// connection down — immediately, or, with KeepWriteQueue while a write is in
// flight, after the write queue has drained. Dropping a peer that is already
// closing is a no-op.
func (p *Peer) Drop(reason string, direction DropDirection, mode DropMode) {
	p.mu.Lock()
	if p.state == StateClosing {
		p.mu.Unlock()
		return
	}
	prevState := p.state
	p.state = StateClosing
	writing := p.writing
	delayed := mode == KeepWriteQueue && writing
	if delayed {
		p.delayedShutdown = true
	}
	p.mu.Unlock()

	switch {
	case prevState != StateGotAuth:
		p.opts.Logger.Debug("dropping peer",
			zap.String("peer", p.String()),
			zap.Stringer("state", prevState),
			zap.Stringer("role", p.role),
			zap.String("reason", reason))
	case direction == WeDroppedRemote:
		p.opts.Logger.Info("dropping peer",
			zap.String("peer", p.String()),
			zap.String("reason", reason))
	default:
		p.opts.Logger.Info("peer dropped us",
			zap.String("peer", p.String()),
			zap.String("reason", reason))
	}

	if p.manager != nil {
		p.manager.RemovePeer(p)
	}

	// If the write queue is being kept, the pump performs the shutdown when
	// it drains.
	if !delayed {
		p.shutdown()
	}
}

// shutdown tears the connection down in two steps: half-close the write side
// to push a FIN, then close the descriptor. A second call is a no-op.
func (p *Peer) shutdown() {
	p.mu.Lock()
	if p.shutdownScheduled {
		p.mu.Unlock()
		// Should not happen; kept for debugging.
		p.opts.Logger.Error("double schedule of shutdown", zap.String("peer", p.String()))
		return
	}
	p.shutdownScheduled = true
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		// The dial never completed; connectHandler closes the socket if it
		// ever does.
		return
	}

	go func() {
		// Push a FIN first: a well-behaved remote gets a chance to observe
		// the disconnect, and to read any last Err message, before the
		// descriptor is reclaimed. The remote may be hostile or unresponsive,
		// so nothing here waits on it.
		if p.wmu.TryLock() {
			if err := p.bw.Flush(); err != nil {
				p.opts.Logger.Debug("flushing before shutdown", zap.String("peer", p.String()), zap.Error(err))
			}
			p.wmu.Unlock()
		}
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			if err := cw.CloseWrite(); err != nil {
				p.opts.Logger.Debug("shutting down socket", zap.String("peer", p.String()), zap.Error(err))
			}
		}
		// Closing releases the OS resources, and fails any reads and writes
		// that are still blocked.
		if err := conn.Close(); err != nil {
			p.opts.Logger.Debug("closing socket", zap.String("peer", p.String()), zap.Error(err))
		}
	}()
}

func (p *Peer) startIdleTimer() {
	p.mu.Lock()
	p.idleTimer = time.AfterFunc(p.opts.IdleTimeout, func() {
		p.Drop("idle timeout", WeDroppedRemote, IgnoreWriteQueue)
	})
	p.mu.Unlock()
}

func (p *Peer) rearmIdleTimer() {
	p.mu.Lock()
	if p.idleTimer != nil && p.state != StateClosing {
		p.idleTimer.Reset(p.opts.IdleTimeout)
	}
	p.mu.Unlock()
}
