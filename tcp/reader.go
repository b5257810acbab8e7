package tcp

import (
	"bytes"
	"io"

	"github.com/cygnusnet/ow/codec"
	"github.com/cygnusnet/ow/wire"
	"go.uber.org/zap"
)

// startRead is the read pipeline. The stream buffer often holds several
// frames after a burst, so as many of them as possible are drained without
// blocking, bounded by the yield budget; only then does the pipeline block
// waiting for more bytes.
func (p *Peer) startRead() {
	hdr := make([]byte, codec.PrefixSize)
	for {
		if p.shouldAbort() {
			return
		}

		yt := NewYieldTimer(p.opts.YieldBudget)
		for p.br.Buffered() >= codec.PrefixSize && yt.ShouldKeepGoing() {
			if !p.readFrame(hdr) {
				return
			}
		}

		// Not even a header is buffered (or the budget ran out): block until
		// one arrives, and hope the buffering pulls in much more than the
		// few bytes asked for here.
		p.metrics.AsyncRead.Inc()
		if !p.readFrame(hdr) {
			return
		}
	}
}

// readFrame reads one header and its body, and dispatches the message. It
// returns false when the pipeline must stop, because the peer was dropped or
// an error occurred.
func (p *Peer) readFrame(hdr []byte) bool {
	if _, err := io.ReadFull(p.br, hdr); err != nil {
		p.readError(err, "header")
		return false
	}
	p.receivedBytes(codec.PrefixSize, false)

	length := p.incomingMsgLength(hdr)
	if length == 0 {
		return false
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(p.br, body); err != nil {
		p.readError(err, "body")
		return false
	}
	p.receivedBytes(length, true)

	return p.recvMessage(body)
}

// incomingMsgLength decodes and validates the length prefix. It returns zero
// if the length is unacceptable, in which case the peer has been dropped.
func (p *Peer) incomingMsgLength(hdr []byte) int {
	length := int(codec.DecodeLength(hdr))
	limit := MaxMessageSize
	authenticated := p.IsAuthenticated()
	if !authenticated {
		limit = MaxUnauthMessageSize
	}
	if length <= 0 || length > limit {
		p.metrics.ErrorRead.Inc()
		p.opts.Logger.Error("message size unacceptable",
			zap.String("peer", p.String()),
			zap.Int("length", length),
			zap.Bool("authenticated", authenticated))
		p.Drop("error during read", WeDroppedRemote, IgnoreWriteQueue)
		return 0
	}
	return length
}

// recvMessage deserializes the assembled body into a message envelope and
// forwards it. A corrupt body is the only protocol-level recoverable
// condition: the remote is told why before being dropped.
func (p *Peer) recvMessage(body []byte) bool {
	msg := wire.Msg{}
	if _, err := msg.Unmarshal(bytes.NewReader(body), MaxMessageSize); err != nil {
		p.opts.Logger.Error("received corrupt message", zap.String("peer", p.String()), zap.Error(err))
		p.SendErrorAndDrop(wire.ErrCodeData, "received corrupt message", IgnoreWriteQueue)
		return false
	}
	p.handler.DidReceiveMessage(p, msg)
	return !p.shouldAbort()
}

// receivedBytes reports inbound byte counts. A complete call closes a full
// message.
func (p *Peer) receivedBytes(n int, complete bool) {
	p.metrics.ByteRead.Add(uint64(n))
	if complete {
		p.metrics.MessageRead.Inc()
	}
	p.rearmIdleTimer()
}

func (p *Peer) readError(err error, during string) {
	if p.IsConnected() {
		// Only worth noise if the error happened while connected; errors
		// during shutdown are common and expected.
		p.metrics.ErrorRead.Inc()
		p.opts.Logger.Error("reading message",
			zap.String("peer", p.String()),
			zap.String("during", during),
			zap.Error(err))
	}
	p.Drop("error during read", WeDroppedRemote, IgnoreWriteQueue)
}
