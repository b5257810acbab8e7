package tcp

import (
	"bytes"
	"time"

	"github.com/cygnusnet/ow/codec"
	"github.com/cygnusnet/ow/wire"
	"go.uber.org/zap"
)

// Send serializes a message and enqueues it for transmission. Messages are
// written in strict enqueue order. Sending to a closing peer is a caller bug:
// the message is discarded and the state is left unchanged.
func (p *Peer) Send(msg wire.Msg) {
	buf := new(bytes.Buffer)
	if _, err := msg.Marshal(buf, MaxMessageSize); err != nil {
		p.opts.Logger.Error("marshaling message", zap.String("peer", p.String()), zap.Error(err))
		return
	}
	p.sendBytes(buf.Bytes())
}

func (p *Peer) sendBytes(payload []byte) {
	p.mu.Lock()
	if p.state == StateClosing {
		p.mu.Unlock()
		p.opts.Logger.Error("send after drop", zap.String("peer", p.String()))
		return
	}
	p.writeQueue = append(p.writeQueue, &TimestampedMessage{
		payload:      payload,
		enqueuedTime: time.Now(),
	})
	// Arm the pump if it is idle. Before the dial completes there is nothing
	// to write to; connectHandler arms the pump instead.
	arm := !p.writing && p.conn != nil
	if arm {
		p.writing = true
	}
	p.mu.Unlock()

	if arm {
		go p.messageSender()
	}
}

// SendErrorAndDrop writes an Err message directly to the connection, ahead of
// anything still queued, and then drops the peer. The direct write stands in
// for the completion ordering that would otherwise guarantee the error
// reaches the wire before the FIN.
func (p *Peer) SendErrorAndDrop(code uint8, reason string, mode DropMode) {
	if !p.shouldAbort() {
		p.mu.Lock()
		connected := p.conn != nil
		p.mu.Unlock()
		if connected {
			if payload, err := marshalErrMsg(code, reason); err == nil {
				p.wmu.Lock()
				if _, err := p.enc(p.bw, payload); err == nil {
					err = p.bw.Flush()
				}
				if err != nil {
					p.opts.Logger.Debug("sending error message", zap.String("peer", p.String()), zap.Error(err))
				}
				p.wmu.Unlock()
			}
		}
	}
	p.Drop(reason, WeDroppedRemote, mode)
}

func marshalErrMsg(code uint8, reason string) ([]byte, error) {
	data := new(bytes.Buffer)
	e := wire.Error{Code: code, Reason: reason}
	if _, err := e.Marshal(data, MaxUnauthMessageSize); err != nil {
		return nil, err
	}
	msg := wire.Msg{Version: wire.V1, Type: wire.Err, Data: data.Bytes()}
	buf := new(bytes.Buffer)
	if _, err := msg.Marshal(buf, MaxUnauthMessageSize); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// messageSender is the write pump. At most one runs per peer at any time; it
// is armed by the first enqueue and disarms itself when the queue is empty
// and flushed.
func (p *Peer) messageSender() {
	for {
		p.mu.Lock()
		if len(p.writeQueue) == 0 {
			// Nothing to do: flush, then either keep pumping (if messages
			// arrived during the flush) or disarm.
			p.lastEmpty = time.Now()
			p.mu.Unlock()

			p.wmu.Lock()
			err := p.bw.Flush()
			p.wmu.Unlock()
			p.writeHandler(err, 0)
			if err != nil {
				return
			}

			p.mu.Lock()
			if len(p.writeQueue) > 0 {
				p.mu.Unlock()
				continue
			}
			p.writing = false
			delayed := p.delayedShutdown
			p.mu.Unlock()

			// There is nothing to send and a delayed shutdown was requested;
			// time to perform it.
			if delayed {
				p.shutdown()
			}
			return
		}

		// Peek the head of the queue. It is not popped until the write
		// completes, so the buffer stays valid for the whole write.
		tsm := p.writeQueue[0]
		p.mu.Unlock()

		tsm.issuedTime = time.Now()
		p.wmu.Lock()
		_, err := p.enc(p.bw, tsm.payload)
		p.wmu.Unlock()
		tsm.completedTime = time.Now()
		tsm.recordWriteTiming(p.metrics)

		p.mu.Lock()
		p.writeQueue = p.writeQueue[1:]
		p.mu.Unlock()

		transferred := 0
		if err == nil {
			transferred = codec.PrefixSize + len(tsm.payload)
		}
		p.writeHandler(err, transferred)
		if err != nil {
			return
		}
	}
}

// writeHandler accounts for the outcome of one write or flush.
func (p *Peer) writeHandler(err error, bytesTransferred int) {
	p.mu.Lock()
	p.lastWrite = time.Now()
	delayed := p.delayedShutdown
	p.mu.Unlock()

	if err != nil {
		if p.IsConnected() {
			// Only worth noise if the error happened while connected; errors
			// during shutdown or connection are common.
			p.metrics.ErrorWrite.Inc()
			p.opts.Logger.Error("sending message", zap.String("peer", p.String()), zap.Error(err))
		}
		if delayed {
			// A delayed shutdown was requested; time to perform it.
			p.shutdown()
		} else {
			p.Drop("error during write", WeDroppedRemote, IgnoreWriteQueue)
		}
		return
	}

	if bytesTransferred > 0 {
		p.metrics.MessageWrite.Inc()
		p.metrics.ByteWrite.Add(uint64(bytesTransferred))
		p.rearmIdleTimer()
	}
}
