package testutil

import (
	"github.com/cygnusnet/ow/tcp"
	"github.com/cygnusnet/ow/wire"
)

// A MockManager records the peers that remove themselves.
type MockManager struct {
	Removed chan *tcp.Peer
}

func NewMockManager() *MockManager {
	return &MockManager{Removed: make(chan *tcp.Peer, 16)}
}

func (m *MockManager) RemovePeer(p *tcp.Peer) {
	select {
	case m.Removed <- p:
	default:
	}
}

// A MockHandler records every message dispatched by a peer.
type MockHandler struct {
	Msgs chan wire.Msg
}

func NewMockHandler() *MockHandler {
	return &MockHandler{Msgs: make(chan wire.Msg, 1024)}
}

func (h *MockHandler) DidReceiveMessage(p *tcp.Peer, msg wire.Msg) {
	h.Msgs <- msg
}
