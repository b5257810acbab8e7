package transport

import (
	"fmt"
	"sync"

	"github.com/renproject/id"
	"github.com/renproject/kv"
)

// A Table is the transport's address book: it maps remote signatories to the
// addresses at which they can be dialed. It is safe for concurrent use.
type Table struct {
	store kv.Table

	mu          *sync.Mutex
	signatories map[id.Signatory]struct{}
}

// NewTable returns an address book backed by the given store.
func NewTable(store kv.Table) Table {
	return Table{
		store: store,

		mu:          new(sync.Mutex),
		signatories: map[id.Signatory]struct{}{},
	}
}

// AddPeer records the dial address of a signatory, replacing any previous
// address.
func (table Table) AddPeer(signatory id.Signatory, addr string) error {
	if err := table.store.Insert(signatory.String(), addr); err != nil {
		return fmt.Errorf("inserting address: %v", err)
	}
	table.mu.Lock()
	table.signatories[signatory] = struct{}{}
	table.mu.Unlock()
	return nil
}

// PeerAddress returns the dial address of a signatory. It returns false if no
// address is known.
func (table Table) PeerAddress(signatory id.Signatory) (string, bool, error) {
	addr := ""
	if err := table.store.Get(signatory.String(), &addr); err != nil {
		if err == kv.ErrKeyNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("getting address: %v", err)
	}
	return addr, true, nil
}

// DeletePeer removes a signatory from the address book.
func (table Table) DeletePeer(signatory id.Signatory) error {
	table.mu.Lock()
	delete(table.signatories, signatory)
	table.mu.Unlock()

	if err := table.store.Delete(signatory.String()); err != nil {
		return fmt.Errorf("deleting address: %v", err)
	}
	return nil
}

// Addresses returns the dial addresses of every signatory in the address
// book.
func (table Table) Addresses() ([]string, error) {
	table.mu.Lock()
	signatories := make([]id.Signatory, 0, len(table.signatories))
	for signatory := range table.signatories {
		signatories = append(signatories, signatory)
	}
	table.mu.Unlock()

	addrs := make([]string, 0, len(signatories))
	for _, signatory := range signatories {
		addr, ok, err := table.PeerAddress(signatory)
		if err != nil {
			return addrs, err
		}
		if ok {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// NumPeers returns the number of signatories in the address book.
func (table Table) NumPeers() int {
	table.mu.Lock()
	defer table.mu.Unlock()
	return len(table.signatories)
}
