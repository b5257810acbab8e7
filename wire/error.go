package wire

import (
	"fmt"
	"io"

	"github.com/renproject/surge"
)

// Enumeration of all error codes carried by Err messages.
const (
	// ErrCodeMisc is an unspecific error.
	ErrCodeMisc = uint8(0)
	// ErrCodeData marks a malformed or otherwise undecodable payload.
	ErrCodeData = uint8(1)
	// ErrCodeConf marks a configuration mismatch between peers.
	ErrCodeConf = uint8(2)
	// ErrCodeAuth marks an authentication failure.
	ErrCodeAuth = uint8(3)
	// ErrCodeLoad marks a peer that is shedding load.
	ErrCodeLoad = uint8(4)
)

// An Error is the payload of an Err message. It tells the remote peer why it
// is being disconnected.
type Error struct {
	Code   uint8  `json:"code"`
	Reason string `json:"reason"`
}

func (e Error) Error() string {
	return fmt.Sprintf("code=%v: %v", e.Code, e.Reason)
}

func (e Error) SizeHint() int {
	return surge.SizeHint(e.Code) + surge.SizeHint(e.Reason)
}

func (e Error) Marshal(w io.Writer, m int) (int, error) {
	m, err := surge.Marshal(w, e.Code, m)
	if err != nil {
		return m, fmt.Errorf("marshaling code: %v", err)
	}
	m, err = surge.Marshal(w, e.Reason, m)
	if err != nil {
		return m, fmt.Errorf("marshaling reason: %v", err)
	}
	return m, nil
}

func (e *Error) Unmarshal(r io.Reader, m int) (int, error) {
	m, err := surge.Unmarshal(r, &e.Code, m)
	if err != nil {
		return m, fmt.Errorf("unmarshaling code: %v", err)
	}
	m, err = surge.Unmarshal(r, &e.Reason, m)
	if err != nil {
		return m, fmt.Errorf("unmarshaling reason: %v", err)
	}
	return m, nil
}
