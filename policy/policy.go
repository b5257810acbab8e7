// Package policy defines functions that control which connections are
// allowed, and which ones are denied. For server-side imposed policies, Allow
// functions are used to filter connections. For client-side imposed policies,
// Timeout functions bound dial attempts.
//
// Policy functions are built in a functional style and are designed to be
// composed.
//
//	// Only allow 100 concurrent connections at any one point.
//	maxConns := policy.Max(100)
//	// Only allow 1 connection attempt per second per IP address.
//	rateLimit := policy.RateLimit(1.0, 1, 65535)
//	// Require that both pass.
//	all := policy.All(maxConns, rateLimit)
package policy

import (
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a connection is dropped because its IP
// address has attempted too many connections too quickly.
var ErrRateLimited = errors.New("rate limited")

// ErrMaxConnectionsExceeded is returned when a connection is dropped because
// the maximum number of connections has been reached.
var ErrMaxConnectionsExceeded = errors.New("max connections exceeded")

// Allow is a function that filters connections. If an error is returned, the
// connection is filtered and closed. Otherwise, it is maintained. A clean-up
// function is also returned; it is called when the connection is being
// closed, regardless of whether the closure was caused by filtering or by
// normal control-flow.
type Allow func(net.Conn) (error, Cleanup)

// Cleanup resource allocation, or reverse per-connection state mutations,
// done by an Allow function.
type Cleanup func()

// Timeout returns the dial timeout to use for the given attempt number.
type Timeout func(attempt int) time.Duration

// All returns an Allow function that only passes a connection if every Allow
// function in the set passes. Execution is lazy: once one of the Allow
// functions returns an error, no more are called.
func All(fs ...Allow) Allow {
	return func(conn net.Conn) (error, Cleanup) {
		cleanup := func() {}
		for _, f := range fs {
			err, fCleanup := f(conn)
			if fCleanup != nil {
				prev := cleanup
				cleanup = func() {
					fCleanup()
					prev()
				}
			}
			if err != nil {
				return err, cleanup
			}
		}
		return nil, cleanup
	}
}

// Max returns an Allow function that rejects connections once maxConns
// accepted connections are being kept alive. Closing an accepted connection
// opens room for another.
func Max(maxConns int) Allow {
	mu := new(sync.Mutex)
	conns := 0

	return func(conn net.Conn) (error, Cleanup) {
		if maxConns < 0 {
			return nil, nil
		}

		mu.Lock()
		if conns >= maxConns {
			mu.Unlock()
			return ErrMaxConnectionsExceeded, nil
		}
		conns++
		mu.Unlock()

		return nil, func() {
			mu.Lock()
			conns--
			mu.Unlock()
		}
	}
}

// RateLimit returns an Allow function that rejects an IP address if it
// attempts too many connections too quickly. At most cap limiters are kept;
// older limiters are rotated out in bulk once the capacity is reached.
func RateLimit(r rate.Limit, burst, cap int) Allow {
	cap /= 2
	mu := new(sync.Mutex)
	front := make(map[string]*rate.Limiter, cap)
	back := make(map[string]*rate.Limiter, cap)

	return func(conn net.Conn) (error, Cleanup) {
		ip := ""
		if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			ip = tcpAddr.IP.String()
		} else {
			ip = conn.RemoteAddr().String()
		}

		mu.Lock()
		limiter := front[ip]
		if limiter == nil {
			limiter = back[ip]
		}
		if limiter == nil {
			if len(front) >= cap {
				back = front
				front = make(map[string]*rate.Limiter, cap)
			}
			limiter = rate.NewLimiter(r, burst)
			front[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			return ErrRateLimited, nil
		}
		return nil, nil
	}
}

// ConstantTimeout returns a Timeout function that returns the same timeout
// for every attempt.
func ConstantTimeout(timeout time.Duration) Timeout {
	return func(int) time.Duration {
		return timeout
	}
}
