package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/cygnusnet/ow/policy"
)

// Listen for connections from remote peers until the context is done. The
// allow function controls the acceptance/rejection of connection attempts,
// and can be used to implement maximum connection limits, per-IP
// rate-limiting, and so on. Ownership of each accepted connection passes to
// the handle function, along with the cleanup returned by the allow function;
// the handle function (or the peer it creates) is responsible for closing the
// connection and running the cleanup. This function blocks until the context
// is done.
func Listen(ctx context.Context, address string, handle func(net.Conn, policy.Cleanup), handleErr func(error), allow policy.Allow) error {
	listener, err := new(net.ListenConfig).Listen(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return ListenWithListener(ctx, listener, handle, handleErr, allow)
}

// ListenWithListener behaves like Listen with an existing listener. The
// listener is closed when the context finishes.
func ListenWithListener(ctx context.Context, listener net.Listener, handle func(net.Conn, policy.Cleanup), handleErr func(error), allow policy.Allow) error {
	if handle == nil {
		return fmt.Errorf("nil handle function")
	}
	if handleErr == nil {
		handleErr = func(error) {}
	}

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			handleErr(fmt.Errorf("close listener: %v", err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			handleErr(fmt.Errorf("accept connection: %v", err))
			continue
		}

		if allow == nil {
			handle(conn, nil)
			continue
		}

		err, cleanup := allow(conn)
		if err == nil {
			handle(conn, cleanup)
			continue
		}
		handleErr(err)
		if cleanup != nil {
			cleanup()
		}
		if err := conn.Close(); err != nil {
			handleErr(fmt.Errorf("close connection: %v", err))
		}
	}
}
