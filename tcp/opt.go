package tcp

import (
	"time"

	"go.uber.org/zap"
)

var (
	DefaultDialTimeout = 10 * time.Second
	DefaultIdleTimeout = 2 * time.Minute
	DefaultYieldBudget = 2 * time.Millisecond
)

// Options are used to parameterise the behaviour of a Peer.
type Options struct {
	Logger *zap.Logger

	// DialTimeout bounds the outbound connection attempt made by Initiate.
	DialTimeout time.Duration
	// IdleTimeout bounds the time between reads/writes before the peer is
	// dropped.
	IdleTimeout time.Duration
	// YieldBudget bounds how long the read pipeline may drain buffered frames
	// synchronously before yielding.
	YieldBudget time.Duration
}

func DefaultOptions() Options {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return Options{
		Logger:      logger,
		DialTimeout: DefaultDialTimeout,
		IdleTimeout: DefaultIdleTimeout,
		YieldBudget: DefaultYieldBudget,
	}
}

// WithLogger sets the logger that will be used by the peer.
func (opts Options) WithLogger(logger *zap.Logger) Options {
	opts.Logger = logger
	return opts
}

// WithDialTimeout sets the timeout used when dialing outbound connections.
func (opts Options) WithDialTimeout(timeout time.Duration) Options {
	opts.DialTimeout = timeout
	return opts
}

// WithIdleTimeout sets the idle timeout after which a peer is dropped.
func (opts Options) WithIdleTimeout(timeout time.Duration) Options {
	opts.IdleTimeout = timeout
	return opts
}

// WithYieldBudget sets the synchronous drain budget of the read pipeline.
func (opts Options) WithYieldBudget(budget time.Duration) Options {
	opts.YieldBudget = budget
	return opts
}
