package transport

import (
	"crypto/ecdsa"
	"runtime"

	"github.com/cygnusnet/ow/policy"
	"github.com/cygnusnet/ow/tcp"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var (
	DefaultHost = "0.0.0.0"
	DefaultPort = uint16(19740)
)

// Options are used to parameterise the behaviour of a Transport.
type Options struct {
	Logger  *zap.Logger
	Host    string
	Port    uint16
	PrivKey *ecdsa.PrivateKey

	// PeerOptions are used for every peer created by the transport.
	PeerOptions tcp.Options
	// Allow filters inbound connections. Nil allows everything.
	Allow policy.Allow
	// BootstrapWorkers bounds the parallelism of Bootstrap.
	BootstrapWorkers int
}

func DefaultOptions() Options {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	privKey, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return Options{
		Logger:  logger,
		Host:    DefaultHost,
		Port:    DefaultPort,
		PrivKey: privKey,

		PeerOptions:      tcp.DefaultOptions().WithLogger(logger),
		BootstrapWorkers: 2 * runtime.NumCPU(),
	}
}

func (opts Options) WithLogger(logger *zap.Logger) Options {
	opts.Logger = logger
	opts.PeerOptions = opts.PeerOptions.WithLogger(logger)
	return opts
}

func (opts Options) WithHost(host string) Options {
	opts.Host = host
	return opts
}

func (opts Options) WithPort(port uint16) Options {
	opts.Port = port
	return opts
}

func (opts Options) WithPrivKey(privKey *ecdsa.PrivateKey) Options {
	opts.PrivKey = privKey
	return opts
}

func (opts Options) WithPeerOptions(peerOpts tcp.Options) Options {
	opts.PeerOptions = peerOpts
	return opts
}

func (opts Options) WithAllow(allow policy.Allow) Options {
	opts.Allow = allow
	return opts
}

func (opts Options) WithBootstrapWorkers(workers int) Options {
	opts.BootstrapWorkers = workers
	return opts
}
