package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"

	"github.com/cygnusnet/ow/transport"
	"github.com/cygnusnet/ow/wire"
	"github.com/renproject/id"
	"github.com/renproject/kv"
	"go.uber.org/zap"
)

var (
	host = flag.String("host", "127.0.0.1", "host to listen on")
	port = flag.Uint("port", 0, "port to listen on")
	dial = flag.String("dial", "", "address of a peer to dial; with no address, run as an echo server")
)

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}

	table := transport.NewTable(kv.NewTable(kv.NewMemDB(kv.JSONCodec), "addressbook"))
	opts := transport.DefaultOptions().
		WithLogger(logger).
		WithHost(*host).
		WithPort(uint16(*port))
	t := transport.New(opts, table)

	echo := *dial == ""
	t.Receive(func(from id.Signatory, msg wire.Msg) {
		logger.Info("received", zap.String("from", from.String()), zap.String("data", string(msg.Data)))
		if echo {
			if err := t.Send(from, msg); err != nil {
				logger.Error("echoing", zap.Error(err))
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := t.Run(ctx); err != nil && err != context.Canceled {
			logger.Fatal("running", zap.Error(err))
		}
	}()

	if echo {
		select {}
	}

	if _, err := t.Initiate(*dial); err != nil {
		logger.Fatal("dialing", zap.Error(err))
	}

	// Every line typed becomes a data message to every connected peer.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		msg := wire.Msg{Version: wire.V1, Type: wire.Data, Data: []byte(scanner.Text())}
		for _, peer := range t.Peers() {
			if err := t.Send(peer, msg); err != nil {
				logger.Error("sending", zap.Error(err))
			}
		}
	}
}
