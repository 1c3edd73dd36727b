// Command mezzenger-broker runs a standalone mezzenger broker process.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mezzenger/broker"
	"mezzenger/codec"
	"mezzenger/persist"
)

func main() {
	var (
		bind           = flag.String("bind", broker.DefaultBindAddress, "address to bind both endpoints on")
		pubPort        = flag.Int("pub-port", broker.DefaultPubPort, "port for the publish (subscriber) endpoint")
		recvPort       = flag.Int("recv-port", broker.DefaultRecvPort, "port for the request/reply (inbound) endpoint")
		persistFile    = flag.String("persist-file", "", "file backend: path to a snapshot of the retention table (disabled if empty); etcd backend: the etcd key (default /mezzenger/retention)")
		persistBackend = flag.String("persist-backend", "file", "retention table persistence backend: file or etcd")
		etcdEndpoints  = flag.String("etcd-endpoints", "127.0.0.1:2379", "comma-separated etcd endpoints, used when -persist-backend=etcd")
		verbose        = flag.Bool("verbose", false, "log every handled message")
		shutdownWait   = flag.Duration("shutdown-timeout", 5*time.Second, "max time to wait for in-flight requests on shutdown")
	)
	flag.Parse()

	cfg := broker.Config{
		BindAddress: *bind,
		PubPort:     *pubPort,
		RecvPort:    *recvPort,
		Verbose:     *verbose,
		Codec:       codec.New(codec.TypeBinary),
	}

	snapshotter, closeSnapshotter, err := buildSnapshotter(*persistBackend, *persistFile, *etcdEndpoints, cfg.Codec)
	if err != nil {
		log.Fatalf("mezzenger-broker: %v", err)
	}
	if closeSnapshotter != nil {
		defer closeSnapshotter()
	}
	cfg.Persist = snapshotter

	b := broker.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- b.Serve() }()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatalf("mezzenger-broker: %v", err)
		}
	case <-ctx.Done():
		log.Printf("mezzenger-broker: shutting down")
		if err := b.Shutdown(*shutdownWait); err != nil {
			log.Fatalf("mezzenger-broker: shutdown: %v", err)
		}
		<-serveErr
	}

	log.Printf("mezzenger-broker: stopped")
}

func buildSnapshotter(backend, persistFile, etcdEndpoints string, c *codec.Codec) (persist.Snapshotter, func(), error) {
	switch backend {
	case "file":
		if persistFile == "" {
			return nil, nil, nil
		}
		return persist.NewFileSnapshotter(persistFile, c), nil, nil
	case "etcd":
		endpoints := strings.Split(etcdEndpoints, ",")
		key := persistFile
		if key == "" {
			key = "/mezzenger/retention"
		}
		snap, err := persist.NewEtcdSnapshotter(endpoints, key, c)
		if err != nil {
			return nil, nil, err
		}
		return snap, func() { snap.Close() }, nil
	default:
		log.Fatalf("mezzenger-broker: unknown -persist-backend %q (want file or etcd)", backend)
		return nil, nil, nil
	}
}
