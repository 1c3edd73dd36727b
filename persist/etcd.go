package persist

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"mezzenger/codec"
)

// EtcdSnapshotter persists the retention table as a single etcd key: there
// is exactly one key holding the whole-table blob, since a broker has only
// one retention table to snapshot, never multiple instances to discover.
type EtcdSnapshotter struct {
	client  *clientv3.Client
	key     string
	codec   *codec.Codec
	timeout time.Duration
}

// NewEtcdSnapshotter dials the given etcd endpoints and returns a snapshotter
// storing the retention table under key.
func NewEtcdSnapshotter(endpoints []string, key string, c *codec.Codec) (*EtcdSnapshotter, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("persist: connecting to etcd: %w", err)
	}
	return &EtcdSnapshotter{client: cli, key: key, codec: c, timeout: 5 * time.Second}, nil
}

// Save puts the encoded table under the configured key, overwriting whatever
// was there before. No lease is attached: a retention snapshot should
// outlive the broker process, not expire with it.
func (e *EtcdSnapshotter) Save(t Table) error {
	data, err := encodeTable(e.codec, t)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	_, err = e.client.Put(ctx, e.key, string(data))
	if err != nil {
		return fmt.Errorf("persist: writing snapshot to etcd: %w", err)
	}
	return nil
}

// Load fetches the snapshot key. A missing key means nothing has ever been
// persisted, and Load returns an empty table, matching FileSnapshotter's
// treatment of a missing file.
func (e *EtcdSnapshotter) Load() (Table, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	resp, err := e.client.Get(ctx, e.key)
	if err != nil {
		return nil, fmt.Errorf("persist: reading snapshot from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return Table{}, nil
	}
	return decodeTable(e.codec, resp.Kvs[0].Value)
}

// Close releases the underlying etcd client connection.
func (e *EtcdSnapshotter) Close() error {
	return e.client.Close()
}
