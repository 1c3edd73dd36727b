package broker

import (
	"errors"
	"log"
	"net"
	"strings"
	"sync"

	"mezzenger/wire"
)

// subscriber represents one connection on the outbound (publish) endpoint.
// There is no ZMQ socket-option subscription filter to lean on here, so the
// broker tracks each subscriber's active prefix filters itself and matches
// them by hand in publishRaw.
type subscriber struct {
	conn    net.Conn
	writeMu sync.Mutex

	filtersMu sync.Mutex
	filters   map[string]struct{}
}

func newSubscriber(conn net.Conn) *subscriber {
	return &subscriber{conn: conn, filters: make(map[string]struct{})}
}

func (s *subscriber) addFilter(prefix string) {
	s.filtersMu.Lock()
	defer s.filtersMu.Unlock()
	s.filters[prefix] = struct{}{}
}

func (s *subscriber) removeFilter(prefix string) {
	s.filtersMu.Lock()
	defer s.filtersMu.Unlock()
	delete(s.filters, prefix)
}

// matches reports whether name satisfies any of this subscriber's active
// prefix filters.
func (s *subscriber) matches(name string) bool {
	s.filtersMu.Lock()
	defer s.filtersMu.Unlock()
	for prefix := range s.filters {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func (s *subscriber) write(raw []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteFrame(s.conn, wire.FrameMessage, raw)
}

// acceptOutbound runs the accept loop for the publish endpoint. Each
// connection is registered as a subscriber until it disconnects or the
// broker starts draining.
func (b *Broker) acceptOutbound() {
	for {
		conn, err := b.outboundListener.Accept()
		if err != nil {
			if b.State() >= StateDraining {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			log.Printf("broker: outbound accept error: %v", err)
			continue
		}
		b.wg.Add(1)
		go b.handleOutboundConn(conn)
	}
}

func (b *Broker) handleOutboundConn(conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()

	sub := newSubscriber(conn)
	b.subsMu.Lock()
	b.subs[sub] = struct{}{}
	b.subsMu.Unlock()

	defer func() {
		b.subsMu.Lock()
		delete(b.subs, sub)
		b.subsMu.Unlock()
	}()

	// Close the subscriber connection once the broker starts draining, which
	// also ends the read loop below.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-b.stopCh:
			conn.Close()
		case <-done:
		}
	}()

	for {
		h, body, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		switch h.Type {
		case wire.FrameSubscribe:
			sub.addFilter(string(body))
		case wire.FrameUnsubscribe:
			sub.removeFilter(string(body))
		default:
			// The outbound endpoint only ever receives control frames from a
			// subscriber; anything else is ignored rather than torn down, in
			// case a future client sends a heartbeat of some kind here.
		}
	}
}

// publishRaw fans raw (an already-encoded frame body) out to every
// subscriber whose filters match name.
func (b *Broker) publishRaw(raw []byte, name string) {
	b.subsMu.Lock()
	matched := make([]*subscriber, 0, len(b.subs))
	for sub := range b.subs {
		if sub.matches(name) {
			matched = append(matched, sub)
		}
	}
	b.subsMu.Unlock()

	for _, sub := range matched {
		if err := sub.write(raw); err != nil {
			log.Printf("broker: publish to subscriber failed: %v", err)
		}
	}
}
