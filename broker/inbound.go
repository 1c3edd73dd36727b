package broker

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"mezzenger/message"
	"mezzenger/middleware"
	"mezzenger/persist"
	"mezzenger/wire"
)

// replyConnKeyType is an unexported context key type, following the
// standard library's own advice (context.WithValue docs) to avoid
// collisions across packages. The inbound pipeline uses it to carry the
// replying net.Conn through middleware.HandlerFunc, whose signature has no
// connection parameter of its own.
type replyConnKeyType struct{}

var replyConnKey = replyConnKeyType{}

// acceptInbound runs the accept loop for the request/reply endpoint. Each
// accepted connection is handled on its own goroutine and processes one
// frame at a time: a connection never has more than one request pending,
// so frames are read and dispatched strictly in sequence.
func (b *Broker) acceptInbound() {
	for {
		conn, err := b.inboundListener.Accept()
		if err != nil {
			if b.State() >= StateDraining {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			log.Printf("broker: inbound accept error: %v", err)
			continue
		}
		b.wg.Add(1)
		go b.handleInboundConn(conn)
	}
}

func (b *Broker) handleInboundConn(conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()

	// Once the broker starts draining, unblock the pending read so the
	// handler returns; a request already being processed still gets its
	// reply, since only the read side is cut off.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-b.stopCh:
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		_, body, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		b.processInboundFrame(conn, body)
	}
}

// processInboundFrame decodes one frame and runs it through the middleware
// chain. Raw is preserved so businessHandler can republish the exact bytes
// that were received, rather than re-encoding a message that already has a
// valid wire form.
func (b *Broker) processInboundFrame(conn net.Conn, raw []byte) {
	m, err := b.codec.Decode(raw)
	evt := &middleware.InboundEvent{Msg: m, DecodeErr: err, Raw: raw}

	ctx := context.WithValue(context.Background(), replyConnKey, conn)
	b.handler(ctx, evt)
}

// businessHandler is the innermost link in the middleware chain: it dispatches
// a decoded message to the ack/ping/publish behavior that name implies. A
// decode failure is dropped silently here — logging it is
// LogThrottleMiddleware's job, not the business handler's.
func (b *Broker) businessHandler(ctx context.Context, evt *middleware.InboundEvent) {
	if evt.DecodeErr != nil {
		return
	}
	conn, _ := ctx.Value(replyConnKey).(net.Conn)
	m := evt.Msg

	switch m.Name {
	case message.NameAck:
		b.handleAck(m)
		b.reply(conn)
		return
	case message.NamePing:
		b.reply(conn)
		return
	}

	if m.Ack > 0 {
		b.retain(m)
	}
	// Reply before publish: the sending client must not block on fan-out
	// to every subscriber before it gets its own "OK" back.
	b.reply(conn)
	b.publishRaw(evt.Raw, m.Name)
}

// handleAck removes a retained message once its checksum has been
// acknowledged. An unknown checksum (already acked, already expired, or
// simply wrong) is not an error — acks are idempotent.
func (b *Broker) handleAck(m message.Message) {
	checksum := string(m.Payload)

	b.retentionMu.Lock()
	_, existed := b.retention[checksum]
	delete(b.retention, checksum)
	var snapshot persist.Table
	if existed && b.cfg.Persist != nil {
		snapshot = cloneTable(b.retention)
	}
	b.retentionMu.Unlock()

	if snapshot != nil {
		if err := b.cfg.Persist.Save(snapshot); err != nil {
			log.Printf("broker: persisting after ack failed: %v", err)
		}
	}
}

// retain records m in the retention table so the retransmit loop keeps
// resending it until an ack arrives.
func (b *Broker) retain(m message.Message) {
	entry := persist.Entry{LastResentAt: time.Now(), Msg: m}

	b.retentionMu.Lock()
	b.retention[m.Checksum] = entry
	var snapshot persist.Table
	if b.cfg.Persist != nil {
		snapshot = cloneTable(b.retention)
	}
	b.retentionMu.Unlock()

	if snapshot != nil {
		if err := b.cfg.Persist.Save(snapshot); err != nil {
			log.Printf("broker: persisting after retain failed: %v", err)
		}
	}
}

// reply writes the literal "OK" acknowledgment frame. conn may be nil in
// tests that drive businessHandler directly; a nil conn is a no-op.
func (b *Broker) reply(conn net.Conn) {
	if conn == nil {
		return
	}
	if err := wire.WriteFrame(conn, wire.FrameReplyOK, []byte("OK")); err != nil {
		log.Printf("broker: writing reply failed: %v", err)
	}
}
