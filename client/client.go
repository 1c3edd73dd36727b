// Package client implements the mezzenger client: a request/reply
// connection for sending messages, a subscription connection for receiving
// published ones, and the background receive loop that dispatches incoming
// messages to subscriber callbacks and acks them back to the broker.
//
// A client never has more than one request in flight on its send
// connection, so there is never more than one pending caller to route a
// reply to and no sequence numbers are needed to tell replies apart.
package client

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"mezzenger/codec"
	"mezzenger/message"
	"mezzenger/wire"
)

// Callback receives a published message's payload and the full message.
type Callback func(payload []byte, m message.Message)

// Config configures a Client.
type Config struct {
	ServerAddress string // host, e.g. "127.0.0.1"
	SendPort      int    // broker's inbound (request/reply) port
	SubPort       int    // broker's outbound (publish) port

	SendTimeout       time.Duration // per-attempt wait for a reply
	ConnectionRetries int           // additional attempts after the first timeout

	Verbose bool
	Codec   *codec.Codec
}

func (c *Config) setDefaults() {
	if c.ServerAddress == "" {
		c.ServerAddress = "127.0.0.1"
	}
	if c.SendPort == 0 {
		c.SendPort = 7202
	}
	if c.SubPort == 0 {
		c.SubPort = 7201
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 2 * time.Second
	}
	if c.ConnectionRetries <= 0 {
		c.ConnectionRetries = 5
	}
	if c.Codec == nil {
		c.Codec = codec.New(codec.TypeBinary)
	}
}

func (c *Config) sendAddr() string {
	return net.JoinHostPort(c.ServerAddress, strconv.Itoa(c.SendPort))
}

func (c *Config) subAddr() string {
	return net.JoinHostPort(c.ServerAddress, strconv.Itoa(c.SubPort))
}

// ErrUnreachable is returned by Send when the broker did not reply within
// send_timeout * (connection_retries + 1).
var ErrUnreachable = errors.New("client: server unreachable")

// ErrStopped is returned by Subscribe/Unsubscribe/Send once the client has
// been stopped.
var ErrStopped = errors.New("client: stopped")

// Client is a long-lived connection to one mezzenger broker. It owns two
// connections — a request/reply connection and a subscription connection —
// and a background goroutine dispatching published messages to callbacks.
type Client struct {
	cfg Config

	sendMu   sync.Mutex // serializes Send: at most one request in flight on sendConn
	sendConn net.Conn

	subConn net.Conn

	subsMu sync.Mutex
	subs   map[string]Callback

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New dials both broker endpoints and performs a one-shot ping handshake to
// confirm the broker is actually reachable, then starts the background
// receive loop. It returns an error if either connection cannot be
// established or the ping handshake fails.
func New(cfg Config) (*Client, error) {
	cfg.setDefaults()
	c := &Client{
		cfg:    cfg,
		subs:   make(map[string]Callback),
		stopCh: make(chan struct{}),
	}

	if err := c.reconnectSub(); err != nil {
		return nil, fmt.Errorf("client: connecting sub socket: %w", err)
	}
	if err := c.reconnectSend(); err != nil {
		c.subConn.Close()
		return nil, fmt.Errorf("client: connecting send socket: %w", err)
	}

	if _, err := c.send(message.New(message.NamePing, []byte("ping"), 0)); err != nil {
		c.subConn.Close()
		c.sendConn.Close()
		return nil, fmt.Errorf("client: could not connect to server: %w", err)
	}

	c.wg.Add(1)
	go c.receiveLoop()

	return c, nil
}

func (c *Client) reconnectSend() error {
	if c.sendConn != nil {
		c.sendConn.Close()
	}
	if c.cfg.Verbose {
		log.Printf("client: connecting send socket: %s", c.cfg.sendAddr())
	}
	conn, err := net.DialTimeout("tcp", c.cfg.sendAddr(), c.cfg.SendTimeout)
	if err != nil {
		return err
	}
	c.sendConn = conn
	return nil
}

func (c *Client) reconnectSub() error {
	if c.subConn != nil {
		c.subConn.Close()
	}
	if c.cfg.Verbose {
		log.Printf("client: connecting sub socket: %s", c.cfg.subAddr())
	}
	conn, err := net.DialTimeout("tcp", c.cfg.subAddr(), c.cfg.SendTimeout)
	if err != nil {
		return err
	}
	c.subConn = conn

	// Re-register every active subscription filter on the fresh connection —
	// a reconnect otherwise silently drops subscriptions the caller already
	// made, since the filter set lives on this net.Conn, not on the broker.
	c.subsMu.Lock()
	names := make([]string, 0, len(c.subs))
	for name := range c.subs {
		names = append(names, name)
	}
	c.subsMu.Unlock()
	for _, name := range names {
		if err := wire.WriteFrame(c.subConn, wire.FrameSubscribe, []byte(name)); err != nil {
			return err
		}
	}
	return nil
}

// send transmits msg to the broker and waits for its "OK" reply, retrying
// ConnectionRetries additional times on timeout before giving up. The
// message is encoded once and resent on every retry attempt, not just the
// first, since a prior attempt's frame may never have reached the broker.
func (c *Client) send(m message.Message) ([]byte, error) {
	raw, err := c.cfg.Codec.Encode(m)
	if err != nil {
		return nil, err
	}

	if c.cfg.Verbose {
		log.Printf("client: sending message: %s", m.String())
	}

	attempts := 1 + c.cfg.ConnectionRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.reconnectSend(); err != nil {
				continue
			}
		}

		c.sendConn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout))
		if err := wire.WriteFrame(c.sendConn, wire.FrameMessage, raw); err != nil {
			continue
		}

		c.sendConn.SetReadDeadline(time.Now().Add(c.cfg.SendTimeout))
		h, body, err := wire.ReadFrame(c.sendConn)
		if err != nil {
			if c.cfg.Verbose {
				log.Printf("client: timed out waiting for reply from server")
			}
			continue
		}
		if h.Type != wire.FrameReplyOK {
			continue
		}
		return body, nil
	}

	c.reconnectSend()
	if c.cfg.Verbose {
		log.Printf("client: could not send message %s, server unreachable", m.Name)
	}
	return nil, ErrUnreachable
}

// Send transmits a message to the broker. ack > 0 asks the broker to retain
// and retransmit the message until it is acked by some client.
func (c *Client) Send(name string, payload []byte, ack int) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.isStopped() {
		return ErrStopped
	}
	_, err := c.send(message.New(name, payload, ack))
	if err != nil {
		return fmt.Errorf("client: could not send message to server: %w", err)
	}
	return nil
}

// Subscribe registers cb to be invoked for every received message named
// exactly msgName. The broker filters by name prefix, so messages whose
// names merely start with msgName also arrive on the subscription
// connection, but the receive loop does not pass them to cb. Calling
// Subscribe again for the same name replaces the callback without
// re-sending the subscribe frame.
func (c *Client) Subscribe(msgName string, cb Callback) error {
	if c.isStopped() {
		return ErrStopped
	}

	c.subsMu.Lock()
	_, already := c.subs[msgName]
	c.subs[msgName] = cb
	c.subsMu.Unlock()

	if already {
		return nil
	}
	return wire.WriteFrame(c.subConn, wire.FrameSubscribe, []byte(msgName))
}

// Unsubscribe removes msgName from the active subscription set. It returns
// an error if the client was never subscribed to msgName, matching the
// source's behavior.
func (c *Client) Unsubscribe(msgName string) error {
	if c.isStopped() {
		return ErrStopped
	}

	c.subsMu.Lock()
	_, ok := c.subs[msgName]
	if ok {
		delete(c.subs, msgName)
	}
	c.subsMu.Unlock()

	if !ok {
		return fmt.Errorf("client: not subscribed to %q", msgName)
	}
	return wire.WriteFrame(c.subConn, wire.FrameUnsubscribe, []byte(msgName))
}

// receiveLoop reads published messages off the subscription connection and
// dispatches them to their registered callback, acking ack-requested
// messages back to the broker. A decode failure is logged and the loop
// continues; only a transport-level read error ends the loop.
func (c *Client) receiveLoop() {
	defer c.wg.Done()
	for {
		_, body, err := wire.ReadFrame(c.subConn)
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			log.Printf("client: subscription connection closed: %v", err)
			return
		}

		m, err := c.cfg.Codec.Decode(body)
		if err != nil {
			log.Printf("client: could not parse message: %v", err)
			continue
		}

		c.subsMu.Lock()
		cb, ok := c.subs[m.Name]
		c.subsMu.Unlock()
		if !ok {
			continue
		}

		if c.cfg.Verbose {
			log.Printf("client: got message: %s", m.String())
		}
		cb(m.Payload, m)

		if m.Ack > 0 {
			if c.cfg.Verbose {
				log.Printf("client: acking message: %s", m.Checksum)
			}
			if err := c.Send(message.NameAck, []byte(m.Checksum), 0); err != nil {
				log.Printf("client: could not send ack: %v", err)
			}
		}
	}
}

func (c *Client) isStopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Stop closes both connections and waits for the receive loop to exit.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.sendMu.Lock()
		c.sendConn.Close()
		c.sendMu.Unlock()
		c.subConn.Close()
	})
	c.wg.Wait()
}
