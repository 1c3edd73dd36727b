// Package broker implements the mezzenger broker: the request/reply inbound
// endpoint, the fan-out outbound endpoint, the ack-tracked retention table,
// and the periodic retransmit loop.
//
// Each endpoint runs its own accept loop handing connections off to their
// own goroutine, with a WaitGroup tracking in-flight work so Shutdown can
// wait for it to drain before the process exits.
package broker

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"mezzenger/codec"
	"mezzenger/middleware"
	"mezzenger/persist"
)

// State is the broker's lifecycle state machine:
// Initializing → Bound → Serving → Draining → Stopped.
type State int32

const (
	StateInitializing State = iota
	StateBound
	StateServing
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateBound:
		return "Bound"
	case StateServing:
		return "Serving"
	case StateDraining:
		return "Draining"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Default network and timing parameters, used whenever Config leaves the
// corresponding field unset.
const (
	DefaultBindAddress    = "127.0.0.1"
	DefaultPubPort        = 7201
	DefaultRecvPort       = 7202
	DefaultResendInterval = 10 * time.Second
	DefaultRetransmitTick = 1 * time.Second

	// logThrottleRate caps "dropping malformed frame" log lines; burst
	// allows a handful through immediately so the first signs of trouble
	// are never silently swallowed.
	logThrottleRate  = 2
	logThrottleBurst = 5
)

// Config configures a Broker.
type Config struct {
	BindAddress string
	PubPort     int
	RecvPort    int
	Verbose     bool

	// Codec selects the body encoding; nil defaults to codec.TypeBinary.
	Codec *codec.Codec

	// Persist is the optional snapshotter over the retention table. nil
	// means the table is purely in-memory.
	Persist persist.Snapshotter

	ResendInterval time.Duration
	RetransmitTick time.Duration
}

func (c *Config) setDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = DefaultBindAddress
	}
	if c.PubPort == 0 {
		c.PubPort = DefaultPubPort
	}
	if c.RecvPort == 0 {
		c.RecvPort = DefaultRecvPort
	}
	if c.Codec == nil {
		c.Codec = codec.New(codec.TypeBinary)
	}
	if c.ResendInterval <= 0 {
		c.ResendInterval = DefaultResendInterval
	}
	if c.RetransmitTick <= 0 {
		c.RetransmitTick = DefaultRetransmitTick
	}
}

// Broker is a long-running process owning the retention table and the
// retransmit loop.
type Broker struct {
	cfg   Config
	codec *codec.Codec

	inboundListener  net.Listener
	outboundListener net.Listener

	retentionMu sync.Mutex
	retention   persist.Table

	subsMu sync.Mutex
	subs   map[*subscriber]struct{}

	handler middleware.HandlerFunc

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup // live inbound and outbound connection handlers
}

// New constructs a Broker. Sockets are not opened until Serve is called.
func New(cfg Config) *Broker {
	cfg.setDefaults()
	b := &Broker{
		cfg:       cfg,
		codec:     cfg.Codec,
		retention: persist.Table{},
		subs:      make(map[*subscriber]struct{}),
		stopCh:    make(chan struct{}),
	}
	limiter := rate.NewLimiter(rate.Limit(logThrottleRate), logThrottleBurst)
	b.handler = middleware.Chain(
		middleware.LoggingMiddleware(cfg.Verbose),
		middleware.LogThrottleMiddleware(limiter),
	)(b.businessHandler)
	b.state.Store(int32(StateInitializing))
	return b
}

// State returns the broker's current lifecycle state.
func (b *Broker) State() State {
	return State(b.state.Load())
}

// Serve binds both transport endpoints, restores any persisted retention
// table, and runs until Shutdown is called. It returns nil on clean
// shutdown and a *BindError/*PersistError on startup failure.
func (b *Broker) Serve() error {
	inboundAddr := fmt.Sprintf("%s:%d", b.cfg.BindAddress, b.cfg.RecvPort)
	ln, err := net.Listen("tcp", inboundAddr)
	if err != nil {
		return &BindError{Endpoint: "inbound", Addr: inboundAddr, Err: err}
	}
	b.inboundListener = ln

	outboundAddr := fmt.Sprintf("%s:%d", b.cfg.BindAddress, b.cfg.PubPort)
	pubLn, err := net.Listen("tcp", outboundAddr)
	if err != nil {
		ln.Close()
		return &BindError{Endpoint: "outbound", Addr: outboundAddr, Err: err}
	}
	b.outboundListener = pubLn

	b.state.Store(int32(StateBound))

	if b.cfg.Persist != nil {
		tbl, err := b.cfg.Persist.Load()
		if err != nil {
			ln.Close()
			pubLn.Close()
			return &PersistError{Err: err}
		}
		b.retentionMu.Lock()
		b.retention = tbl
		n := len(tbl)
		b.retentionMu.Unlock()
		if n > 0 {
			log.Printf("broker: found old retention table with %d messages", n)
		}
	}

	b.state.Store(int32(StateServing))
	log.Printf("broker: serving inbound=%s outbound=%s", inboundAddr, outboundAddr)

	var accepters sync.WaitGroup
	accepters.Add(2)
	go func() { defer accepters.Done(); b.acceptInbound() }()
	go func() { defer accepters.Done(); b.acceptOutbound() }()
	go b.retransmitLoop()

	<-b.stopCh
	accepters.Wait()
	return nil
}

// Shutdown signals Serve to stop accepting new connections and every open
// connection handler to end (an inbound one after finishing the request it
// is processing), waits up to timeout for those handlers to return, writes a
// final snapshot, and transitions to Stopped.
func (b *Broker) Shutdown(timeout time.Duration) error {
	b.state.Store(int32(StateDraining))
	b.stopOnce.Do(func() { close(b.stopCh) })

	if b.inboundListener != nil {
		b.inboundListener.Close()
	}
	if b.outboundListener != nil {
		b.outboundListener.Close()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("broker: shutdown timeout waiting for in-flight requests")
	}

	if b.cfg.Persist != nil {
		b.retentionMu.Lock()
		snapshot := cloneTable(b.retention)
		b.retentionMu.Unlock()
		if err := b.cfg.Persist.Save(snapshot); err != nil {
			log.Printf("broker: final snapshot failed: %v", err)
		}
	}

	b.state.Store(int32(StateStopped))
	return nil
}

func cloneTable(t persist.Table) persist.Table {
	out := make(persist.Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
