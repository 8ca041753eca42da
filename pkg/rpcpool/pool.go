// Package rpcpool implements the fixed-capacity, per-address connection
// pool: a small set of long-lived channels to one remote
// address, kept healthy by an idle-writer heartbeat and replaced via
// compare-and-swap when a slot goes unhealthy.
package rpcpool

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/logger"
	"slgserver/pkg/wire"
)

// Channel is one pooled connection to a remote address.
type Channel struct {
	conn    net.Conn
	Encoder *wire.Encoder
	Decoder *wire.Decoder

	closed   int32
	failCnt  int32
	lastSent atomic.Int64 // unix nano of last outbound write

	onFrame func(*Channel, *wire.Frame)
	onClose func(*Channel)
}

// Address returns the remote address string this channel is connected to.
func (c *Channel) Address() string { return c.conn.RemoteAddr().String() }

// Healthy reports whether the channel is still usable: transport open and
// the heartbeat fail counter hasn't hit its ceiling.
func (c *Channel) Healthy() bool {
	return atomic.LoadInt32(&c.closed) == 0
}

// Write encodes and writes f, resetting the idle-writer clock.
func (c *Channel) Write(f *wire.Frame) error {
	if !c.Healthy() {
		return apperror.New(apperror.CodeConnFail, "channel closed")
	}
	c.lastSent.Store(time.Now().UnixNano())
	if err := c.Encoder.Encode(f); err != nil {
		c.Close()
		return apperror.Wrap(err, apperror.CodeConnFail, "channel write failed")
	}
	return nil
}

// Close marks the channel closed and closes the underlying transport. Safe
// to call more than once.
func (c *Channel) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	err := c.conn.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
	return err
}

func (c *Channel) readLoop() {
	for {
		f, err := c.Decoder.Decode()
		if err != nil {
			c.Close()
			return
		}
		switch f.Type {
		case wire.MessageHeartbeatResponse:
			atomic.StoreInt32(&c.failCnt, 0)
		case wire.MessageHeartbeatRequest:
			_ = c.Write(wire.NewHeartbeat(f.RequestID, true))
		default:
			if c.onFrame != nil {
				c.onFrame(c, f)
			}
		}
	}
}

func (c *Channel) heartbeatLoop(interval time.Duration, maxFail int32) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !c.Healthy() {
			return
		}
		if time.Since(time.Unix(0, c.lastSent.Load())) < interval {
			continue
		}
		if atomic.AddInt32(&c.failCnt, 1) > maxFail {
			logger.Log.Warn("channel heartbeat exceeded max fail count, closing", "addr", c.Address())
			c.Close()
			return
		}
		_ = c.Write(wire.NewHeartbeat(uint64(time.Now().UnixNano()), false))
	}
}

// Options configures a Pool.
type Options struct {
	Capacity          int           // N, fixed slots per address
	Initial           int           // channels eagerly opened on first acquire
	DialTimeout       time.Duration
	MaxFrameSize      int
	HeartbeatInterval time.Duration
	MaxFail           int32
	OnFrame           func(*Channel, *wire.Frame) // inbound RESPONSE/REQUEST dispatch
}

func (o *Options) setDefaults() {
	if o.Capacity <= 0 {
		o.Capacity = 4
	}
	if o.Initial <= 0 {
		o.Initial = 1
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.MaxFail <= 0 {
		o.MaxFail = 3
	}
}

// Pool holds up to Capacity channels to one remote address, lazily
// initialized and self-healing via CAS slot replacement.
type Pool struct {
	address string
	opts    Options

	slots []atomic.Pointer[Channel]
	index uint64
	once  sync.Once
}

// NewPool returns a Pool for address. No connections are opened until the
// first Acquire.
func NewPool(address string, opts Options) *Pool {
	opts.setDefaults()
	return &Pool{
		address: address,
		opts:    opts,
		slots:   make([]atomic.Pointer[Channel], opts.Capacity),
	}
}

// Address returns the remote address this pool targets.
func (p *Pool) Address() string { return p.address }

func (p *Pool) dial(ctx context.Context) (*Channel, error) {
	d := net.Dialer{Timeout: p.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConnFail, "dial failed").
			WithDetails("address", p.address)
	}

	ch := &Channel{
		conn:    conn,
		Encoder: wire.NewEncoder(conn, p.opts.MaxFrameSize),
		Decoder: wire.NewDecoder(conn, p.opts.MaxFrameSize),
		onFrame: p.opts.OnFrame,
	}
	ch.lastSent.Store(time.Now().UnixNano())

	go ch.readLoop()
	go ch.heartbeatLoop(p.opts.HeartbeatInterval, p.opts.MaxFail)

	return ch, nil
}

// Acquire returns a healthy channel, lazily initializing the pool's
// initial slot set on first call, replacing unhealthy slots via CAS.
func (p *Pool) Acquire(ctx context.Context) (*Channel, error) {
	var initErr error
	p.once.Do(func() {
		for i := 0; i < p.opts.Initial && i < len(p.slots); i++ {
			ch, err := p.dial(ctx)
			if err != nil {
				initErr = err
				return
			}
			p.slots[i].Store(ch)
		}
	})
	if initErr != nil {
		return nil, initErr
	}

	n := uint64(len(p.slots))
	for attempt := uint64(0); attempt < n; attempt++ {
		idx := atomic.AddUint64(&p.index, 1) % n
		slot := &p.slots[idx]

		if ch := slot.Load(); ch != nil && ch.Healthy() {
			return ch, nil
		}

		fresh, err := p.dial(ctx)
		if err != nil {
			continue
		}
		old := slot.Load()
		if slot.CompareAndSwap(old, fresh) {
			if old != nil {
				old.Close()
			}
			return fresh, nil
		}
		// lost the CAS race: someone else installed a channel first.
		fresh.Close()
		if ch := slot.Load(); ch != nil && ch.Healthy() {
			return ch, nil
		}
	}

	return nil, apperror.New(apperror.CodeConnFail, "no active channel available").
		WithDetails("address", p.address)
}

// Close sweeps and closes every slot asynchronously. Re-acquire after
// Close fails fast since slots are never re-dialed once cleared.
func (p *Pool) Close() {
	for i := range p.slots {
		if ch := p.slots[i].Swap(nil); ch != nil {
			go ch.Close()
		}
	}
}
