// Package rpcclient implements the RPC client core: request
// correlation via an in-flight table, timeout scheduling via a hashed
// timing wheel, and service resolution through discovery + load
// balancing.
package rpcclient

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/balancer"
	"slgserver/pkg/registry"
	"slgserver/pkg/rpcpool"
	"slgserver/pkg/serialize"
	"slgserver/pkg/wire"
)

// Discoverer is the subset of *registry.Registry the client needs to
// resolve a service key to its live instances.
type Discoverer interface {
	Discover(ctx context.Context, serviceKey string) ([]registry.Instance, error)
}

// Request describes one outbound call before it's been resolved to an
// address or assigned a request id.
type Request struct {
	ServiceKey   string
	ServerID     int64 // 0 selects any instance via the load balancer
	Method       string
	Args         any
	SerializerID uint8
	CompressorID uint8
}

// Result is the outcome of a successful invoke.
type Result struct {
	Data         json.RawMessage
	SerializerID uint8
}

// future is the in-flight table's correlation record for one request id.
type future struct {
	done         chan struct{}
	result       *Result
	err          error
	once         sync.Once
	cancelWheel  func()
}

func (f *future) complete(result *Result, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}

// Client is one logical RPC client: it resolves service keys to addresses
// via a Registry and Strategy, maintains one connection pool per address,
// and correlates outbound requests to inbound responses.
type Client struct {
	reg      Discoverer
	strategy balancer.Strategy
	codec *serialize.Registry

	poolOpts rpcpool.Options

	mu      sync.Mutex
	pools   map[string]*rpcpool.Pool
	inflight map[uint64]*future

	wheel *TimingWheel

	requestSeq  uint64
	shutdownFlag int32
}

// Options configures a Client.
type Options struct {
	PoolOptions rpcpool.Options
	Strategy    balancer.Strategy
}

// New returns a Client that resolves service keys against reg.
func New(reg Discoverer, opts Options) *Client {
	strategy := opts.Strategy
	if strategy == nil {
		strategy = balancer.Random{}
	}

	c := &Client{
		reg:       reg,
		strategy:  strategy,
		codec: serialize.NewRegistry(),
		poolOpts:  opts.PoolOptions,
		pools:     make(map[string]*rpcpool.Pool),
		inflight:  make(map[uint64]*future),
		wheel:     NewTimingWheel(),
	}
	c.poolOpts.OnFrame = c.onFrame
	return c
}

// Discover returns the live instances registered for serviceKey, for
// callers that pick among them with their own balancer.Strategy instead
// of going through resolve's client-wide one (e.g. rpcproxy's named
// selection helpers).
func (c *Client) Discover(ctx context.Context, serviceKey string) ([]registry.Instance, error) {
	return c.reg.Discover(ctx, serviceKey)
}

func (c *Client) nextRequestID() uint64 {
	return atomic.AddUint64(&c.requestSeq, 1)
}

func (c *Client) isShutdown() bool {
	return atomic.LoadInt32(&c.shutdownFlag) == 1
}

// resolve picks an address for req's service key via discovery + the
// configured load-balancing strategy.
func (c *Client) resolve(ctx context.Context, req Request) (string, error) {
	instances, err := c.reg.Discover(ctx, req.ServiceKey)
	if err != nil {
		return "", err
	}
	if req.ServerID != 0 {
		for _, inst := range instances {
			if inst.ServerID == req.ServerID {
				return inst.Address, nil
			}
		}
		return "", apperror.New(apperror.CodeNoInstance, "no instance available").
			WithDetails("serviceKey", req.ServiceKey).WithDetails("serverId", req.ServerID)
	}

	inst, err := c.strategy.Pick(req.ServiceKey, instances)
	if err != nil {
		return "", err
	}
	return inst.Address, nil
}

func (c *Client) poolFor(address string) *rpcpool.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[address]
	if !ok {
		p = rpcpool.NewPool(address, c.poolOpts)
		c.pools[address] = p
	}
	return p
}

func (c *Client) onFrame(ch *rpcpool.Channel, f *wire.Frame) {
	if f.Type != wire.MessageResponse {
		return
	}
	c.mu.Lock()
	fut, ok := c.inflight[f.RequestID]
	if ok {
		delete(c.inflight, f.RequestID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	fut.cancelWheel()

	var env wire.ResponseEnvelope
	if err := c.codec.Decode(serialize.SerializerJSON, f.CompressorID, f.Payload, &env); err != nil {
		fut.complete(nil, err)
		return
	}
	if env.Code != "" {
		fut.complete(nil, apperror.New(apperror.ErrorCode(env.Code), env.Message))
		return
	}
	fut.complete(&Result{Data: env.Data, SerializerID: f.SerializerID}, nil)
}

// InvokeAsync resolves req, sends it, and returns immediately with a
// channel-backed future that completes on response, timeout, or write
// failure.
func (c *Client) InvokeAsync(ctx context.Context, req Request, timeout time.Duration) (<-chan struct{}, func() (*Result, error), error) {
	if c.isShutdown() {
		return nil, nil, apperror.New(apperror.CodeClientShutdown, "client shutdown")
	}

	address, err := c.resolve(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	pool := c.poolFor(address)
	ch, err := pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	requestID := c.nextRequestID()
	fut := &future{done: make(chan struct{})}

	cancel := c.wheel.Schedule(requestID, timeout, func() {
		c.mu.Lock()
		_, ok := c.inflight[requestID]
		delete(c.inflight, requestID)
		c.mu.Unlock()
		if ok {
			fut.complete(nil, apperror.ErrTimeout)
		}
	})
	fut.cancelWheel = cancel

	c.mu.Lock()
	c.inflight[requestID] = fut
	c.mu.Unlock()

	argsJSON, err := json.Marshal(req.Args)
	if err != nil {
		c.failInflight(requestID, fut)
		return nil, nil, apperror.Wrap(err, apperror.CodeSerializeFail, "marshal args failed")
	}

	env := wire.RequestEnvelope{ServiceKey: req.ServiceKey, ServerID: req.ServerID, Method: req.Method, Args: argsJSON}
	payload, usedCompressor, err := c.codec.Encode(serialize.SerializerJSON, req.CompressorID, env)
	if err != nil {
		c.failInflight(requestID, fut)
		return nil, nil, err
	}

	frame := &wire.Frame{
		Type:         wire.MessageRequest,
		SerializerID: serialize.SerializerJSON,
		CompressorID: usedCompressor,
		RequestID:    requestID,
		Payload:      payload,
	}

	if err := ch.Write(frame); err != nil {
		c.failInflight(requestID, fut)
		return nil, nil, err
	}

	return fut.done, func() (*Result, error) { return fut.result, fut.err }, nil
}

func (c *Client) failInflight(requestID uint64, fut *future) {
	fut.cancelWheel()
	c.mu.Lock()
	delete(c.inflight, requestID)
	c.mu.Unlock()
}

// Invoke blocks until req completes, times out, or ctx is cancelled.
func (c *Client) Invoke(ctx context.Context, req Request, timeout time.Duration) (*Result, error) {
	done, get, err := c.InvokeAsync(ctx, req, timeout)
	if err != nil {
		return nil, err
	}
	select {
	case <-done:
		return get()
	case <-ctx.Done():
		return nil, apperror.Wrap(ctx.Err(), apperror.CodeTimeout, "context cancelled")
	}
}

// InvokeOneWay sends req without expecting or waiting for a response.
func (c *Client) InvokeOneWay(ctx context.Context, req Request) error {
	if c.isShutdown() {
		return apperror.New(apperror.CodeClientShutdown, "client shutdown")
	}

	address, err := c.resolve(ctx, req)
	if err != nil {
		return err
	}
	pool := c.poolFor(address)
	ch, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}

	argsJSON, err := json.Marshal(req.Args)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeSerializeFail, "marshal args failed")
	}

	env := wire.RequestEnvelope{ServiceKey: req.ServiceKey, ServerID: req.ServerID, Method: req.Method, Args: argsJSON, OneWay: true}
	payload, usedCompressor, err := c.codec.Encode(serialize.SerializerJSON, req.CompressorID, env)
	if err != nil {
		return err
	}

	return ch.Write(&wire.Frame{
		Type:         wire.MessageRequest,
		SerializerID: serialize.SerializerJSON,
		CompressorID: usedCompressor,
		RequestID:    c.nextRequestID(),
		Payload:      payload,
	})
}

// Shutdown marks the client shut down and fails every outstanding future
// with CLIENT_SHUTDOWN. Idempotent.
func (c *Client) Shutdown() {
	if !atomic.CompareAndSwapInt32(&c.shutdownFlag, 0, 1) {
		return
	}

	c.mu.Lock()
	inflight := c.inflight
	c.inflight = make(map[uint64]*future)
	pools := c.pools
	c.pools = make(map[string]*rpcpool.Pool)
	c.mu.Unlock()

	for _, fut := range inflight {
		fut.cancelWheel()
		fut.complete(nil, apperror.ErrClientShutdown)
	}
	for _, p := range pools {
		p.Close()
	}
	c.wheel.Close()
}
