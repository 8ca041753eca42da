// Package rpcproxy implements the proxy manager: interned,
// per-(interface, server, timeout, retries) call handles over the RPC
// client core, with explicit sync/async/one-way call modes in place of
// Java-style return-type reflection.
package rpcproxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/balancer"
	"slgserver/pkg/rpcclient"
)

// CallMode is declared explicitly by the caller instead of being inferred
// from a method's return type, since Go has no return-type dispatch.
type CallMode int

const (
	// CallSync blocks for a result, retrying up to Proxy.Retries times.
	CallSync CallMode = iota
	// CallAsync sends one attempt through the client's async path, with no
	// retry; Proxy.Call still waits for that response before returning.
	CallAsync
	// CallOneWay fires the request without waiting for or expecting a response.
	CallOneWay
)

// cacheKey mirrors spec.md's proxy cache key: (interfaceName, serverId,
// timeout, retries).
type cacheKey struct {
	interfaceName string
	serverID      int64
	timeout       time.Duration
	retries       int
}

// Proxy is a bound call handle for one service interface, optionally
// pinned to a specific server id.
type Proxy struct {
	client        *rpcclient.Client
	interfaceName string
	serverID      int64
	timeout       time.Duration
	retries       int
}

// Call invokes method with args under mode, retrying (sync mode only) up
// to p.retries times with exponential backoff and a fresh request id per
// attempt — request-id freshness is enforced by rpcclient.Client itself,
// since every InvokeAsync call allocates its own id.
func (p *Proxy) Call(ctx context.Context, mode CallMode, method string, args any) (*rpcclient.Result, error) {
	req := rpcclient.Request{
		ServiceKey: p.interfaceName,
		ServerID:   p.serverID,
		Method:     method,
		Args:       args,
	}

	switch mode {
	case CallOneWay:
		return nil, p.client.InvokeOneWay(ctx, req)
	case CallAsync:
		done, get, err := p.client.InvokeAsync(ctx, req, p.timeout)
		if err != nil {
			return nil, err
		}
		<-done
		return get()
	default:
		return p.callSyncWithRetry(ctx, req)
	}
}

func (p *Proxy) callSyncWithRetry(ctx context.Context, req rpcclient.Request) (*rpcclient.Result, error) {
	const (
		initialBackoff = 100 * time.Millisecond
		maxBackoff     = 5 * time.Second
	)

	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		result, err := p.client.Invoke(ctx, req, p.timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.retries {
			break
		}

		backoff := initialBackoff << uint(attempt)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		select {
		case <-ctx.Done():
			return nil, apperror.Wrap(ctx.Err(), apperror.CodeTimeout, "context cancelled during retry backoff")
		case <-time.After(backoff):
		}
	}

	return nil, lastErr
}

// Manager interns Proxy instances by cache key and provides instance
// selection helpers over a shared rpcclient.Client.
type Manager struct {
	client         *rpcclient.Client
	defaultTimeout time.Duration
	defaultRetries int

	mu     sync.Mutex
	cached map[cacheKey]*Proxy

	// Per-strategy selectors used by the named Get* helpers. roundRobin
	// is stateful (it keeps a counter per interface name) so it's built
	// once here rather than as a stateless literal like the others.
	weighted   balancer.Weighted
	roundRobin *balancer.RoundRobin
	leastLoad  balancer.LeastLoad
}

// Options configures defaults applied when a caller doesn't override them.
type Options struct {
	DefaultTimeout time.Duration
	DefaultRetries int
}

// NewManager returns a Manager bound to client.
func NewManager(client *rpcclient.Client, opts Options) *Manager {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Second
	}
	return &Manager{
		client:         client,
		defaultTimeout: opts.DefaultTimeout,
		defaultRetries: opts.DefaultRetries,
		cached:         make(map[cacheKey]*Proxy),
		roundRobin:     balancer.NewRoundRobin(),
	}
}

// ProxyOptions overrides a proxy's per-method timeout/retry policy,
// mirroring spec.md's RpcTimeout-equivalent annotation.
type ProxyOptions struct {
	ServerID int64 // 0 = load-balanced across all instances
	Timeout  time.Duration
	Retries  int
}

// Get returns the interned Proxy for (interfaceName, opts), creating one
// on first request. Only serverID==0 (load-balanced) proxies are safe to
// cache indefinitely; serverID-pinned proxies are cached too but must be
// evicted via Invalidate when that server goes offline.
func (m *Manager) Get(interfaceName string, opts ProxyOptions) *Proxy {
	if opts.Timeout <= 0 {
		opts.Timeout = m.defaultTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = m.defaultRetries
	}

	key := cacheKey{interfaceName: interfaceName, serverID: opts.ServerID, timeout: opts.Timeout, retries: opts.Retries}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.cached[key]; ok {
		return p
	}

	p := &Proxy{
		client:        m.client,
		interfaceName: interfaceName,
		serverID:      opts.ServerID,
		timeout:       opts.Timeout,
		retries:       opts.Retries,
	}
	m.cached[key] = p
	return p
}

// GetByServerID returns a proxy pinned to a specific server id.
func (m *Manager) GetByServerID(interfaceName string, serverID int64) *Proxy {
	return m.Get(interfaceName, ProxyOptions{ServerID: serverID})
}

// pickProxy discovers interfaceName's live candidates, selects one via
// strategy, and returns a proxy pinned to that instance's serverId —
// the same pinning GetByServerID does explicitly, just resolved through
// a strategy instead of a known id.
func (m *Manager) pickProxy(ctx context.Context, interfaceName string, strategy balancer.Strategy) (*Proxy, error) {
	instances, err := m.client.Discover(ctx, interfaceName)
	if err != nil {
		return nil, err
	}
	inst, err := strategy.Pick(interfaceName, instances)
	if err != nil {
		return nil, err
	}
	return m.Get(interfaceName, ProxyOptions{ServerID: inst.ServerID}), nil
}

// GetRandom resolves interfaceName's candidates and pins the returned
// proxy to one picked uniformly at random.
func (m *Manager) GetRandom(ctx context.Context, interfaceName string) (*Proxy, error) {
	return m.pickProxy(ctx, interfaceName, balancer.Random{})
}

// GetByWeight resolves interfaceName's candidates and pins the returned
// proxy to one picked with probability proportional to its metadata
// "weight" field.
func (m *Manager) GetByWeight(ctx context.Context, interfaceName string) (*Proxy, error) {
	return m.pickProxy(ctx, interfaceName, m.weighted)
}

// GetRoundRobin resolves interfaceName's candidates and pins the returned
// proxy to the next instance in rotation, advancing one shared counter
// per interface name across calls.
func (m *Manager) GetRoundRobin(ctx context.Context, interfaceName string) (*Proxy, error) {
	return m.pickProxy(ctx, interfaceName, m.roundRobin)
}

// GetByLoad resolves interfaceName's candidates and pins the returned
// proxy to whichever reports the lowest metadata "load".
func (m *Manager) GetByLoad(ctx context.Context, interfaceName string) (*Proxy, error) {
	return m.pickProxy(ctx, interfaceName, m.leastLoad)
}

// GetByZone returns the load-balanced (serverID 0) proxy for
// interfaceName, the same one Get returns with default options. The zone
// argument is not used: instances are not filtered by zone, and the proxy
// is not pinned to any instance.
func (m *Manager) GetByZone(interfaceName, zone string) *Proxy {
	return m.Get(interfaceName, ProxyOptions{})
}

// Invalidate evicts every cached proxy for a service key, used by the
// discovery offline callback so a pinned proxy is never
// handed to an address that's gone.
func (m *Manager) Invalidate(interfaceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.cached {
		if key.interfaceName == interfaceName {
			delete(m.cached, key)
		}
	}
}

// String implements a proxy key description for diagnostics.
func (k cacheKey) String() string {
	return fmt.Sprintf("%s#%d[t=%s,r=%d]", k.interfaceName, k.serverID, k.timeout, k.retries)
}
