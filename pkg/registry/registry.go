// Package registry implements the Redis-backed service registry and
// discovery substrate: instances register themselves under
// a TTL-bound key and publish change notifications on a Pub/Sub channel
// so watchers refresh without polling.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Instance describes one registered, reachable RPC server.
type Instance struct {
	ServiceKey string         `json:"serviceKey"` // e.g. "game", "gate"
	ServerID   int64          `json:"serverId"`
	Address    string         `json:"address"` // host:port
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// key returns the registry key under root for this instance.
func (i Instance) key(root string) string {
	return fmt.Sprintf("%s/%s:%d/%s", root, i.ServiceKey, i.ServerID, i.Address)
}

// channel returns the service's Pub/Sub notification channel under root.
func channel(root, serviceKey string) string {
	return fmt.Sprintf("%s/%s/__changes__", root, serviceKey)
}

// Registry registers local instances and discovers remote ones against a
// shared Redis keyspace rooted at Root.
type Registry struct {
	client *redis.Client
	root   string
	ttl    time.Duration

	mu      sync.Mutex
	leases  map[string]context.CancelFunc // key -> stop func for its renew loop
	offline func(serviceKey string)       // set via SetOfflineCallback
}

// Options configures a Registry.
type Options struct {
	Addr          string
	Password      string
	DB            int
	Root          string
	TTL           time.Duration
	RenewInterval time.Duration
}

// New dials Redis and returns a Registry rooted at opts.Root.
func New(opts Options) (*Registry, error) {
	if opts.Root == "" {
		return nil, apperror.New(apperror.CodeParamInvalid, "registry root is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConnFail, "registry redis ping failed")
	}

	return &Registry{
		client: client,
		root:   opts.Root,
		ttl:    opts.TTL,
		leases: make(map[string]context.CancelFunc),
	}, nil
}

// Register publishes inst under the registry's key namespace with a TTL
// lease, and starts a background renewal loop that keeps the lease alive
// at renewInterval until ctx is cancelled or Unregister is called. It
// publishes a change notification on the service's Pub/Sub channel so
// watchers refresh immediately instead of waiting out the TTL.
func (r *Registry) Register(ctx context.Context, inst Instance, renewInterval time.Duration) error {
	if renewInterval <= 0 {
		renewInterval = r.ttl / 3
	}

	data, err := json.Marshal(inst)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeSerializeFail, "marshal instance failed")
	}

	key := inst.key(r.root)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return apperror.Wrap(err, apperror.CodeConnFail, "registry set failed")
	}
	r.notify(ctx, inst.ServiceKey)

	leaseCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if prev, ok := r.leases[key]; ok {
		prev()
	}
	r.leases[key] = cancel
	r.mu.Unlock()

	go r.renewLoop(leaseCtx, key, inst.ServiceKey, data, renewInterval)
	return nil
}

// SetOfflineCallback registers fn to be invoked with a service key when an
// instance goes offline for good: either a watched instance set loses a
// previously-seen server id, or this process's own lease renewal fails to
// land before its TTL lapses. The proxy manager wires this to invalidate
// any cached proxies pinned to the address that's gone.
func (r *Registry) SetOfflineCallback(fn func(serviceKey string)) {
	r.mu.Lock()
	r.offline = fn
	r.mu.Unlock()
}

func (r *Registry) fireOffline(serviceKey string) {
	r.mu.Lock()
	fn := r.offline
	r.mu.Unlock()
	if fn != nil {
		fn(serviceKey)
	}
}

func (r *Registry) renewLoop(ctx context.Context, key, serviceKey string, data []byte, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastRenew := time.Now()
	expired := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
				logger.Log.Warn("registry lease renewal failed", "key", key, "error", err)
				if err := r.client.Set(ctx, key, data, r.ttl).Err(); err == nil {
					lastRenew = time.Now()
					expired = false
					continue
				}
				if !expired && time.Since(lastRenew) > r.ttl {
					expired = true
					r.fireOffline(serviceKey)
				}
				continue
			}
			lastRenew = time.Now()
			expired = false
		}
	}
}

// Unregister stops a key's renewal loop and deletes it from Redis.
func (r *Registry) Unregister(ctx context.Context, inst Instance) error {
	key := inst.key(r.root)

	r.mu.Lock()
	if cancel, ok := r.leases[key]; ok {
		cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return apperror.Wrap(err, apperror.CodeConnFail, "registry delete failed")
	}
	r.notify(ctx, inst.ServiceKey)
	return nil
}

func (r *Registry) notify(ctx context.Context, serviceKey string) {
	if err := r.client.Publish(ctx, channel(r.root, serviceKey), "changed").Err(); err != nil {
		logger.Log.Warn("registry change notification failed", "serviceKey", serviceKey, "error", err)
	}
}

// Discover returns every live instance registered under serviceKey. A
// serverID of 0 (the "#0" wildcard convention) is not special here — the
// caller filters by ServerID after Discover returns the full set.
func (r *Registry) Discover(ctx context.Context, serviceKey string) ([]Instance, error) {
	pattern := fmt.Sprintf("%s/%s:*", r.root, serviceKey)

	var instances []Instance
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		val, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // expired between SCAN and GET
			}
			return nil, apperror.Wrap(err, apperror.CodeConnFail, "registry get failed")
		}
		var inst Instance
		if err := json.Unmarshal(val, &inst); err != nil {
			logger.Log.Warn("registry discovered malformed instance", "key", iter.Val(), "error", err)
			continue
		}
		instances = append(instances, inst)
	}
	if err := iter.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConnFail, "registry scan failed")
	}

	return instances, nil
}

// DiscoverInstance returns the single instance matching serviceKey and
// serverID. ServerID 0 selects the "#0" wildcard: any one instance of the
// service is returned (the first discovered).
func (r *Registry) DiscoverInstance(ctx context.Context, serviceKey string, serverID int64) (*Instance, error) {
	instances, err := r.Discover(ctx, serviceKey)
	if err != nil {
		return nil, err
	}

	for _, inst := range instances {
		if serverID == 0 || inst.ServerID == serverID {
			inst := inst
			return &inst, nil
		}
	}

	return nil, apperror.New(apperror.CodeNoInstance, "no instance available").
		WithDetails("serviceKey", serviceKey).
		WithDetails("serverId", serverID)
}

// Watch subscribes to change notifications for serviceKey and invokes
// onChange (with a freshly re-discovered instance list) every time a
// registration or deregistration occurs, until ctx is cancelled. It seeds
// its view of the instance set with an initial Discover before returning,
// so the very first change it observes can already tell a deregistration
// apart from a fresh service coming up. If a later refresh is missing a
// server id Watch had previously seen, the offline callback (see
// SetOfflineCallback) fires for serviceKey before onChange is called.
func (r *Registry) Watch(ctx context.Context, serviceKey string, onChange func([]Instance)) error {
	sub := r.client.Subscribe(ctx, channel(r.root, serviceKey))

	seen := make(map[int64]struct{})
	if initial, err := r.Discover(ctx, serviceKey); err != nil {
		logger.Log.Warn("registry watch initial discover failed", "serviceKey", serviceKey, "error", err)
	} else {
		for _, inst := range initial {
			seen[inst.ServerID] = struct{}{}
		}
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				instances, err := r.Discover(ctx, serviceKey)
				if err != nil {
					logger.Log.Warn("registry watch re-discover failed", "serviceKey", serviceKey, "error", err)
					continue
				}
				r.checkOffline(serviceKey, seen, instances)
				onChange(instances)
			}
		}
	}()

	return nil
}

// checkOffline updates seen with the server ids currently present in
// instances and fires the offline callback if any previously-seen id has
// dropped out of the set.
func (r *Registry) checkOffline(serviceKey string, seen map[int64]struct{}, instances []Instance) {
	current := make(map[int64]struct{}, len(instances))
	for _, inst := range instances {
		current[inst.ServerID] = struct{}{}
	}

	lost := false
	for id := range seen {
		if _, ok := current[id]; !ok {
			lost = true
			break
		}
	}

	for id := range seen {
		delete(seen, id)
	}
	for id := range current {
		seen[id] = struct{}{}
	}

	if lost {
		r.fireOffline(serviceKey)
	}
}

// Close releases the underlying Redis client and stops every active lease
// renewal loop.
func (r *Registry) Close() error {
	r.mu.Lock()
	for key, cancel := range r.leases {
		cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}

// ParseServiceKey splits a "<module>#<serverId>" proxy target into its
// service key and server id, treating "#0" (or a missing suffix) as the
// any-instance wildcard.
func ParseServiceKey(target string) (serviceKey string, serverID int64) {
	idx := strings.LastIndexByte(target, '#')
	if idx < 0 {
		return target, 0
	}
	var id int64
	fmt.Sscanf(target[idx+1:], "%d", &id)
	return target[:idx], id
}
