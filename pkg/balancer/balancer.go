// Package balancer implements the load-balancing strategies
// used to pick one instance out of a service's discovered candidates.
package balancer

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"slgserver/pkg/apperror"
	"slgserver/pkg/registry"
)

// Strategy selects one instance from candidates. Implementations must be
// safe for concurrent use and must return apperror.ErrNoInstance when
// candidates is empty.
type Strategy interface {
	Pick(serviceKey string, candidates []registry.Instance) (*registry.Instance, error)
}

func noInstance(serviceKey string) error {
	return apperror.New(apperror.CodeNoInstance, "no instance available").
		WithDetails("serviceKey", serviceKey)
}

// Random picks a uniformly random candidate.
type Random struct{}

func (Random) Pick(serviceKey string, candidates []registry.Instance) (*registry.Instance, error) {
	if len(candidates) == 0 {
		return nil, noInstance(serviceKey)
	}
	inst := candidates[rand.Intn(len(candidates))]
	return &inst, nil
}

// weight returns an instance's load-balancing weight from its metadata,
// defaulting to 1 when absent or not a positive number.
func weight(inst registry.Instance) float64 {
	if inst.Metadata == nil {
		return 1
	}
	raw, ok := inst.Metadata["weight"]
	if !ok {
		return 1
	}
	switch v := raw.(type) {
	case float64:
		if v > 0 {
			return v
		}
	case int:
		if v > 0 {
			return float64(v)
		}
	}
	return 1
}

// Weighted picks a candidate with probability proportional to its
// metadata "weight" field (default weight 1), via cumulative-sum
// selection over a uniform random draw.
type Weighted struct{}

func (Weighted) Pick(serviceKey string, candidates []registry.Instance) (*registry.Instance, error) {
	if len(candidates) == 0 {
		return nil, noInstance(serviceKey)
	}

	total := 0.0
	weights := make([]float64, len(candidates))
	for i, inst := range candidates {
		weights[i] = weight(inst)
		total += weights[i]
	}

	target := rand.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if target < cumulative {
			inst := candidates[i]
			return &inst, nil
		}
	}

	inst := candidates[len(candidates)-1]
	return &inst, nil
}

// RoundRobin picks candidates in rotation, keeping one monotonic counter
// per service key so successive calls for the same service advance
// through its candidate list.
type RoundRobin struct {
	mu       sync.Mutex
	counters map[string]*uint64
}

// NewRoundRobin returns a ready-to-use RoundRobin strategy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{counters: make(map[string]*uint64)}
}

func (r *RoundRobin) counter(serviceKey string) *uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[serviceKey]
	if !ok {
		c = new(uint64)
		r.counters[serviceKey] = c
	}
	return c
}

func (r *RoundRobin) Pick(serviceKey string, candidates []registry.Instance) (*registry.Instance, error) {
	if len(candidates) == 0 {
		return nil, noInstance(serviceKey)
	}
	c := r.counter(serviceKey)
	n := atomic.AddUint64(c, 1) - 1
	inst := candidates[n%uint64(len(candidates))]
	return &inst, nil
}

// load returns an instance's current load from its metadata, defaulting
// to +Inf (never preferred) when absent.
func load(inst registry.Instance) float64 {
	if inst.Metadata == nil {
		return math.Inf(1)
	}
	raw, ok := inst.Metadata["load"]
	if !ok {
		return math.Inf(1)
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return math.Inf(1)
	}
}

// LeastLoad picks the candidate with the smallest reported "load" in its
// metadata. An instance with no load metadata is treated as +Inf, so it
// is only picked when every candidate is missing load data (in which
// case the first candidate wins; equal loads likewise go to the earliest
// candidate).
type LeastLoad struct{}

func (LeastLoad) Pick(serviceKey string, candidates []registry.Instance) (*registry.Instance, error) {
	if len(candidates) == 0 {
		return nil, noInstance(serviceKey)
	}

	best := candidates[0]
	bestLoad := load(best)
	for _, inst := range candidates[1:] {
		if l := load(inst); l < bestLoad {
			best = inst
			bestLoad = l
		}
	}
	return &best, nil
}
