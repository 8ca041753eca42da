// Package module defines the lifecycle contract every instance-level
// subsystem implements (RPC servers, the land engine, the gamedata
// manager, and so on) and a Bootstrap orchestrator that brings a set of
// them up and down in a fixed, priority-ordered sequence.
package module

import (
	"context"
	"fmt"

	"slgserver/pkg/apperror"
	"slgserver/pkg/logger"
)

// ConfigPriority is the conventional priority for the module that must
// load before anything else can initialize — config and gamedata
// loading, typically. Bootstrap sorts ascending, so this sorts first.
const ConfigPriority = -1000

// Module is one subsystem of a running instance.
type Module interface {
	// Name identifies the module in logs and the introspection endpoint.
	Name() string
	// Priority determines init/start order, ascending; Stop runs in the
	// reverse order.
	Priority() int
	// Init prepares the module using its slice of the instance config.
	// Init runs for every module, in priority order, before any module's
	// Start runs.
	Init(ctx context.Context, cfg map[string]any) error
	// Start begins the module's active work (accepting connections,
	// spawning workers). Start runs in priority order after every
	// module's Init has succeeded.
	Start(ctx context.Context) error
	// Stop releases the module's resources. Stop runs in reverse
	// priority order and is best-effort: a module's Stop failure never
	// prevents the remaining modules from also stopping.
	Stop(ctx context.Context) error
	// IsRunning reports whether Start has completed without a matching
	// Stop.
	IsRunning() bool
	// RPCPort returns the module's RPC listener port, or 0 if it has
	// none.
	RPCPort() int
	// WebPort returns the module's HTTP listener port, or 0 if it has
	// none.
	WebPort() int
}

// Bootstrap brings up a fixed set of modules in priority order and tears
// them down in reverse, stopping whatever already started if any module
// fails to init or start.
type Bootstrap struct {
	modules []Module
}

// NewBootstrap returns a Bootstrap with no modules registered.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Register adds a module. Order of registration does not matter —
// Priority decides init/start/stop order.
func (b *Bootstrap) Register(m Module) {
	b.modules = append(b.modules, m)
}

// sortedByPriority returns modules in ascending priority order, stable
// with respect to registration order for ties.
func (b *Bootstrap) sortedByPriority() []Module {
	out := make([]Module, len(b.modules))
	copy(out, b.modules)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority() < out[j-1].Priority(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Run initializes and starts every registered module in priority order.
// If any module's Init or Start fails, every module that already started
// is stopped (best-effort, reverse order) before Run returns the error.
func (b *Bootstrap) Run(ctx context.Context, cfg map[string]map[string]any) error {
	ordered := b.sortedByPriority()
	started := make([]Module, 0, len(ordered))

	for _, m := range ordered {
		logger.Log.Info("module init", "module", m.Name(), "priority", m.Priority())
		if err := m.Init(ctx, cfg[m.Name()]); err != nil {
			b.stopStarted(started)
			return apperror.Wrap(err, apperror.CodeInternal, "module init failed").WithDetails("module", m.Name())
		}
	}

	for _, m := range ordered {
		logger.Log.Info("module start", "module", m.Name())
		if err := m.Start(ctx); err != nil {
			b.stopStarted(started)
			return apperror.Wrap(err, apperror.CodeInternal, "module start failed").WithDetails("module", m.Name())
		}
		started = append(started, m)
	}

	return nil
}

// Shutdown stops every registered module in reverse priority order.
// A module's Stop error is logged and does not prevent the rest from
// being stopped.
func (b *Bootstrap) Shutdown(ctx context.Context) {
	ordered := b.sortedByPriority()
	reversed := make([]Module, len(ordered))
	for i, m := range ordered {
		reversed[len(ordered)-1-i] = m
	}
	b.stopStarted(reversed)
}

func (b *Bootstrap) stopStarted(modules []Module) {
	for i := len(modules) - 1; i >= 0; i-- {
		m := modules[i]
		if !m.IsRunning() {
			continue
		}
		logger.Log.Info("module stop", "module", m.Name())
		if err := m.Stop(context.Background()); err != nil {
			logger.Log.Error("module stop failed", "module", m.Name(), "error", err)
		}
	}
}

// Modules returns every registered module in priority order, for use by
// an introspection endpoint.
func (b *Bootstrap) Modules() []Module {
	return b.sortedByPriority()
}

// Describe renders one module's status line for introspection output.
func Describe(m Module) string {
	state := "stopped"
	if m.IsRunning() {
		state = "running"
	}
	return fmt.Sprintf("%s[priority=%d state=%s rpc=%d web=%d]",
		m.Name(), m.Priority(), state, m.RPCPort(), m.WebPort())
}
