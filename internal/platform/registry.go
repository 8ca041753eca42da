package platform

import (
	"context"

	"slgserver/pkg/config"
	"slgserver/pkg/module"
	"slgserver/pkg/registry"
)

// RegistryModule dials the shared Redis-backed service registry and
// keeps this instance's own registration alive for as long as the
// module is running.
type RegistryModule struct {
	module.Base
	cfg      config.RegistryConfig
	instance registry.Instance

	Registry *registry.Registry

	cancel context.CancelFunc
}

// NewRegistryModule returns a RegistryModule that registers inst once
// connected.
func NewRegistryModule(cfg config.RegistryConfig, inst registry.Instance) *RegistryModule {
	return &RegistryModule{
		Base:     module.Base{NameValue: "registry", PriorityValue: module.ConfigPriority + 20},
		cfg:      cfg,
		instance: inst,
	}
}

func (m *RegistryModule) Init(ctx context.Context, _ map[string]any) error {
	reg, err := registry.New(registry.Options{
		Addr:          m.cfg.Addr,
		Password:      m.cfg.Password,
		DB:            m.cfg.DB,
		Root:          m.cfg.Root,
		TTL:           m.cfg.TTL,
		RenewInterval: m.cfg.RenewInterval,
	})
	if err != nil {
		return err
	}
	m.Registry = reg
	return nil
}

func (m *RegistryModule) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	if err := m.Registry.Register(runCtx, m.instance, m.cfg.RenewInterval); err != nil {
		cancel()
		return err
	}
	m.MarkStarted()
	return nil
}

func (m *RegistryModule) Stop(ctx context.Context) error {
	defer m.MarkStopped()
	if m.cancel != nil {
		m.cancel()
	}
	if m.Registry == nil {
		return nil
	}
	_ = m.Registry.Unregister(ctx, m.instance)
	return m.Registry.Close()
}
