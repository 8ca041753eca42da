package platform

import (
	"context"

	"slgserver/pkg/balancer"
	"slgserver/pkg/module"
	"slgserver/pkg/rpcclient"
	"slgserver/pkg/rpcproxy"
)

// RPCClientModule owns the outbound RPC client and proxy manager used to
// call other instances in the fleet (gate→game, game→world, and so on).
// It depends on RegistryModule for service discovery.
type RPCClientModule struct {
	module.Base
	registry *RegistryModule

	Client  *rpcclient.Client
	Proxies *rpcproxy.Manager
}

// NewRPCClientModule returns an RPCClientModule bound to reg's registry
// for discovery once reg has initialized.
func NewRPCClientModule(reg *RegistryModule) *RPCClientModule {
	return &RPCClientModule{
		Base:     module.Base{NameValue: "rpcclient", PriorityValue: module.ConfigPriority + 30},
		registry: reg,
	}
}

func (m *RPCClientModule) Init(context.Context, map[string]any) error {
	m.Client = rpcclient.New(m.registry.Registry, rpcclient.Options{
		Strategy: balancer.Random{},
	})
	m.Proxies = rpcproxy.NewManager(m.Client, rpcproxy.Options{})
	m.registry.Registry.SetOfflineCallback(m.Proxies.Invalidate)
	return nil
}

func (m *RPCClientModule) Start(context.Context) error { m.MarkStarted(); return nil }

func (m *RPCClientModule) Stop(context.Context) error {
	defer m.MarkStopped()
	if m.Client != nil {
		m.Client.Shutdown()
	}
	return nil
}
