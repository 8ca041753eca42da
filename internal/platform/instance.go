package platform

import (
	"fmt"

	"slgserver/pkg/config"
	"slgserver/pkg/registry"
)

// ResolveInstanceSpec finds the fleet's declared InstanceSpec for module,
// falling back to serverId 1 with the instance's own configured ports
// when the fleet config doesn't enumerate it explicitly (e.g. a
// single-node development config).
func ResolveInstanceSpec(cfg *config.Config, moduleName string) config.InstanceSpec {
	for _, inst := range cfg.Instances {
		if inst.Module == moduleName {
			return inst
		}
	}
	return config.InstanceSpec{Module: moduleName, ServerID: 1, RPCPort: cfg.RPC.Port, WebPort: cfg.WebHTTP.Port}
}

// SelfInstance builds the registry.Instance this process advertises for
// discovery by the rest of the fleet.
func SelfInstance(cfg *config.Config, moduleName string) registry.Instance {
	spec := ResolveInstanceSpec(cfg, moduleName)
	return registry.Instance{
		ServiceKey: moduleName,
		ServerID:   spec.ServerID,
		Address:    fmt.Sprintf("%s:%d", cfg.Host, spec.RPCPort),
	}
}
