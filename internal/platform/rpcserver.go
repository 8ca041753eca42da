package platform

import (
	"context"
	"fmt"

	"slgserver/pkg/config"
	"slgserver/pkg/module"
	"slgserver/pkg/rpcserver"
)

// RPCServerModule owns the instance's inbound RPC listener. Callers
// register their services on Server before Start (typically from a
// higher-priority module's Init, or directly in cmd/ main before
// Bootstrap.Run).
type RPCServerModule struct {
	module.Base
	cfg config.RPCConfig

	Server *rpcserver.Server
}

// NewRPCServerModule builds the Server eagerly so dependent modules can
// register services on it during their own Init.
func NewRPCServerModule(cfg config.RPCConfig) *RPCServerModule {
	m := &RPCServerModule{
		Base: module.Base{NameValue: "rpcserver", PriorityValue: 100, RPCPortValue: cfg.Port},
		cfg:  cfg,
	}
	m.Server = rpcserver.New(rpcserver.Options{
		MaxFrameSize:      cfg.MaxFrameSize,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	return m
}

func (m *RPCServerModule) Init(context.Context, map[string]any) error { return nil }

func (m *RPCServerModule) Start(context.Context) error {
	if err := m.Server.Listen(fmt.Sprintf(":%d", m.cfg.Port)); err != nil {
		return err
	}
	m.MarkStarted()
	return nil
}

func (m *RPCServerModule) Stop(context.Context) error {
	defer m.MarkStopped()
	return m.Server.Close()
}
