// Command gate runs the gate instance: the edge-facing RPC listener that
// authenticates incoming connections and proxies requests to the game,
// world, and alliance instances via service discovery.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"slgserver/internal/platform"
	"slgserver/pkg/config"
	"slgserver/pkg/gmhttp"
	"slgserver/pkg/logger"
	"slgserver/pkg/metrics"
	"slgserver/pkg/module"
	"slgserver/pkg/passhash"
)

const moduleName = "gate"
const defaultRPCPort = 17002

func main() {
	cfg, err := config.LoadWithInstanceDefaults(moduleName, defaultRPCPort)
	if err != nil {
		panic(err)
	}

	logger.InitWithConfig(logger.Config{
		Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output,
		FilePath: cfg.Log.FilePath, MaxSize: cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups, MaxAge: cfg.Log.MaxAge, Compress: cfg.Log.Compress,
	})
	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)

	reg := platform.NewRegistryModule(cfg.Registry, platform.SelfInstance(cfg, moduleName))
	client := platform.NewRPCClientModule(reg)
	rpc := platform.NewRPCServerModule(cfg.RPC)
	web := platform.NewGMHTTPModule(cfg.WebHTTP)

	jwtMgr := passhash.NewJWTManager(nil)
	web.Server.WithAuth(gmhttp.RequireRole(jwtMgr, "admin"))

	boot := module.NewBootstrap()
	boot.Register(reg)
	boot.Register(client)
	boot.Register(rpc)
	boot.Register(web)

	ctx := context.Background()
	if err := boot.Run(ctx, nil); err != nil {
		logger.Log.Error("gate instance failed to start", "error", err)
		os.Exit(1)
	}
	logger.Log.Info("gate instance started", "rpcPort", cfg.RPC.Port, "webPort", cfg.WebHTTP.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("gate instance shutting down")
	boot.Shutdown(context.Background())
}
