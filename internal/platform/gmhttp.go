package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"slgserver/pkg/config"
	"slgserver/pkg/gmhttp"
	"slgserver/pkg/logger"
	"slgserver/pkg/module"
)

// GMHTTPModule owns the GM admin HTTP listener. Register controllers on
// .Server before Bootstrap.Run; Start begins serving.
type GMHTTPModule struct {
	module.Base
	cfg config.HTTPConfig

	Server *gmhttp.Server

	httpServer *http.Server
}

// NewGMHTTPModule returns a GMHTTPModule; register Controllers on
// .Server before Bootstrap.Run.
func NewGMHTTPModule(cfg config.HTTPConfig) *GMHTTPModule {
	return &GMHTTPModule{
		Base:   module.Base{NameValue: "gmhttp", PriorityValue: 110, WebPortValue: cfg.Port},
		cfg:    cfg,
		Server: gmhttp.New(),
	}
}

func (m *GMHTTPModule) Init(context.Context, map[string]any) error {
	m.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", m.cfg.Port),
		Handler:      m.Server,
		ReadTimeout:  m.cfg.ReadTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
	}
	return nil
}

func (m *GMHTTPModule) Start(context.Context) error {
	go func() {
		if err := m.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("gmhttp server failed", "error", err)
		}
	}()
	m.MarkStarted()
	return nil
}

func (m *GMHTTPModule) Stop(ctx context.Context) error {
	defer m.MarkStopped()
	timeout := m.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.httpServer.Shutdown(shutdownCtx)
}
