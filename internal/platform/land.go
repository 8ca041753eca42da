package platform

import (
	"context"
	"time"

	"slgserver/pkg/config"
	"slgserver/pkg/land"
	"slgserver/pkg/module"
	"slgserver/pkg/sqlexec"
)

// LandModule owns the SQL executor and the async write-back engine built
// on top of it. Entity metadata is registered by the game-specific code
// that constructs this module, before Init runs.
type LandModule struct {
	module.Base
	cfg config.LandConfig
	db  *DatabaseModule

	Executor *sqlexec.Executor
	Engine   *land.Engine
}

// NewLandModule returns a LandModule bound to db's connection, built
// once db.Init has populated db.DB.
func NewLandModule(cfg config.LandConfig, db *DatabaseModule) *LandModule {
	return &LandModule{
		Base: module.Base{NameValue: "land", PriorityValue: module.ConfigPriority + 40},
		cfg:  cfg,
		db:   db,
	}
}

func (m *LandModule) Init(context.Context, map[string]any) error {
	m.Executor = sqlexec.New(m.db.DB)
	m.Engine = land.New(m.Executor, land.Options{
		BatchSize:      m.cfg.MaxBatchSize,
		LandInterval:   m.cfg.FlushInterval,
		MaxRetries:     m.cfg.MaxRetries,
		QueueCapacity:  m.cfg.QueueCapacity,
		ShutdownGrace:  m.cfg.ShutdownFlushWait,
		AdaptiveTuning: m.cfg.MinBatchSize > 0 && m.cfg.MinBatchSize < m.cfg.MaxBatchSize,
		Tuner: land.TunerOptions{
			MinBatchSize: m.cfg.MinBatchSize,
			MaxBatchSize: m.cfg.MaxBatchSize,
		},
	})
	return nil
}

func (m *LandModule) Start(context.Context) error { m.MarkStarted(); return nil }

func (m *LandModule) Stop(ctx context.Context) error {
	defer m.MarkStopped()
	grace := m.cfg.ShutdownFlushWait
	if grace <= 0 {
		grace = 3 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, grace+time.Second)
	defer cancel()
	return m.Engine.Shutdown(shutdownCtx)
}
