// Package platform wires the fleet-wide packages (database, land engine,
// gamedata, registry, RPC server/client, GM HTTP) into module.Module
// implementations shared by every cmd/ instance entrypoint.
package platform

import (
	"context"

	"slgserver/pkg/config"
	"slgserver/pkg/database"
	"slgserver/pkg/module"
)

// DatabaseModule opens the shared Postgres connection pool. Every module
// with priority after module.ConfigPriority can depend on DB being
// non-nil once DatabaseModule.Init has run.
type DatabaseModule struct {
	module.Base
	cfg *config.DatabaseConfig

	DB *database.PostgresDB
}

// NewDatabaseModule returns a DatabaseModule that connects using cfg on
// Init.
func NewDatabaseModule(cfg *config.DatabaseConfig) *DatabaseModule {
	return &DatabaseModule{
		Base: module.Base{NameValue: "database", PriorityValue: module.ConfigPriority + 10},
		cfg:  cfg,
	}
}

func (m *DatabaseModule) Init(ctx context.Context, _ map[string]any) error {
	db, err := database.NewPostgresDB(ctx, m.cfg)
	if err != nil {
		return err
	}
	m.DB = db
	return nil
}

func (m *DatabaseModule) Start(context.Context) error { m.MarkStarted(); return nil }

func (m *DatabaseModule) Stop(context.Context) error {
	defer m.MarkStopped()
	if m.DB != nil {
		m.DB.Close()
	}
	return nil
}
