package platform

import (
	"context"
	"path/filepath"
	"time"

	"slgserver/pkg/config"
	"slgserver/pkg/gamedata"
	"slgserver/pkg/module"
)

// GameDataModule owns the hot-reloadable XML config manager. Callers
// register their tables via Manager.Register before Init runs (typically
// right after NewGameDataModule returns), since LoadAll happens inside
// Init.
type GameDataModule struct {
	module.Base
	cfg config.GameDataConfig

	Manager *gamedata.Manager

	watchCancel context.CancelFunc
}

// NewGameDataModule returns a GameDataModule; register Tables on
// .Manager before Bootstrap.Run.
func NewGameDataModule(cfg config.GameDataConfig) *GameDataModule {
	return &GameDataModule{
		Base:    module.Base{NameValue: "gamedata", PriorityValue: module.ConfigPriority + 5},
		cfg:     cfg,
		Manager: gamedata.NewManager(cfg.AtomicSwap),
	}
}

// TablePath resolves a table file name against the configured tables
// directory.
func (m *GameDataModule) TablePath(fileName string) string {
	return filepath.Join(m.cfg.TablesDir, fileName)
}

func (m *GameDataModule) Init(ctx context.Context, _ map[string]any) error {
	result := m.Manager.LoadAll(ctx)
	if len(result.Failures) > 0 {
		for _, err := range result.Failures {
			return err
		}
	}
	return nil
}

func (m *GameDataModule) Start(ctx context.Context) error {
	if m.cfg.WatchInterval > 0 {
		watchCtx, cancel := context.WithCancel(context.Background())
		m.watchCancel = cancel
		go gamedata.Watch(watchCtx, m.Manager, m.cfg.WatchInterval, m.statForTable)
	}
	m.MarkStarted()
	return nil
}

func (m *GameDataModule) Stop(context.Context) error {
	defer m.MarkStopped()
	if m.watchCancel != nil {
		m.watchCancel()
	}
	return nil
}

func (m *GameDataModule) statForTable(name string) (time.Time, error) {
	return statFile(m.TablePath(name + ".xml"))
}
