package module

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	Base
	initErr  error
	startErr error
	stopErr  error
	events   *[]string
}

func (m *fakeModule) Init(ctx context.Context, cfg map[string]any) error {
	*m.events = append(*m.events, "init:"+m.NameValue)
	return m.initErr
}

func (m *fakeModule) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	*m.events = append(*m.events, "start:"+m.NameValue)
	m.MarkStarted()
	return nil
}

func (m *fakeModule) Stop(ctx context.Context) error {
	*m.events = append(*m.events, "stop:"+m.NameValue)
	m.MarkStopped()
	return m.stopErr
}

func newFakeModule(name string, priority int, events *[]string) *fakeModule {
	return &fakeModule{Base: Base{NameValue: name, PriorityValue: priority}, events: events}
}

func TestBootstrapRunsInPriorityOrder(t *testing.T) {
	var events []string
	b := NewBootstrap()
	b.Register(newFakeModule("game", 10, &events))
	b.Register(newFakeModule("config", ConfigPriority, &events))
	b.Register(newFakeModule("gate", 5, &events))

	require.NoError(t, b.Run(context.Background(), nil))

	assert.Equal(t, []string{
		"init:config", "init:gate", "init:game",
		"start:config", "start:gate", "start:game",
	}, events)
}

func TestBootstrapShutdownStopsInReverseOrder(t *testing.T) {
	var events []string
	b := NewBootstrap()
	b.Register(newFakeModule("config", ConfigPriority, &events))
	b.Register(newFakeModule("game", 10, &events))
	require.NoError(t, b.Run(context.Background(), nil))

	events = nil
	b.Shutdown(context.Background())
	assert.Equal(t, []string{"stop:game", "stop:config"}, events)
}

func TestBootstrapStopsStartedModulesOnStartFailure(t *testing.T) {
	var events []string
	b := NewBootstrap()
	b.Register(newFakeModule("config", ConfigPriority, &events))
	failing := newFakeModule("game", 10, &events)
	failing.startErr = errors.New("boom")
	b.Register(failing)

	err := b.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, events, "stop:config")
	assert.NotContains(t, events, "start:game")
}

func TestBootstrapStopIsBestEffort(t *testing.T) {
	var events []string
	b := NewBootstrap()
	m := newFakeModule("game", 1, &events)
	m.stopErr = errors.New("stop failed")
	b.Register(m)

	require.NoError(t, b.Run(context.Background(), nil))
	b.Shutdown(context.Background()) // must not panic despite stopErr
	assert.False(t, m.IsRunning())
}
