package registry

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoRedis(t *testing.T) {
	if os.Getenv("REDIS_TEST_ADDR") == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping registry tests")
	}
}

func newTestRegistry(t *testing.T) *Registry {
	r, err := New(Options{
		Addr: os.Getenv("REDIS_TEST_ADDR"),
		Root: "/slg-test",
		TTL:  2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegisterAndDiscover(t *testing.T) {
	skipIfNoRedis(t)
	r := newTestRegistry(t)
	ctx := context.Background()

	inst := Instance{ServiceKey: "game", ServerID: 1, Address: "127.0.0.1:9001"}
	require.NoError(t, r.Register(ctx, inst, time.Second))
	defer r.Unregister(ctx, inst)

	instances, err := r.Discover(ctx, "game")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, inst.Address, instances[0].Address)
}

func TestDiscoverInstanceWildcard(t *testing.T) {
	skipIfNoRedis(t)
	r := newTestRegistry(t)
	ctx := context.Background()

	inst := Instance{ServiceKey: "gate", ServerID: 3, Address: "127.0.0.1:9101"}
	require.NoError(t, r.Register(ctx, inst, time.Second))
	defer r.Unregister(ctx, inst)

	found, err := r.DiscoverInstance(ctx, "gate", 0)
	require.NoError(t, err)
	assert.Equal(t, inst.Address, found.Address)
}

func TestDiscoverInstanceNoneAvailable(t *testing.T) {
	skipIfNoRedis(t)
	r := newTestRegistry(t)

	_, err := r.DiscoverInstance(context.Background(), "nonexistent-service", 0)
	require.Error(t, err)
}

func TestUnregisterRemovesInstance(t *testing.T) {
	skipIfNoRedis(t)
	r := newTestRegistry(t)
	ctx := context.Background()

	inst := Instance{ServiceKey: "world", ServerID: 1, Address: "127.0.0.1:9201"}
	require.NoError(t, r.Register(ctx, inst, time.Second))
	require.NoError(t, r.Unregister(ctx, inst))

	instances, err := r.Discover(ctx, "world")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestWatchFiresOfflineCallbackOnEviction(t *testing.T) {
	skipIfNoRedis(t)
	r := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inst := Instance{ServiceKey: "alliance", ServerID: 7, Address: "127.0.0.1:9301"}
	require.NoError(t, r.Register(ctx, inst, time.Second))

	offline := make(chan string, 1)
	r.SetOfflineCallback(func(serviceKey string) { offline <- serviceKey })

	changes := make(chan []Instance, 4)
	// Watch seeds its view with the instance registered above before this
	// call returns, so the deregistration below is the first change it sees.
	require.NoError(t, r.Watch(ctx, "alliance", func(instances []Instance) { changes <- instances }))

	require.NoError(t, r.Unregister(ctx, inst))

	select {
	case got := <-changes:
		assert.Empty(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deregistration notification")
	}

	select {
	case serviceKey := <-offline:
		assert.Equal(t, "alliance", serviceKey)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for offline callback")
	}
}

func TestParseServiceKey(t *testing.T) {
	cases := []struct {
		target      string
		wantService string
		wantServer  int64
	}{
		{"game#0", "game", 0},
		{"game#42", "game", 42},
		{"gate", "gate", 0},
	}
	for _, c := range cases {
		svc, id := ParseServiceKey(c.target)
		assert.Equal(t, c.wantService, svc)
		assert.Equal(t, c.wantServer, id)
	}
}
