package rpcpool

import (
	"context"
	"net"
	"testing"
	"time"

	"slgserver/pkg/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer accepts connections and replies HEARTBEAT_RESPONSE to every
// HEARTBEAT_REQUEST, and echoes anything else back as-is.
func echoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				dec := wire.NewDecoder(conn, 0)
				enc := wire.NewEncoder(conn, 0)
				for {
					f, err := dec.Decode()
					if err != nil {
						return
					}
					if f.Type == wire.MessageHeartbeatRequest {
						_ = enc.Encode(wire.NewHeartbeat(f.RequestID, true))
						continue
					}
					_ = enc.Encode(f)
				}
			}()
		}
	}()

	return ln.Addr().String()
}

func TestAcquireLazyInit(t *testing.T) {
	addr := echoServer(t)
	p := NewPool(addr, Options{Capacity: 2, Initial: 1, HeartbeatInterval: time.Hour})
	defer p.Close()

	ch, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ch.Healthy())
}

func TestAcquireReplacesClosedSlot(t *testing.T) {
	addr := echoServer(t)
	p := NewPool(addr, Options{Capacity: 1, Initial: 1, HeartbeatInterval: time.Hour})
	defer p.Close()

	ch1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	ch1.Close()

	ch2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ch2.Healthy())
}

func TestAcquireFailsOnDialError(t *testing.T) {
	p := NewPool("127.0.0.1:1", Options{Capacity: 1, Initial: 1, DialTimeout: 100 * time.Millisecond})
	defer p.Close()

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
}

func TestChannelWriteAfterClose(t *testing.T) {
	addr := echoServer(t)
	p := NewPool(addr, Options{Capacity: 1, Initial: 1, HeartbeatInterval: time.Hour})
	defer p.Close()

	ch, err := p.Acquire(context.Background())
	require.NoError(t, err)
	ch.Close()

	err = ch.Write(&wire.Frame{Type: wire.MessageRequest})
	require.Error(t, err)
}

func TestPoolCloseSweepsSlots(t *testing.T) {
	addr := echoServer(t)
	p := NewPool(addr, Options{Capacity: 2, Initial: 2, HeartbeatInterval: time.Hour})

	ch, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Close()

	time.Sleep(10 * time.Millisecond)
	assert.False(t, ch.Healthy())
}
