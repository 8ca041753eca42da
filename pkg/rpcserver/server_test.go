package rpcserver

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/serialize"
	"slgserver/pkg/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialAndCall(t *testing.T, addr string, req wire.RequestEnvelope) *wire.Frame {
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	codec := serialize.NewRegistry()
	payload, usedCompressor, err := codec.Encode(serialize.SerializerJSON, serialize.CompressorNone, req)
	require.NoError(t, err)

	enc := wire.NewEncoder(conn, 0)
	require.NoError(t, enc.Encode(&wire.Frame{
		Type:         wire.MessageRequest,
		SerializerID: serialize.SerializerJSON,
		CompressorID: usedCompressor,
		RequestID:    1,
		Payload:      payload,
	}))

	if req.OneWay {
		return nil
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	dec := wire.NewDecoder(conn, 0)
	f, err := dec.Decode()
	require.NoError(t, err)
	return f
}

func newTestServer(t *testing.T) (*Server, string) {
	s := New(Options{HeartbeatInterval: time.Hour})
	require.NoError(t, s.Listen("127.0.0.1:0"))
	t.Cleanup(func() { s.Close() })

	s.mu.RLock()
	addr := s.listeners[0].Addr().String()
	s.mu.RUnlock()
	return s, addr
}

func TestDispatchSuccess(t *testing.T) {
	s, addr := newTestServer(t)
	s.Register("echo", &Service{Methods: map[string]MethodFunc{
		"ping": func(_ context.Context, req any) (any, error) {
			return "pong", nil
		},
	}})

	f := dialAndCall(t, addr, wire.RequestEnvelope{ServiceKey: "echo", Method: "ping"})
	var resp wire.ResponseEnvelope
	codec := serialize.NewRegistry()
	require.NoError(t, codec.Decode(f.SerializerID, f.CompressorID, f.Payload, &resp))
	assert.Empty(t, resp.Code)

	var data string
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "pong", data)
}

func TestDispatchMethodNotFound(t *testing.T) {
	s, addr := newTestServer(t)
	s.Register("echo", &Service{Methods: map[string]MethodFunc{}})

	f := dialAndCall(t, addr, wire.RequestEnvelope{ServiceKey: "echo", Method: "missing"})
	var resp wire.ResponseEnvelope
	codec := serialize.NewRegistry()
	require.NoError(t, codec.Decode(f.SerializerID, f.CompressorID, f.Payload, &resp))
	assert.Equal(t, string(apperror.CodeNotFound), resp.Code)
}

func TestDispatchAsyncSuffixFallsBackToSync(t *testing.T) {
	s, addr := newTestServer(t)
	s.Register("echo", &Service{Methods: map[string]MethodFunc{
		"Ping": func(_ context.Context, req any) (any, error) { return "sync-pong", nil },
	}})

	f := dialAndCall(t, addr, wire.RequestEnvelope{ServiceKey: "echo", Method: "PingAsync"})
	var resp wire.ResponseEnvelope
	codec := serialize.NewRegistry()
	require.NoError(t, codec.Decode(f.SerializerID, f.CompressorID, f.Payload, &resp))

	var data string
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "sync-pong", data)
}

func TestDispatchHandlerPanicRecovered(t *testing.T) {
	s, addr := newTestServer(t)
	s.Register("echo", &Service{Methods: map[string]MethodFunc{
		"boom": func(_ context.Context, req any) (any, error) { panic("kaboom") },
	}})

	f := dialAndCall(t, addr, wire.RequestEnvelope{ServiceKey: "echo", Method: "boom"})
	var resp wire.ResponseEnvelope
	codec := serialize.NewRegistry()
	require.NoError(t, codec.Decode(f.SerializerID, f.CompressorID, f.Payload, &resp))
	assert.Equal(t, string(apperror.CodeInternal), resp.Code)
}

func TestOneWayProducesNoResponse(t *testing.T) {
	s, addr := newTestServer(t)
	called := make(chan struct{}, 1)
	s.Register("echo", &Service{Methods: map[string]MethodFunc{
		"fire": func(_ context.Context, req any) (any, error) {
			called <- struct{}{}
			return nil, nil
		},
	}})

	dialAndCall(t, addr, wire.RequestEnvelope{ServiceKey: "echo", Method: "fire", OneWay: true})

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("one-way handler never invoked")
	}
}

func TestHeartbeatAnsweredInline(t *testing.T) {
	s, addr := newTestServer(t)
	_ = s

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	enc := wire.NewEncoder(conn, 0)
	require.NoError(t, enc.Encode(wire.NewHeartbeat(5, false)))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	dec := wire.NewDecoder(conn, 0)
	f, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, wire.MessageHeartbeatResponse, f.Type)
	assert.Equal(t, uint64(5), f.RequestID)
}

func TestMethodCacheNegativeSentinel(t *testing.T) {
	s := New(Options{})
	s.Register("echo", &Service{Methods: map[string]MethodFunc{}})

	_, ok1 := s.resolve("echo", "missing")
	_, ok2 := s.resolve("echo", "missing")
	assert.False(t, ok1)
	assert.False(t, ok2)
}
