package rpcclient

import (
	"context"
	"net"
	"testing"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/registry"
	"slgserver/pkg/rpcpool"
	"slgserver/pkg/serialize"
	"slgserver/pkg/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscoverer struct {
	instances map[string][]registry.Instance
}

func (f *fakeDiscoverer) Discover(_ context.Context, serviceKey string) ([]registry.Instance, error) {
	return f.instances[serviceKey], nil
}

// fakeServer answers every request with an echo response, unless the
// method name is "slow" (never responds) or "fail" (returns an error
// envelope).
func fakeServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	codec := serialize.NewRegistry()

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
					switch f.Type {
					case wire.MessageHeartbeatRequest:
						_ = enc.Encode(wire.NewHeartbeat(f.RequestID, true))
					case wire.MessageRequest:
						var req wire.RequestEnvelope
						_ = codec.Decode(f.SerializerID, f.CompressorID, f.Payload, &req)
						if req.OneWay {
							continue
						}
						if req.Method == "slow" {
							continue
						}
						var resp wire.ResponseEnvelope
						if req.Method == "fail" {
							resp = wire.ResponseEnvelope{Code: string(apperror.CodeNotFound), Message: "not found"}
						} else {
							resp = wire.ResponseEnvelope{Data: req.Args}
						}
						payload, usedCompressor, _ := codec.Encode(serialize.SerializerJSON, f.CompressorID, resp)
						_ = enc.Encode(&wire.Frame{
							Type:         wire.MessageResponse,
							SerializerID: serialize.SerializerJSON,
							CompressorID: usedCompressor,
							RequestID:    f.RequestID,
							Payload:      payload,
						})
					}
				}
			}()
		}
	}()

	return ln.Addr().String()
}

func newTestClient(t *testing.T, addr string) *Client {
	disc := &fakeDiscoverer{instances: map[string][]registry.Instance{
		"echo": {{ServiceKey: "echo", ServerID: 1, Address: addr}},
	}}
	c := New(disc, Options{PoolOptions: rpcpool.Options{HeartbeatInterval: time.Hour}})
	t.Cleanup(c.Shutdown)
	return c
}

func TestInvokeNoInstance(t *testing.T) {
	disc := &fakeDiscoverer{instances: map[string][]registry.Instance{}}
	c := New(disc, Options{PoolOptions: rpcpool.Options{HeartbeatInterval: time.Hour}})
	defer c.Shutdown()

	_, err := c.Invoke(context.Background(), Request{ServiceKey: "missing", Method: "x"}, time.Second)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeNoInstance, apperror.Code(err))
}

func TestShutdownFailsInvoke(t *testing.T) {
	addr := fakeServer(t)
	c := newTestClient(t, addr)
	c.Shutdown()

	_, err := c.Invoke(context.Background(), Request{ServiceKey: "echo", Method: "ping"}, time.Second)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeClientShutdown, apperror.Code(err))
}

func TestInvokeOneWayNoResponseExpected(t *testing.T) {
	addr := fakeServer(t)
	c := newTestClient(t, addr)

	err := c.InvokeOneWay(context.Background(), Request{ServiceKey: "echo", Method: "ping", Args: map[string]any{"x": 1}})
	require.NoError(t, err)
}

func TestInvokeTimeout(t *testing.T) {
	addr := fakeServer(t)
	c := newTestClient(t, addr)

	_, err := c.Invoke(context.Background(), Request{ServiceKey: "echo", Method: "slow"}, 300*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeTimeout, apperror.Code(err))
}

func TestInvokeErrorResponse(t *testing.T) {
	addr := fakeServer(t)
	c := newTestClient(t, addr)

	_, err := c.Invoke(context.Background(), Request{ServiceKey: "echo", Method: "fail"}, time.Second)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeNotFound, apperror.Code(err))
}
