package wire

import (
	"bytes"
	"io"
	"testing"

	"slgserver/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 0)
	dec := NewDecoder(&buf, 0)

	in := &Frame{
		Type:         MessageRequest,
		SerializerID: 1,
		CompressorID: 0,
		RequestID:    42,
		Payload:      []byte("hello world"),
	}

	require.NoError(t, enc.Encode(in))

	out, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.SerializerID, out.SerializerID)
	assert.Equal(t, in.CompressorID, out.CompressorID)
	assert.Equal(t, in.RequestID, out.RequestID)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestEncodeDecodeEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 0)
	dec := NewDecoder(&buf, 0)

	require.NoError(t, enc.Encode(&Frame{Type: MessageHeartbeatRequest, RequestID: 7}))

	out, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, MessageHeartbeatRequest, out.Type)
	assert.Equal(t, uint64(7), out.RequestID)
	assert.Empty(t, out.Payload)
}

func TestEncodeFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 4)

	err := enc.Encode(&Frame{Type: MessageRequest, Payload: []byte("too long")})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeFrameInvalid, apperror.Code(err))
}

func TestDecodeBadMagic(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xDE, 0xAD, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	dec := NewDecoder(buf, 0)

	_, err := dec.Decode()
	require.Error(t, err)
	assert.Equal(t, apperror.CodeFrameInvalid, apperror.Code(err))
}

func TestDecodeOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 0)
	require.NoError(t, enc.Encode(&Frame{Type: MessageRequest, Payload: make([]byte, 100)}))

	dec := NewDecoder(&buf, 10)
	_, err := dec.Decode()
	require.Error(t, err)
	assert.Equal(t, apperror.CodeFrameInvalid, apperror.Code(err))
}

func TestDecodeEOF(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil), 0)
	_, err := dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewHeartbeat(t *testing.T) {
	req := NewHeartbeat(1, false)
	assert.Equal(t, MessageHeartbeatRequest, req.Type)

	resp := NewHeartbeat(1, true)
	assert.Equal(t, MessageHeartbeatResponse, resp.Type)
}

func TestMessageTypeString(t *testing.T) {
	cases := map[MessageType]string{
		MessageRequest:           "REQUEST",
		MessageResponse:          "RESPONSE",
		MessageHeartbeatRequest:  "HEARTBEAT_REQUEST",
		MessageHeartbeatResponse: "HEARTBEAT_RESPONSE",
		MessageType(99):          "UNKNOWN",
	}
	for mt, want := range cases {
		assert.Equal(t, want, mt.String())
	}
}
