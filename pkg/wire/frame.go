// Package wire implements the fixed-preamble frame codec shared by every
// RPC connection: a small header describing how the payload that follows
// is serialized and compressed, followed by the payload bytes themselves.
package wire

import (
	"encoding/binary"
	"io"

	"slgserver/pkg/apperror"
)

// MessageType identifies the kind of frame on the wire.
type MessageType uint8

const (
	// MessageRequest is a client-initiated call awaiting a response.
	MessageRequest MessageType = iota + 1
	// MessageResponse is a reply to a prior MessageRequest, correlated by RequestID.
	MessageResponse
	// MessageHeartbeatRequest is a keepalive probe sent by either side.
	MessageHeartbeatRequest
	// MessageHeartbeatResponse answers a MessageHeartbeatRequest.
	MessageHeartbeatResponse
)

func (t MessageType) String() string {
	switch t {
	case MessageRequest:
		return "REQUEST"
	case MessageResponse:
		return "RESPONSE"
	case MessageHeartbeatRequest:
		return "HEARTBEAT_REQUEST"
	case MessageHeartbeatResponse:
		return "HEARTBEAT_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

const (
	// Magic identifies a well-formed frame preamble.
	Magic uint16 = 0x534C // "SL"
	// Version is the current wire protocol version.
	Version uint8 = 1

	// PreambleSize is the fixed byte length of the frame header, before the payload.
	// magic(2) + version(1) + messageType(1) + serializerID(1) + compressorID(1) + requestID(8) + payloadLength(4)
	PreambleSize = 2 + 1 + 1 + 1 + 1 + 8 + 4

	// DefaultMaxFrameSize is the default ceiling on a single frame's payload length.
	DefaultMaxFrameSize = 1 * 1024 * 1024
)

// Frame is one decoded unit of the wire protocol: a preamble plus the raw
// payload bytes exactly as they came off (or go onto) the connection,
// before serializer/compressor processing.
type Frame struct {
	Type         MessageType
	SerializerID uint8
	CompressorID uint8
	RequestID    uint64
	Payload      []byte
}

// Encoder writes frames onto an underlying io.Writer, enforcing a maximum
// payload size.
type Encoder struct {
	w            io.Writer
	maxFrameSize int
}

// NewEncoder returns an Encoder bounded by maxFrameSize bytes of payload.
// A maxFrameSize of 0 uses DefaultMaxFrameSize.
func NewEncoder(w io.Writer, maxFrameSize int) *Encoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Encoder{w: w, maxFrameSize: maxFrameSize}
}

// Encode writes the preamble followed by f.Payload to the underlying writer.
func (e *Encoder) Encode(f *Frame) error {
	if len(f.Payload) > e.maxFrameSize {
		return apperror.New(apperror.CodeFrameInvalid, "frame payload exceeds max frame size").
			WithDetails("payloadLength", len(f.Payload)).
			WithDetails("maxFrameSize", e.maxFrameSize)
	}

	buf := make([]byte, PreambleSize+len(f.Payload))
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = Version
	buf[3] = byte(f.Type)
	buf[4] = f.SerializerID
	buf[5] = f.CompressorID
	binary.BigEndian.PutUint64(buf[6:14], f.RequestID)
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(f.Payload)))
	copy(buf[PreambleSize:], f.Payload)

	_, err := e.w.Write(buf)
	return err
}

// Decoder reads frames from an underlying io.Reader, enforcing a maximum
// payload size and validating the magic/version on every preamble.
type Decoder struct {
	r            io.Reader
	maxFrameSize int
	preamble     [PreambleSize]byte
}

// NewDecoder returns a Decoder bounded by maxFrameSize bytes of payload.
// A maxFrameSize of 0 uses DefaultMaxFrameSize.
func NewDecoder(r io.Reader, maxFrameSize int) *Decoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{r: r, maxFrameSize: maxFrameSize}
}

// Decode blocks until a full frame has been read, or returns an error. A
// malformed preamble (bad magic) or oversized payload both yield a
// CodeFrameInvalid *apperror.Error; io.EOF propagates unwrapped so callers
// can distinguish a clean connection close from a protocol violation.
func (d *Decoder) Decode() (*Frame, error) {
	if _, err := io.ReadFull(d.r, d.preamble[:]); err != nil {
		return nil, err
	}

	magic := binary.BigEndian.Uint16(d.preamble[0:2])
	if magic != Magic {
		return nil, apperror.New(apperror.CodeFrameInvalid, "bad magic").
			WithDetails("magic", magic)
	}

	version := d.preamble[2]
	if version != Version {
		return nil, apperror.New(apperror.CodeFrameInvalid, "unsupported wire version").
			WithDetails("version", version)
	}

	payloadLength := binary.BigEndian.Uint32(d.preamble[14:18])
	if int(payloadLength) > d.maxFrameSize {
		return nil, apperror.New(apperror.CodeFrameInvalid, "frame payload exceeds max frame size").
			WithDetails("payloadLength", payloadLength).
			WithDetails("maxFrameSize", d.maxFrameSize)
	}

	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(d.r, payload); err != nil {
			return nil, err
		}
	}

	return &Frame{
		Type:         MessageType(d.preamble[3]),
		SerializerID: d.preamble[4],
		CompressorID: d.preamble[5],
		RequestID:    binary.BigEndian.Uint64(d.preamble[6:14]),
		Payload:      payload,
	}, nil
}

// NewHeartbeat builds a heartbeat frame of the given direction.
func NewHeartbeat(requestID uint64, response bool) *Frame {
	t := MessageHeartbeatRequest
	if response {
		t = MessageHeartbeatResponse
	}
	return &Frame{Type: t, RequestID: requestID}
}
