// Package serialize maintains the process-wide registry of wire
// serializers and compressors, addressed by the single-byte ids carried
// in every frame preamble.
package serialize

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"sync"

	"slgserver/pkg/apperror"
)

// Serializer converts a value to and from bytes. Implementations are pure
// byte-array <-> value codecs with no hidden state.
type Serializer interface {
	ID() uint8
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Compressor compresses and decompresses byte slices. Implementations are
// pure byte-array <-> byte-array with no hidden state.
type Compressor interface {
	ID() uint8
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

const (
	// SerializerJSON is the default, always-registered serializer id.
	SerializerJSON uint8 = 1

	// CompressorNone means the payload is carried uncompressed.
	CompressorNone uint8 = 0
	// CompressorGzip is the default, always-registered compressor id.
	CompressorGzip uint8 = 1
)

// JSONSerializer implements Serializer with encoding/json.
type JSONSerializer struct{}

func (JSONSerializer) ID() uint8      { return SerializerJSON }
func (JSONSerializer) Name() string   { return "json" }
func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// noneCompressor is the identity compressor used for CompressorNone.
type noneCompressor struct{}

func (noneCompressor) ID() uint8                           { return CompressorNone }
func (noneCompressor) Name() string                        { return "none" }
func (noneCompressor) Compress(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// GzipCompressor implements Compressor with compress/gzip.
type GzipCompressor struct{}

func (GzipCompressor) ID() uint8    { return CompressorGzip }
func (GzipCompressor) Name() string { return "gzip" }

func (GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GzipCompressor) Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Registry is a process-wide map of serializer/compressor ids to
// implementations, shared by every connection so the wire layer never
// needs to carry implementation state of its own.
type Registry struct {
	mu               sync.RWMutex
	serializers      map[uint8]Serializer
	compressors      map[uint8]Compressor
	compressionFloor int
}

// DefaultCompressionFloor is the smallest payload size, in bytes, for
// which compression is worth attempting; smaller payloads are sent
// uncompressed regardless of the CompressorID requested by the caller.
const DefaultCompressionFloor = 256

// NewRegistry returns a Registry pre-populated with JSON serialization and
// gzip/none compression.
func NewRegistry() *Registry {
	r := &Registry{
		serializers:      make(map[uint8]Serializer),
		compressors:      make(map[uint8]Compressor),
		compressionFloor: DefaultCompressionFloor,
	}
	r.RegisterSerializer(JSONSerializer{})
	r.RegisterCompressor(noneCompressor{})
	r.RegisterCompressor(GzipCompressor{})
	return r
}

// RegisterSerializer adds or replaces a serializer under its own ID.
func (r *Registry) RegisterSerializer(s Serializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serializers[s.ID()] = s
}

// RegisterCompressor adds or replaces a compressor under its own ID.
func (r *Registry) RegisterCompressor(c Compressor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compressors[c.ID()] = c
}

// SetCompressionFloor sets the minimum payload size worth compressing.
func (r *Registry) SetCompressionFloor(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compressionFloor = n
}

// Serializer looks up a registered serializer by id.
func (r *Registry) Serializer(id uint8) (Serializer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.serializers[id]
	if !ok {
		return nil, apperror.New(apperror.CodeSerializeFail, "unknown serializer id").
			WithDetails("serializerId", id)
	}
	return s, nil
}

// Compressor looks up a registered compressor by id.
func (r *Registry) Compressor(id uint8) (Compressor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.compressors[id]
	if !ok {
		return nil, apperror.New(apperror.CodeSerializeFail, "unknown compressor id").
			WithDetails("compressorId", id)
	}
	return c, nil
}

// Encode marshals v with the serializer named by serializerID, then
// compresses the result with the compressor named by compressorID unless
// the marshaled payload is smaller than the registry's compression floor,
// in which case compressorID is downgraded to CompressorNone and the
// returned id reflects that.
func (r *Registry) Encode(serializerID, compressorID uint8, v any) (payload []byte, usedCompressorID uint8, err error) {
	s, err := r.Serializer(serializerID)
	if err != nil {
		return nil, 0, err
	}

	raw, err := s.Marshal(v)
	if err != nil {
		return nil, 0, apperror.Wrap(err, apperror.CodeSerializeFail, "marshal failed")
	}

	r.mu.RLock()
	floor := r.compressionFloor
	r.mu.RUnlock()

	if compressorID == CompressorNone || len(raw) < floor {
		return raw, CompressorNone, nil
	}

	c, err := r.Compressor(compressorID)
	if err != nil {
		return nil, 0, err
	}

	compressed, err := c.Compress(raw)
	if err != nil {
		return nil, 0, apperror.Wrap(err, apperror.CodeSerializeFail, "compress failed")
	}

	return compressed, compressorID, nil
}

// Decode decompresses payload with the compressor named by compressorID,
// then unmarshals the result into v with the serializer named by
// serializerID.
func (r *Registry) Decode(serializerID, compressorID uint8, payload []byte, v any) error {
	c, err := r.Compressor(compressorID)
	if err != nil {
		return err
	}

	raw, err := c.Decompress(payload)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeSerializeFail, "decompress failed")
	}

	s, err := r.Serializer(serializerID)
	if err != nil {
		return err
	}

	if err := s.Unmarshal(raw, v); err != nil {
		return apperror.Wrap(err, apperror.CodeSerializeFail, "unmarshal failed")
	}

	return nil
}
