// Package rpcserver implements the RPC server core: an
// accept loop per listener, a per-connection codec/dispatcher pipeline,
// and method resolution through a bounded cache with a negative-cache
// sentinel for unknown methods.
package rpcserver

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/interceptors"
	"slgserver/pkg/logger"
	"slgserver/pkg/serialize"
	"slgserver/pkg/telemetry"
	"slgserver/pkg/wire"
)

// MethodFunc is one registered RPC method implementation.
type MethodFunc = telemetry.HandlerFunc

// Service is a named group of methods, registered under one service key.
type Service struct {
	Methods map[string]MethodFunc
}

// negative is the sentinel stored in the method cache for a
// (serviceKey, method) pair known not to resolve, so repeated lookups of
// the same unknown method under hostile input don't re-walk the service
// table every time.
var negative = MethodFunc(nil)

// methodCacheMaxSize bounds the resolved-method cache; once full, the
// whole cache is cleared rather than maintaining per-entry recency,
// trading a little resolution latency after a clear for a much simpler
// implementation.
const methodCacheMaxSize = 4096

// Server accepts connections on one or more TCP listeners and dispatches
// inbound REQUEST frames to registered services.
type Server struct {
	maxFrameSize      int
	heartbeatInterval time.Duration
	idleTimeout       time.Duration
	chain             interceptors.Interceptor
	codec             *serialize.Registry

	mu       sync.RWMutex
	services map[string]*Service

	cacheMu sync.Mutex
	cache   map[string]MethodFunc

	listeners []net.Listener
	wg        sync.WaitGroup
}

// Options configures a Server.
type Options struct {
	MaxFrameSize      int
	HeartbeatInterval time.Duration // reader-idle expiry
	Chain             interceptors.Interceptor
}

// New returns a ready-to-use Server with no registered services.
func New(opts Options) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	chain := opts.Chain
	if chain == nil {
		chain = func(_ string, next telemetry.HandlerFunc) telemetry.HandlerFunc { return next }
	}
	return &Server{
		maxFrameSize:      opts.MaxFrameSize,
		heartbeatInterval: opts.HeartbeatInterval,
		idleTimeout:       opts.HeartbeatInterval * 3,
		chain:             chain,
		codec:             serialize.NewRegistry(),
		services:          make(map[string]*Service),
		cache:             make(map[string]MethodFunc),
	}
}

// Register installs svc under serviceKey, replacing any previous
// registration and invalidating any cached resolutions for it.
func (s *Server) Register(serviceKey string, svc *Service) {
	s.mu.Lock()
	s.services[serviceKey] = svc
	s.mu.Unlock()

	s.cacheMu.Lock()
	for k := range s.cache {
		if len(k) > len(serviceKey) && k[:len(serviceKey)] == serviceKey && k[len(serviceKey)] == '\x00' {
			delete(s.cache, k)
		}
	}
	s.cacheMu.Unlock()
}

func cacheKey(serviceKey, method string) string {
	return serviceKey + "\x00" + method
}

// resolve finds the handler for (serviceKey, method), preferring a cached
// result (positive or negative) over walking the service table, and
// applying the Async-suffix-stripping convention: if "FooAsync" isn't
// registered, "Foo" is tried as the synchronous sibling.
func (s *Server) resolve(serviceKey, method string) (MethodFunc, bool) {
	key := cacheKey(serviceKey, method)

	s.cacheMu.Lock()
	if fn, ok := s.cache[key]; ok {
		s.cacheMu.Unlock()
		return fn, fn != nil
	}
	s.cacheMu.Unlock()

	s.mu.RLock()
	svc, ok := s.services[serviceKey]
	s.mu.RUnlock()

	var fn MethodFunc
	if ok {
		if m, found := svc.Methods[method]; found {
			fn = m
		} else if stripped, isAsync := stripAsyncSuffix(method); isAsync {
			if m, found := svc.Methods[stripped]; found {
				fn = m
			}
		}
	}

	s.cacheMu.Lock()
	if len(s.cache) >= methodCacheMaxSize {
		s.cache = make(map[string]MethodFunc)
	}
	s.cache[key] = fn
	s.cacheMu.Unlock()

	return fn, fn != nil
}

func stripAsyncSuffix(method string) (string, bool) {
	const suffix = "Async"
	if len(method) > len(suffix) && method[len(method)-len(suffix):] == suffix {
		return method[:len(method)-len(suffix)], true
	}
	return "", false
}

// Listen starts an accept loop on addr and returns immediately; call Wait
// or Close to block on or stop the server.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeConnFail, "listen failed").WithDetails("addr", addr)
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	dec := wire.NewDecoder(conn, s.maxFrameSize)
	enc := wire.NewEncoder(conn, s.maxFrameSize)
	var encMu sync.Mutex

	for {
		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		f, err := dec.Decode()
		if err != nil {
			return
		}

		switch f.Type {
		case wire.MessageHeartbeatRequest:
			encMu.Lock()
			_ = enc.Encode(wire.NewHeartbeat(f.RequestID, true))
			encMu.Unlock()
		case wire.MessageRequest:
			go s.dispatch(f, &encMu, enc)
		}
	}
}

func (s *Server) dispatch(f *wire.Frame, encMu *sync.Mutex, enc *wire.Encoder) {
	var req wire.RequestEnvelope
	if err := s.codec.Decode(f.SerializerID, f.CompressorID, f.Payload, &req); err != nil {
		s.writeError(f, encMu, enc, err)
		return
	}

	handler, ok := s.resolve(req.ServiceKey, req.Method)
	if !ok {
		err := apperror.New(apperror.CodeNotFound, "method not found").
			WithDetails("serviceKey", req.ServiceKey).WithDetails("method", req.Method)
		if !req.OneWay {
			s.writeError(f, encMu, enc, err)
		}
		return
	}

	wrapped := s.chain(req.ServiceKey+"/"+req.Method, handler)

	var args json.RawMessage = req.Args
	result, err := func() (res any, rerr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Error("rpcserver handler panicked", "serviceKey", req.ServiceKey, "method", req.Method, "panic", r)
				rerr = apperror.New(apperror.CodeInternal, "handler panicked")
			}
		}()
		return wrapped(context.Background(), args)
	}()

	if req.OneWay {
		return
	}

	if err != nil {
		s.writeError(f, encMu, enc, err)
		return
	}

	s.writeSuccess(f, encMu, enc, result)
}

func (s *Server) writeSuccess(f *wire.Frame, encMu *sync.Mutex, enc *wire.Encoder, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.writeError(f, encMu, enc, apperror.Wrap(err, apperror.CodeSerializeFail, "marshal result failed"))
		return
	}

	payload, usedCompressor, err := s.codec.Encode(serialize.SerializerJSON, f.CompressorID, wire.ResponseEnvelope{Data: dataJSON})
	if err != nil {
		return
	}

	encMu.Lock()
	defer encMu.Unlock()
	_ = enc.Encode(&wire.Frame{
		Type:         wire.MessageResponse,
		SerializerID: serialize.SerializerJSON,
		CompressorID: usedCompressor,
		RequestID:    f.RequestID,
		Payload:      payload,
	})
}

func (s *Server) writeError(f *wire.Frame, encMu *sync.Mutex, enc *wire.Encoder, err error) {
	appErr := toAppError(err)
	payload, usedCompressor, encErr := s.codec.Encode(serialize.SerializerJSON, f.CompressorID, wire.ResponseEnvelope{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
	if encErr != nil {
		return
	}

	encMu.Lock()
	defer encMu.Unlock()
	_ = enc.Encode(&wire.Frame{
		Type:         wire.MessageResponse,
		SerializerID: serialize.SerializerJSON,
		CompressorID: usedCompressor,
		RequestID:    f.RequestID,
		Payload:      payload,
	})
}

func toAppError(err error) *apperror.Error {
	var appErr *apperror.Error
	if e, ok := err.(*apperror.Error); ok {
		appErr = e
	} else {
		appErr = apperror.New(apperror.CodeInternal, err.Error())
	}
	return appErr
}

// Close stops accepting new connections on every listener. In-flight
// dispatches are not cancelled; callers that need a drain window should
// stop registering new work and wait before calling Close.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range s.listeners {
		ln.Close()
	}
	return nil
}

// Wait blocks until every accept loop and connection handler has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}
