package interceptors

import (
	"context"
	"errors"
	"testing"

	"slgserver/pkg/apperror"
	"slgserver/pkg/logger"
)

func init() {
	logger.Init("error")
}

func mockHandler(_ context.Context, _ any) (any, error) {
	return "response", nil
}

func mockErrorHandler(_ context.Context, _ any) (any, error) {
	return nil, apperror.New(apperror.CodeInternal, "internal error")
}

func mockPanicHandler(_ context.Context, _ any) (any, error) {
	panic("test panic")
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor()

	t.Run("normal execution", func(t *testing.T) {
		handler := interceptor("/test", mockHandler)
		resp, err := handler(context.Background(), "request")

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if resp != "response" {
			t.Errorf("unexpected response: %v", resp)
		}
	})

	t.Run("panic recovery", func(t *testing.T) {
		handler := interceptor("/test", mockPanicHandler)
		_, err := handler(context.Background(), "request")

		if err == nil {
			t.Fatal("expected error after panic")
		}
		if apperror.Code(err) != apperror.CodeInternal {
			t.Errorf("expected Internal code, got %v", apperror.Code(err))
		}
	})
}

func TestLoggingInterceptor(t *testing.T) {
	interceptor := LoggingInterceptor()

	t.Run("successful request", func(t *testing.T) {
		handler := interceptor("/test.Service/Method", mockHandler)
		resp, err := handler(context.Background(), "request")

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if resp != "response" {
			t.Errorf("unexpected response: %v", resp)
		}
	})

	t.Run("failed request", func(t *testing.T) {
		handler := interceptor("/test.Service/Method", mockErrorHandler)
		_, err := handler(context.Background(), "request")

		if err == nil {
			t.Error("expected error")
		}
	})
}

type mockValidatable struct {
	shouldFail bool
}

func (m *mockValidatable) Validate() error {
	if m.shouldFail {
		return errors.New("validation failed")
	}
	return nil
}

func TestValidationInterceptor(t *testing.T) {
	interceptor := ValidationInterceptor()

	t.Run("valid request", func(t *testing.T) {
		req := &mockValidatable{shouldFail: false}
		handler := interceptor("/test", mockHandler)
		_, err := handler(context.Background(), req)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("invalid request", func(t *testing.T) {
		req := &mockValidatable{shouldFail: true}
		handler := interceptor("/test", mockHandler)
		_, err := handler(context.Background(), req)

		if err == nil {
			t.Fatal("expected error")
		}
		if apperror.Code(err) != apperror.CodeParamInvalid {
			t.Errorf("expected ParamInvalid, got %v", apperror.Code(err))
		}
	})

	t.Run("non-validatable request", func(t *testing.T) {
		handler := interceptor("/test", mockHandler)
		_, err := handler(context.Background(), "string request")

		if err != nil {
			t.Errorf("unexpected error for non-validatable: %v", err)
		}
	})
}

func TestChain(t *testing.T) {
	var order []string

	interceptor1 := func(_ string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			order = append(order, "1-before")
			resp, err := next(ctx, req)
			order = append(order, "1-after")
			return resp, err
		}
	}

	interceptor2 := func(_ string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			order = append(order, "2-before")
			resp, err := next(ctx, req)
			order = append(order, "2-after")
			return resp, err
		}
	}

	chain := Chain(interceptor1, interceptor2)

	handler := chain("/test", func(_ context.Context, _ any) (any, error) {
		order = append(order, "handler")
		return "response", nil
	})

	_, _ = handler(context.Background(), "req")

	expected := []string{"1-before", "2-before", "handler", "2-after", "1-after"}
	if len(order) != len(expected) {
		t.Fatalf("order length = %d, want %d", len(order), len(expected))
	}

	for i, v := range expected {
		if order[i] != v {
			t.Errorf("order[%d] = %s, want %s", i, order[i], v)
		}
	}
}

func TestMethodToAction(t *testing.T) {
	tests := []struct {
		method   string
		expected string
	}{
		{"/service/CreateUser", "CREATE"},
		{"/service/GetUser", "READ"},
		{"/service/UpdateUser", "UPDATE"},
		{"/service/DeleteUser", "DELETE"},
		{"/service/Login", "LOGIN"},
		{"/service/Logout", "LOGOUT"},
		{"/service/Broadcast", "CALL"},
		{"/service/Unknown", "CALL"},
	}

	for _, tt := range tests {
		action := methodToAction(tt.method)
		if string(action) != tt.expected {
			t.Errorf("methodToAction(%s) = %s, want %s", tt.method, action, tt.expected)
		}
	}
}

func TestCallInfoFromContext(t *testing.T) {
	ctx := context.Background()

	if _, ok := CallInfoFromContext(ctx); ok {
		t.Error("expected no CallInfo on bare context")
	}

	info := &CallInfo{Service: "svc", Method: "/svc/Method", ClientAddr: "127.0.0.1:1", RequestID: "req-1"}
	ctx = WithCallInfo(ctx, info)

	got, ok := CallInfoFromContext(ctx)
	if !ok {
		t.Fatal("expected CallInfo to be present")
	}
	if got.Service != "svc" || got.Method != "/svc/Method" {
		t.Errorf("unexpected CallInfo: %+v", got)
	}
}
