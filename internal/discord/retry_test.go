package discord

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_Within(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		budget time.Duration
		want   int
	}{
		{0, 0},
		{400 * time.Millisecond, 0},
		{500 * time.Millisecond, 1},
		{2 * time.Second, 2},
		{time.Hour, 5},
	}
	for _, tt := range tests {
		got := p.Within(tt.budget)
		if got.MaxRetries != tt.want {
			t.Errorf("Within(%s).MaxRetries = %d, want %d", tt.budget, got.MaxRetries, tt.want)
		}
		if got.Initial != p.Initial || got.Max != p.Max {
			t.Errorf("Within(%s) changed delays: %+v", tt.budget, got)
		}
	}
}

func TestConnectWithRetry_Bounded(t *testing.T) {
	var calls atomic.Int32
	dial := func(context.Context) (net.Conn, error) {
		calls.Add(1)
		return nil, ErrTransportUnavailable
	}
	s := NewSession("app", testOptions(dial))

	p := RetryPolicy{MaxRetries: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}
	err := ConnectWithRetry(context.Background(), s, p)
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed, got %v", err)
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("dial calls = %d, want 4 (1 attempt + 3 retries)", got)
	}
}

func TestConnectWithRetry_SucceedsLater(t *testing.T) {
	var calls atomic.Int32
	dial := func(ctx context.Context) (net.Conn, error) {
		if calls.Add(1) < 3 {
			return nil, ErrTransportUnavailable
		}
		server, client := net.Pipe()
		t.Cleanup(func() {
			server.Close()
			client.Close()
		})
		go func() { _, _ = acceptHandshake(server) }()
		return client, nil
	}
	s := NewSession("app", testOptions(dial))

	p := RetryPolicy{MaxRetries: 5, Initial: time.Millisecond, Max: time.Millisecond}
	if err := ConnectWithRetry(context.Background(), s, p); err != nil {
		t.Fatalf("ConnectWithRetry: %v", err)
	}
	if !s.Ready() {
		t.Fatalf("state = %s, want ready", s.State())
	}
}

func TestConnectWithRetry_Cancelled(t *testing.T) {
	dial := func(context.Context) (net.Conn, error) { return nil, ErrTransportUnavailable }
	s := NewSession("app", testOptions(dial))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p := RetryPolicy{MaxRetries: 5, Initial: time.Hour, Max: time.Hour}
	if err := ConnectWithRetry(ctx, s, p); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}
