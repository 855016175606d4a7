package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2 (three attempts)", config.MaxRetries)
	}
	if config.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s", config.InitialInterval)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", config.Multiplier)
	}
}

func TestNew_WithZeroValues(t *testing.T) {
	retrier := New(&Config{JitterFactor: 3})

	if retrier.config.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s", retrier.config.InitialInterval)
	}
	if retrier.config.MaxInterval != 30*time.Second {
		t.Errorf("MaxInterval = %v, want 30s", retrier.config.MaxInterval)
	}
	if retrier.config.JitterFactor != 1 {
		t.Errorf("JitterFactor = %f, want clamped to 1", retrier.config.JitterFactor)
	}
}

func TestRetrier_Do(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name         string
		maxRetries   int
		failures     int
		permanent    bool
		wantAttempts int
		wantErr      error
	}{
		{name: "success first try", maxRetries: 2, failures: 0, wantAttempts: 1},
		{name: "success after retries", maxRetries: 2, failures: 2, wantAttempts: 3},
		{name: "exhausted", maxRetries: 2, failures: 10, wantAttempts: 3, wantErr: ErrMaxRetriesExceeded},
		{name: "no retries configured", maxRetries: 0, failures: 10, wantAttempts: 1, wantErr: ErrMaxRetriesExceeded},
		{name: "permanent stops immediately", maxRetries: 5, failures: 10, permanent: true, wantAttempts: 1, wantErr: errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			op := func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return Permanent(errBoom)
					}
					return errBoom
				}
				return nil
			}

			result := New(fastConfig(tt.maxRetries)).Do(context.Background(), op)

			if result.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", result.Attempts, tt.wantAttempts)
			}
			if !errors.Is(result.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", result.Err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(result.LastError, errBoom) {
				t.Errorf("LastError = %v, want boom", result.LastError)
			}
		})
	}
}

func TestRetrier_DoWithCallback(t *testing.T) {
	var seen []int
	op := func(ctx context.Context) error { return errors.New("fail") }

	New(fastConfig(3)).DoWithCallback(context.Background(), op, func(attempt int, err error, next time.Duration) {
		seen = append(seen, attempt)
	})

	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("callback attempts = %v, want [1 2 3]", seen)
	}
}

func TestRetrier_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := New(fastConfig(3)).Do(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(result.Err, ErrContextCanceled) {
		t.Errorf("Err = %v, want ErrContextCanceled", result.Err)
	}
}

func TestRetrier_Backoff(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2})

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := r.Backoff(i); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(Permanent(errors.New("x"))) {
		t.Error("expected permanent")
	}
	if IsPermanent(errors.New("x")) {
		t.Error("plain error reported as permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
