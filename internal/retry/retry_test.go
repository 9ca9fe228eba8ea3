package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastPolicy(max int) Policy {
	return Policy{MaxAttempts: max, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	var notified []int

	attempts, err := fastPolicy(3).Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, func(attempt int, err error, _ time.Duration) {
		notified = append(notified, attempt)
		assert.ErrorIs(t, err, errFlaky)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want int
	}{
		{name: "single attempt", max: 1, want: 1},
		{name: "three attempts", max: 3, want: 3},
		{name: "zero treated as one", max: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			attempts, err := fastPolicy(tt.max).Do(context.Background(), func(context.Context, int) error {
				calls++
				return errFlaky
			}, nil)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
			assert.ErrorIs(t, err, errFlaky)
			assert.Equal(t, tt.want, attempts)
			assert.Equal(t, tt.want, calls)
		})
	}
}

func TestDoNonRetryableReturnsImmediately(t *testing.T) {
	permanent := errors.New("gone")
	policy := fastPolicy(5)
	policy.IsRetryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context, int) error {
		calls++
		return permanent
	}, nil)

	assert.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 10, BaseDelay: time.Hour}

	calls := 0
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = policy.Do(ctx, func(context.Context, int) error {
			calls++
			return errFlaky
		}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 5*time.Second, p.Delay(3))
}
