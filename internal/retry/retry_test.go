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

func TestExponential(t *testing.T) {
	b := Exponential(15*time.Second, 120*time.Second)
	got := []time.Duration{b(1), b(2), b(3), b(4), b(5), b(9)}
	want := []time.Duration{15 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second, 120 * time.Second, 120 * time.Second}
	assert.Equal(t, want, got)
}

func TestChain(t *testing.T) {
	b := Chained().Backoff
	got := []time.Duration{b(1), b(2), b(3), b(4), b(5)}
	want := []time.Duration{15 * time.Second, 30 * time.Second, 45 * time.Second, 90 * time.Second, 120 * time.Second}
	assert.Equal(t, want, got)
}

func TestDo_SucceedsOnLastAttempt(t *testing.T) {
	rec := &Recorder{}
	p := Default()
	p.Sleep = rec.Sleep

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 5 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{15 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second}, rec.Waits)
}

func TestDo_ReturnsLastErrorAfterExhaustion(t *testing.T) {
	rec := &Recorder{}
	p := Default()
	p.Sleep = rec.Sleep

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 5, calls)
	assert.Len(t, rec.Waits, 4)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	p := Policy{
		MaxAttempts: 5,
		Backoff:     Fixed(time.Second),
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
		Sleep:       (&Recorder{}).Sleep,
	}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 3,
		Backoff:     Fixed(time.Hour),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return SleepContext(ctx, d)
		},
	}
	err := p.Do(ctx, func(context.Context) error { return errFlaky })
	require.ErrorIs(t, err, errFlaky)
	assert.Contains(t, err.Error(), "retry aborted")
}

func TestDoValue(t *testing.T) {
	p := Policy{MaxAttempts: 2, Sleep: (&Recorder{}).Sleep}
	calls := 0
	v, err := DoValue(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errFlaky
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDo_OnRetryHook(t *testing.T) {
	var attempts []int
	p := Policy{
		MaxAttempts: 3,
		Backoff:     Fixed(time.Second),
		OnRetry:     func(attempt int, _ error, _ time.Duration) { attempts = append(attempts, attempt) },
		Sleep:       (&Recorder{}).Sleep,
	}
	_ = p.Do(context.Background(), func(context.Context) error { return errFlaky })
	assert.Equal(t, []int{1, 2}, attempts)
}
