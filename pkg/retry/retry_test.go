package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	errTransient = errors.New("connection reset")
	errBadQuery  = errors.New("syntax error")
)

func fastRetrier(attempts int) *Retrier {
	return New(
		WithMaxAttempts(attempts),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2*time.Millisecond),
		WithJitter(0),
		WithRetryIf(func(err error) bool { return errors.Is(err, errTransient) }),
	)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	var retried []int
	r := fastRetrier(3).With(WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		retried = append(retried, attempt)
	}))

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ReturnsLastErrorAfterLastAttempt(t *testing.T) {
	calls := 0
	err := fastRetrier(2).Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	assert.Equal(t, errTransient, err)
	assert.Equal(t, 2, calls)
}

func TestDo_StopsOnRejectedError(t *testing.T) {
	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errBadQuery
	})

	assert.Equal(t, errBadQuery, err)
	assert.Equal(t, 1, calls)
}

func TestDo_DefaultSkipsContextErrors(t *testing.T) {
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithJitter(0))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)

	calls = 0
	_ = r.Do(context.Background(), func(context.Context) error {
		calls++
		return errBadQuery
	})
	assert.Equal(t, 3, calls)
}

func TestDo_StopsWhenContextEnds(t *testing.T) {
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Hour), WithJitter(0))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		return errTransient
	})

	assert.Equal(t, errTransient, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), fastRetrier(2), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errTransient
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDelay_Capped(t *testing.T) {
	r := New(WithInitialDelay(time.Second), WithMaxDelay(3*time.Second), WithJitter(0))
	assert.Equal(t, time.Second, r.delay(1))
	assert.Equal(t, 2*time.Second, r.delay(2))
	assert.Equal(t, 3*time.Second, r.delay(5))
}

func TestPresets(t *testing.T) {
	assert.Equal(t, 3, FactSourceRetrier().config.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, FactSourceRetrier().config.InitialDelay)
	assert.Equal(t, time.Second, CacheRetrier().config.MaxDelay)
}
