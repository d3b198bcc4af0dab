package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset")

func TestDo_ExhaustsBudget(t *testing.T) {
	for _, budget := range []int{0, 1, 3, 10} {
		attempts := 0
		retries := 0

		err := Do(context.Background(), Policy{
			Budget:  budget,
			OnRetry: func(int, error) { retries++ },
		}, func(context.Context, int) error {
			attempts++
			return errTransient
		})

		require.Error(t, err)
		assert.Equal(t, budget+1, attempts)
		assert.Equal(t, budget, retries)
		assert.ErrorIs(t, err, ErrBudgetExhausted)
		assert.ErrorIs(t, err, errTransient)

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, budget+1, exhausted.Attempts)
	}
}

func TestDo_StopsOnSuccess(t *testing.T) {
	attempts := 0

	value, err := DoValue(context.Background(), Policy{Budget: 5}, func(_ context.Context, attempt int) (string, error) {
		attempts++
		if attempt < 3 {
			return "", errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, attempts)
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("bad request")
	attempts := 0

	err := Do(context.Background(), Policy{
		Budget:      5,
		IsRetryable: func(err error) bool { return !errors.Is(err, permanent) },
	}, func(context.Context, int) error {
		attempts++
		return permanent
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, permanent, err)
	assert.NotErrorIs(t, err, ErrBudgetExhausted)
}

func TestDo_SleepsBetweenAttempts(t *testing.T) {
	start := time.Now()

	_ = Do(context.Background(), Policy{Budget: 2, Interval: 20 * time.Millisecond}, func(context.Context, int) error {
		return errTransient
	})

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(ctx, Policy{Budget: 50, Interval: time.Hour}, func(context.Context, int) error {
		attempts++
		cancel()
		return errTransient
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}
