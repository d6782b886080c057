package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParallelRunsEveryInput(t *testing.T) {
	var sum atomic.Int64
	err := Parallel(context.Background(), []int{1, 2, 3, 4, 5}, 2, func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(15), sum.Load())
}

func TestParallelCollectsAllErrors(t *testing.T) {
	errOdd := errors.New("odd")
	var calls atomic.Int64
	err := Parallel(context.Background(), []int{1, 2, 3}, 3, func(_ context.Context, n int) error {
		calls.Add(1)
		if n%2 == 1 {
			return errOdd
		}
		return nil
	})
	assert.ErrorIs(t, err, errOdd)
	assert.Equal(t, int64(3), calls.Load())
}

func TestParallelLimitsWorkers(t *testing.T) {
	var running, peak atomic.Int64
	_ = Parallel(context.Background(), make([]int, 8), 2, func(context.Context, int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	})
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestParallelEmpty(t *testing.T) {
	assert.NoError(t, Parallel(context.Background(), []string{}, 4, func(context.Context, string) error {
		t.Fatal("called for empty input")
		return nil
	}))
}
