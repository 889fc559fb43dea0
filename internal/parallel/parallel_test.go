package parallel

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRanges(t *testing.T) {
	assert.Equal(t, []Range{{0, 100}}, Ranges(100, 1))
	assert.Equal(t, []Range{{0, 50}, {50, 100}}, Ranges(100, 2))
	assert.Equal(t, []Range{{0, 34}, {34, 68}, {68, 100}}, Ranges(100, 3))
	assert.Equal(t, []Range{{0, 1}, {1, 2}, {2, 3}}, Ranges(3, 8))
	assert.Nil(t, Ranges(0, 4))
}

func TestRanges_Cover(t *testing.T) {
	for n := 1; n < 200; n += 13 {
		for steps := 1; steps < 20; steps++ {
			rs := Ranges(n, steps)
			require.LessOrEqual(t, len(rs), steps)
			next := 0
			for _, r := range rs {
				require.Equal(t, next, r.Lo)
				require.Greater(t, r.Len(), 0)
				next = r.Hi
			}
			require.Equal(t, n, next)
		}
	}
}

type handle struct {
	closed *atomic.Int32
}

func (h *handle) Close() error {
	h.closed.Add(1)
	return nil
}

func TestMapReduce_ConcatAllItems(t *testing.T) {
	var inits, closed atomic.Int32
	out, err := MapReduce(context.Background(), 1000, 4,
		func() (*handle, error) {
			inits.Add(1)
			return &handle{closed: &closed}, nil
		},
		func(_ context.Context, _ *handle, i int) ([]int, error) { return []int{i}, nil },
		func(a, b []int) []int { return append(a, b...) },
	)
	require.NoError(t, err)
	sort.Ints(out)
	require.Len(t, out, 1000)
	for i, v := range out {
		require.Equal(t, i, v)
	}
	assert.Equal(t, int32(4), inits.Load())
	assert.Equal(t, inits.Load(), closed.Load())
}

func TestMapReduce_Sum(t *testing.T) {
	out, err := MapReduce(context.Background(), 101, 0, NoHandle,
		func(_ context.Context, _ struct{}, i int) (int, error) { return i, nil },
		func(a, b int) int { return a + b },
	)
	require.NoError(t, err)
	assert.Equal(t, 5050, out)
}

func TestMapReduce_Empty(t *testing.T) {
	out, err := MapReduce(context.Background(), 0, 4, NoHandle,
		func(_ context.Context, _ struct{}, i int) (int, error) { return 1, nil },
		func(a, b int) int { return a + b },
	)
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}

func TestMapReduce_FirstErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	_, err := MapReduce(context.Background(), 100, 3, NoHandle,
		func(_ context.Context, _ struct{}, i int) (int, error) {
			if i == 17 {
				return 0, boom
			}
			return i, nil
		},
		func(a, b int) int { return a + b },
	)
	assert.ErrorIs(t, err, boom)
}

func TestMapReduce_InitError(t *testing.T) {
	boom := errors.New("open failed")
	_, err := MapReduce(context.Background(), 10, 2,
		func() (struct{}, error) { return struct{}{}, boom },
		func(_ context.Context, _ struct{}, i int) (int, error) { return i, nil },
		func(a, b int) int { return a + b },
	)
	assert.ErrorIs(t, err, boom)
}
