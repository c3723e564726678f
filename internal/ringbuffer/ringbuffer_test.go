package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_New_roundsCapacityUpToPowerOfTwo(t *testing.T) {
	r := New[int](5)
	assert.Equal(t, 8, r.Cap())
}

func Test_TryPush_TryPop_fifoOrder(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 4; i++ {
		require.True(t, r.TryPush(i))
	}
	assert.False(t, r.TryPush(5), "ring should be full")

	for i := 1; i <= 4; i++ {
		v, ok := r.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := r.TryPop()
	assert.False(t, ok, "ring should be empty")
}

func Test_Peek_doesNotRemove(t *testing.T) {
	r := New[int](4)
	r.TryPush(42)

	v, ok := r.Peek()
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, r.Len())

	v, ok = r.TryPop()
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func Test_Drop_discardsOldest(t *testing.T) {
	r := New[int](4)
	r.TryPush(1)
	r.TryPush(2)

	assert.True(t, r.Drop())
	v, ok := r.Peek()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	assert.True(t, r.Drop())
	assert.False(t, r.Drop(), "dropping an empty ring returns false")
}

func Test_PushEvicting_dropsOldestWhenFull(t *testing.T) {
	r := New[int](2)
	r.PushEvicting(1)
	r.PushEvicting(2)
	r.PushEvicting(3) // evicts 1

	v1, ok := r.TryPop()
	require.True(t, ok)
	assert.Equal(t, 2, v1)

	v2, ok := r.TryPop()
	require.True(t, ok)
	assert.Equal(t, 3, v2)
}

func Test_Clear_emptiesQueue(t *testing.T) {
	r := New[int](4)
	r.TryPush(1)
	r.TryPush(2)

	r.Clear()

	assert.Equal(t, 0, r.Len())
	_, ok := r.TryPop()
	assert.False(t, ok)
}

func Test_Ring_rapidFifoInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(t, "capacity")
		r := New[int](capacity)

		var model []int

		ops := rapid.IntRange(0, 2)
		for i := 0; i < 100; i++ {
			switch ops.Draw(t, "op") {
			case 0: // push
				v := rapid.Int().Draw(t, "v")
				if r.TryPush(v) {
					model = append(model, v)
				}
			case 1: // pop
				v, ok := r.TryPop()
				if len(model) == 0 {
					assert.False(t, ok)
				} else if ok {
					assert.Equal(t, model[0], v)
					model = model[1:]
				}
			case 2: // evicting push
				v := rapid.Int().Draw(t, "v")
				if len(model) >= r.Cap() {
					model = model[1:]
				}
				r.PushEvicting(v)
				model = append(model, v)
			}
			assert.Equal(t, len(model), r.Len())
		}
	})
}
