package ringbuffer

import (
	"sync"
	"testing"

	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushSample(t *testing.T, r *RingBuffer, ts int64, first int) {
	t.Helper()
	err := r.Push(func(slot *types.Sample) {
		slot.Timestamp = ts
		slot.Readings = types.Readings{first}
	})
	require.NoError(t, err)
}

func TestNew_DefaultCapacity(t *testing.T) {
	r := New(0)
	assert.Equal(t, DefaultCapacity, r.Cap())
	assert.True(t, r.IsEmpty())
	assert.False(t, r.IsFull())

	st := r.State()
	assert.Equal(t, State{Size: 0, Capacity: DefaultCapacity}, st)
}

func TestRingBuffer_FIFOOrder(t *testing.T) {
	const n = 8
	r := New(n)

	for i := 0; i < n; i++ {
		pushSample(t, r, int64(i*10), i+1)
	}
	require.True(t, r.IsFull())

	for i := 0; i < n; i++ {
		s, err := r.Pop()
		require.NoError(t, err)
		assert.Equal(t, int64(i*10), s.Timestamp)
		assert.Equal(t, i+1, s.Readings[0])
	}
	assert.True(t, r.IsEmpty())
}

func TestRingBuffer_PushWhenFullLeavesStateUnchanged(t *testing.T) {
	r := New(3)
	for i := 0; i < 3; i++ {
		pushSample(t, r, int64(i), 1)
	}
	before := r.State()

	called := false
	err := r.Push(func(slot *types.Sample) { called = true })

	assert.ErrorIs(t, err, ErrBufferFull)
	assert.False(t, called, "fill must not run on a full buffer")
	assert.Equal(t, before, r.State())
}

func TestRingBuffer_PopWhenEmpty(t *testing.T) {
	r := New(2)

	_, err := r.Pop()
	assert.ErrorIs(t, err, ErrBufferEmpty)
	_, err = r.Peek()
	assert.ErrorIs(t, err, ErrBufferEmpty)
	assert.Equal(t, State{Capacity: 2}, r.State())
}

func TestRingBuffer_Wraparound(t *testing.T) {
	const capacity = 4
	r := New(capacity)

	var want []int64
	var got []int64
	ts := int64(0)
	// capacity + 3 writes, popping whenever two samples are queued.
	for i := 0; i < capacity+3; i++ {
		pushSample(t, r, ts, 1)
		want = append(want, ts)
		ts++
		if r.Len() == 2 {
			s, err := r.Pop()
			require.NoError(t, err)
			got = append(got, s.Timestamp)
		}
		st := r.State()
		assert.GreaterOrEqual(t, st.Size, 0)
		assert.LessOrEqual(t, st.Size, capacity)
		assert.Less(t, st.WriteIndex, capacity)
		assert.Less(t, st.ReadIndex, capacity)
	}
	for !r.IsEmpty() {
		s, err := r.Pop()
		require.NoError(t, err)
		got = append(got, s.Timestamp)
	}

	assert.Equal(t, want, got)
	st := r.State()
	assert.Equal(t, (capacity+3)%capacity, st.WriteIndex)
	assert.Equal(t, st.WriteIndex, st.ReadIndex)
}

func TestRingBuffer_CursorArithmetic(t *testing.T) {
	r := New(5)
	for i := 0; i < 3; i++ {
		pushSample(t, r, int64(i), 1)
	}
	assert.Equal(t, State{Size: 3, Capacity: 5, ReadIndex: 0, WriteIndex: 3}, r.State())

	for i := 0; i < 2; i++ {
		_, err := r.Pop()
		require.NoError(t, err)
	}
	assert.Equal(t, State{Size: 1, Capacity: 5, ReadIndex: 2, WriteIndex: 3}, r.State())
}

func TestRingBuffer_PeekPartitionBoundary(t *testing.T) {
	r := New(4)

	_, ok := r.PeekPartitionBoundary(100)
	assert.False(t, ok, "empty buffer has no boundary")

	pushSample(t, r, 99, 1)
	pushSample(t, r, 100, 2)

	s, ok := r.PeekPartitionBoundary(100)
	assert.False(t, ok)
	assert.Equal(t, int64(99), s.Timestamp)
	assert.Equal(t, 2, r.Len(), "peeking must not consume")

	_, err := r.Pop()
	require.NoError(t, err)

	s, ok = r.PeekPartitionBoundary(100)
	assert.True(t, ok, "a sample exactly on the rollover belongs to the new partition")
	assert.Equal(t, 2, s.Readings[0])
}

func TestRingBuffer_Dump(t *testing.T) {
	r := New(4)
	pushSample(t, r, 1, 1)
	pushSample(t, r, 2, 2)

	all := r.Dump(-5, 100)
	require.Len(t, all, 4)
	assert.Equal(t, int64(1), all[0].Timestamp)
	assert.Equal(t, int64(2), all[1].Timestamp)
	assert.True(t, all[2].Readings.IsNull(), "unused slots are zero-initialised")

	assert.Nil(t, r.Dump(3, 2))
}

func TestRingBuffer_ConcurrentProducerConsumer(t *testing.T) {
	const total = 5000
	r := New(16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			err := r.Push(func(slot *types.Sample) {
				slot.Timestamp = int64(i)
				slot.Readings = types.Readings{i}
			})
			if err == nil {
				i++
			}
		}
	}()

	next := int64(0)
	for next < total {
		s, err := r.Pop()
		if err != nil {
			continue
		}
		require.Equal(t, next, s.Timestamp)
		require.Equal(t, int(next), s.Readings[0], "slot must never be observed half-written")
		next++
	}
	wg.Wait()
	assert.True(t, r.IsEmpty())
}
