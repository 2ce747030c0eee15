package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadings_IsNull(t *testing.T) {
	var r Readings
	assert.True(t, r.IsNull())
	assert.False(t, r.Valid())

	r[SensorCount-1] = -3
	assert.False(t, r.IsNull(), "a negative reading still counts as data")
	assert.True(t, r.Valid())
}

func TestEntryKey(t *testing.T) {
	assert.Equal(t, "1718000000_007", EntryKey(1718000000007))
	assert.Equal(t, "1718000000_120", EntryKey(1718000000120))
	assert.Equal(t, "p03", ChannelKey(3))
}

func TestBatch_PutKeepsInsertionOrder(t *testing.T) {
	b := NewBatch(4)

	assert.True(t, b.Put(30, Readings{3}))
	assert.True(t, b.Put(10, Readings{1}))
	assert.True(t, b.Put(20, Readings{2}))

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int64{30, 10, 20}, b.Keys())
}

func TestBatch_PutReplacesExistingTimestamp(t *testing.T) {
	b := NewBatch(0)
	require.True(t, b.Put(10, Readings{1}))

	appended := b.Put(10, Readings{9})

	assert.False(t, appended)
	assert.Equal(t, 1, b.Len())
	got, ok := b.Get(10)
	require.True(t, ok)
	assert.Equal(t, 9, got[0])
}

func TestBatch_CloneIsIndependent(t *testing.T) {
	b := NewBatch(2)
	b.Put(1, Readings{1})

	c := b.Clone()
	b.Put(2, Readings{2})
	b.Reset()

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, []int64{1}, c.Keys())
	_, ok := b.Get(1)
	assert.False(t, ok, "reset must drop the index too")
}

func TestBatch_Documents(t *testing.T) {
	b := NewBatch(1)
	b.Put(1718000000250, Readings{5, 0, 7})

	docs := b.Documents()

	require.Len(t, docs, 1)
	doc, ok := docs["1718000000_250"]
	require.True(t, ok)
	assert.Equal(t, 5, doc["p00"])
	assert.Equal(t, 7, doc["p02"])
	assert.Equal(t, 0, doc["p11"])
	assert.Equal(t, int64(1718000000), doc["timestampUnix"])
	assert.Len(t, doc, SensorCount+1)
}

func TestBatch_NilSafeAccessors(t *testing.T) {
	var b *Batch
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Entries())
	_, ok := b.Get(1)
	assert.False(t, ok)
}
