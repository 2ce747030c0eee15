package types

// Entry is a single timestamp -> readings pair inside a Batch.
type Entry struct {
	Timestamp int64    `json:"timestamp"`
	Readings  Readings `json:"readings"`
}

// Batch is an ordered mapping from sample timestamp to readings. Entries keep
// insertion order; putting an already-present timestamp replaces its readings
// in place rather than growing the batch.
type Batch struct {
	entries []Entry
	index   map[int64]int
}

// NewBatch returns an empty batch with room for capacity entries.
func NewBatch(capacity int) *Batch {
	if capacity < 0 {
		capacity = 0
	}
	return &Batch{
		entries: make([]Entry, 0, capacity),
		index:   make(map[int64]int, capacity),
	}
}

// Put adds readings under timestamp. It returns true when a new entry was
// appended and false when an existing entry was overwritten.
func (b *Batch) Put(timestamp int64, readings Readings) bool {
	if b.index == nil {
		b.index = make(map[int64]int)
	}
	if i, ok := b.index[timestamp]; ok {
		b.entries[i].Readings = readings
		return false
	}
	b.index[timestamp] = len(b.entries)
	b.entries = append(b.entries, Entry{Timestamp: timestamp, Readings: readings})
	return true
}

// Len returns the number of entries.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Entries returns the entries in insertion order. The slice is shared with the
// batch and must not be modified.
func (b *Batch) Entries() []Entry {
	if b == nil {
		return nil
	}
	return b.entries
}

// Get returns the readings stored for timestamp.
func (b *Batch) Get(timestamp int64) (Readings, bool) {
	if b == nil {
		return Readings{}, false
	}
	i, ok := b.index[timestamp]
	if !ok {
		return Readings{}, false
	}
	return b.entries[i].Readings, true
}

// Keys returns the timestamps in insertion order.
func (b *Batch) Keys() []int64 {
	keys := make([]int64, 0, b.Len())
	for _, e := range b.Entries() {
		keys = append(keys, e.Timestamp)
	}
	return keys
}

// Clone returns a deep copy that shares no storage with b.
func (b *Batch) Clone() *Batch {
	c := NewBatch(b.Len())
	for _, e := range b.Entries() {
		c.Put(e.Timestamp, e.Readings)
	}
	return c
}

// Reset empties the batch, keeping its allocated capacity.
func (b *Batch) Reset() {
	b.entries = b.entries[:0]
	for k := range b.index {
		delete(b.index, k)
	}
}

// Documents renders the batch in the key/value layout shared by the document
// stores: one document per entry keyed by EntryKey, with one field per channel
// ("p00".."p11") plus "timestampUnix" in seconds.
func (b *Batch) Documents() map[string]map[string]interface{} {
	docs := make(map[string]map[string]interface{}, b.Len())
	for _, e := range b.Entries() {
		docs[EntryKey(e.Timestamp)] = e.Document()
	}
	return docs
}

// Document renders one entry's fields.
func (e Entry) Document() map[string]interface{} {
	doc := make(map[string]interface{}, SensorCount+1)
	for i, v := range e.Readings {
		doc[ChannelKey(i)] = v
	}
	doc["timestampUnix"] = e.Timestamp / 1000
	return doc
}
