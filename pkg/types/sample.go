package types

import (
	"fmt"
	"time"
)

// SensorCount is the number of pressure channels sampled on every cycle.
const SensorCount = 12

// Readings is one reading per configured sensor channel, in channel order.
type Readings [SensorCount]int

// IsNull reports whether every channel read zero.
func (r Readings) IsNull() bool {
	for _, v := range r {
		if v != 0 {
			return false
		}
	}
	return true
}

// Valid is the negation of IsNull: at least one channel carries data.
func (r Readings) Valid() bool {
	return !r.IsNull()
}

// Sample is one timestamped vector of sensor readings. The zero value is a
// freshly allocated, null slot.
type Sample struct {
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64
	Readings  Readings
}

// Time returns the sample timestamp as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// EntryKey renders a timestamp as "<unix seconds>_<millis>", the document key
// used by the remote stores. Dots are not allowed in some backends' keys, hence
// the underscore.
func EntryKey(timestampMillis int64) string {
	return fmt.Sprintf("%d_%03d", timestampMillis/1000, timestampMillis%1000)
}

// ChannelKey names a sensor channel, e.g. "p00".
func ChannelKey(channel int) string {
	return fmt.Sprintf("p%02d", channel)
}
