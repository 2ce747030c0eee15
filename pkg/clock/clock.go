package clock

import (
	"fmt"
	"time"
)

// PartitionLayout is the date layout of partition keys (YYYY-MM-DD).
const PartitionLayout = "2006-01-02"

// Clock supplies wall-clock time and the calendar arithmetic used to partition
// uploads by date, so the buffer and uploader never embed calendar logic.
type Clock interface {
	// NowMillis returns the current time in milliseconds since the epoch.
	NowMillis() int64
	// PartitionKey returns the local date of ms, e.g. "2024-06-10".
	PartitionKey(ms int64) string
	// StartOfNextDay returns local midnight of the day after ms, in ms.
	StartOfNextDay(ms int64) int64
}

// Local is a Clock backed by the host clock, doing calendar arithmetic in a
// fixed location.
type Local struct {
	loc *time.Location
	now func() time.Time
}

// NewLocal returns a Local clock for loc. A nil loc means time.Local.
func NewLocal(loc *time.Location) *Local {
	if loc == nil {
		loc = time.Local
	}
	return &Local{loc: loc, now: time.Now}
}

// LoadLocation resolves an IANA timezone name. An empty name is time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Location returns the location used for calendar arithmetic.
func (c *Local) Location() *time.Location {
	return c.loc
}

func (c *Local) NowMillis() int64 {
	return c.now().UnixMilli()
}

func (c *Local) PartitionKey(ms int64) string {
	return time.UnixMilli(ms).In(c.loc).Format(PartitionLayout)
}

func (c *Local) StartOfNextDay(ms int64) int64 {
	t := time.UnixMilli(ms).In(c.loc)
	// time.Date normalises day overflow and resolves DST transitions.
	next := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, c.loc)
	return next.UnixMilli()
}
