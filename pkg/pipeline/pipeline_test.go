package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-datalogger/pkg/clock"
	"github.com/illmade-knight/go-datalogger/pkg/ringbuffer"
	"github.com/illmade-knight/go-datalogger/pkg/status"
	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	valid = types.Readings{1200, 1190, 0, 0, 0, 0, 0, 0, 0, 0, 0, 7}
	null  = types.Readings{}
)

// --- Mocks ---

type push struct {
	partition string
	keys      []int64
	readings  []types.Readings
}

// mockStore records every push attempt, successful or not.
type mockStore struct {
	sync.Mutex
	attempts []push
	fail     bool
	failErr  error
	onPush   func()
}

func (m *mockStore) Push(_ context.Context, partitionKey string, batch *types.Batch) error {
	m.Lock()
	defer m.Unlock()
	p := push{partition: partitionKey, keys: batch.Keys()}
	for _, e := range batch.Entries() {
		p.readings = append(p.readings, e.Readings)
	}
	m.attempts = append(m.attempts, p)
	if m.onPush != nil {
		m.onPush()
	}
	if m.failErr != nil {
		return m.failErr
	}
	if m.fail {
		return errors.New("write rejected")
	}
	return nil
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) getAttempts() []push {
	m.Lock()
	defer m.Unlock()
	return append([]push(nil), m.attempts...)
}

type report struct {
	code  status.Code
	fatal bool
}

type mockReporter struct {
	sync.Mutex
	reports []report
	diags   []status.Diagnostics
}

func (m *mockReporter) Report(code status.Code, fatal bool) {
	m.Lock()
	defer m.Unlock()
	m.reports = append(m.reports, report{code: code, fatal: fatal})
}

func (m *mockReporter) Diagnostics(d status.Diagnostics) {
	m.Lock()
	defer m.Unlock()
	m.diags = append(m.diags, d)
}

func (m *mockReporter) getReports() []report {
	m.Lock()
	defer m.Unlock()
	return append([]report(nil), m.reports...)
}

// --- Helpers ---

func pushSample(t *testing.T, buf *ringbuffer.RingBuffer, ts int64, r types.Readings) {
	t.Helper()
	require.NoError(t, buf.Push(func(s *types.Sample) {
		s.Timestamp = ts
		s.Readings = r
	}))
}

func newTestUploader(t *testing.T, cfg UploaderConfig, buf *ringbuffer.RingBuffer, st *mockStore, rep *mockReporter) *Uploader {
	t.Helper()
	u, err := NewUploader(cfg, buf, st, clock.NewLocal(time.UTC), rep, zerolog.Nop())
	require.NoError(t, err)
	return u
}

func utcMillis(year int, month time.Month, day, hour, min, sec int) int64 {
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC).UnixMilli()
}
