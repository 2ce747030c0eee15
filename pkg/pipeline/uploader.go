package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-datalogger/pkg/clock"
	"github.com/illmade-knight/go-datalogger/pkg/ringbuffer"
	"github.com/illmade-knight/go-datalogger/pkg/status"
	"github.com/illmade-knight/go-datalogger/pkg/store"
	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
)

// ErrPushFailed wraps every store error returned by the Uploader. The pending
// batch is kept and retried.
var ErrPushFailed = errors.New("push to remote store failed")

// State is the Uploader state machine position.
type State int32

const (
	Accumulating State = iota
	Flushing
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "ACCUMULATING"
	case Flushing:
		return "FLUSHING"
	default:
		return "UNKNOWN"
	}
}

// UploaderConfig holds configuration for the Uploader.
type UploaderConfig struct {
	// BatchSize is the pending count that triggers a flush.
	BatchSize int
	// SendInterval is the longest a non-empty batch waits between flushes.
	SendInterval time.Duration
	// RetryInterval is the pause after a failed push. Zero retries on the
	// next tick.
	RetryInterval time.Duration
	// PushTimeout bounds a single store push.
	PushTimeout time.Duration
}

// Uploader drains the ring buffer into date-partitioned batches and pushes
// them to the remote store. Tick must be called from a single goroutine.
type Uploader struct {
	cfg      UploaderConfig
	buffer   *ringbuffer.RingBuffer
	store    store.Client
	clock    clock.Clock
	reporter status.Reporter
	logger   zerolog.Logger

	// Accumulation state. lastValid starts true so the first null after boot
	// is kept; it marks where data stops.
	pending      *types.Batch
	lastValid    bool
	partition    string
	nextRollover int64
	lastFlush    int64
	lastFailure  int64
	failed       bool
	started      bool
	state        atomic.Int32
}

// NewUploader creates an Uploader.
func NewUploader(
	cfg UploaderConfig,
	buffer *ringbuffer.RingBuffer,
	client store.Client,
	clk clock.Clock,
	reporter status.Reporter,
	logger zerolog.Logger,
) (*Uploader, error) {
	if buffer == nil {
		return nil, errors.New("ring buffer cannot be nil")
	}
	if client == nil {
		return nil, errors.New("store client cannot be nil")
	}
	if clk == nil {
		return nil, errors.New("clock cannot be nil")
	}
	if reporter == nil {
		return nil, errors.New("status reporter cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 10 * time.Second
	}
	return &Uploader{
		cfg:       cfg,
		buffer:    buffer,
		store:     client,
		clock:     clk,
		reporter:  reporter,
		pending:   types.NewBatch(cfg.BatchSize),
		lastValid: true,
		logger:    logger.With().Str("component", "Uploader").Logger(),
	}, nil
}

// State returns the current state machine position.
func (u *Uploader) State() State {
	return State(u.state.Load())
}

// Pending returns the number of entries waiting to be pushed.
func (u *Uploader) Pending() int {
	return u.pending.Len()
}

// PartitionKey returns the key the pending batch will be pushed under.
func (u *Uploader) PartitionKey() string {
	return u.partition
}

// Tick runs one invocation of the upload state machine: a date rollover
// flush, else a scheduled or size-triggered flush, else the accumulation of
// one sample. A failed push returns an error wrapping ErrPushFailed.
func (u *Uploader) Tick(ctx context.Context, now int64) error {
	defer u.reportDiagnostics()

	if !u.started {
		u.started = true
		u.lastFlush = now
	}

	if u.partition == "" {
		if head, err := u.buffer.Peek(); err == nil {
			u.setPartition(head.Timestamp)
		}
	} else if head, ok := u.buffer.PeekPartitionBoundary(u.nextRollover); ok {
		if u.pending.Len() == 0 {
			u.setPartition(head.Timestamp)
		} else {
			// The batch must never straddle two dates.
			if u.backingOff(now) {
				return nil
			}
			u.logger.Info().
				Str("partition", u.partition).
				Int("batch_size", u.pending.Len()).
				Msg("Date rollover, flushing batch")
			if err := u.flush(ctx, now); err != nil {
				return err
			}
			u.setPartition(head.Timestamp)
			return nil
		}
	}

	if u.pending.Len() > 0 && u.flushDue(now) {
		if !u.backingOff(now) {
			return u.flush(ctx, now)
		}
		if u.pending.Len() >= u.cfg.BatchSize {
			return nil
		}
	}

	sample, err := u.buffer.Pop()
	if err != nil {
		return nil
	}
	valid := sample.Readings.Valid()
	if valid || u.lastValid {
		u.pending.Put(sample.Timestamp, sample.Readings)
	}
	u.lastValid = valid

	if u.pending.Len() >= u.cfg.BatchSize && !u.backingOff(now) {
		return u.flush(ctx, now)
	}
	return nil
}

// Flush pushes whatever is pending, ignoring the retry interval. It is used
// on shutdown.
func (u *Uploader) Flush(ctx context.Context) error {
	if u.pending.Len() == 0 {
		return nil
	}
	return u.flush(ctx, u.clock.NowMillis())
}

// Drain consumes the ring buffer and flushes until both are empty or a push
// fails. It is used on shutdown.
func (u *Uploader) Drain(ctx context.Context) error {
	limit := 2*u.buffer.Cap() + 2
	for i := 0; i < limit && !u.buffer.IsEmpty(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.Tick(ctx, u.clock.NowMillis()); err != nil {
			return err
		}
	}
	return u.Flush(ctx)
}

func (u *Uploader) setPartition(timestamp int64) {
	previous := u.partition
	u.partition = u.clock.PartitionKey(timestamp)
	u.nextRollover = u.clock.StartOfNextDay(timestamp)
	if previous != u.partition {
		u.logger.Info().Str("partition", u.partition).Str("previous", previous).Msg("Partition key set")
	}
}

func (u *Uploader) flushDue(now int64) bool {
	return now-u.lastFlush > u.cfg.SendInterval.Milliseconds() || u.pending.Len() >= u.cfg.BatchSize
}

func (u *Uploader) backingOff(now int64) bool {
	return u.failed && now-u.lastFailure < u.cfg.RetryInterval.Milliseconds()
}

func (u *Uploader) flush(ctx context.Context, now int64) error {
	u.state.Store(int32(Flushing))
	defer u.state.Store(int32(Accumulating))

	pushCtx, cancel := context.WithTimeout(ctx, u.cfg.PushTimeout)
	defer cancel()

	size := u.pending.Len()
	if err := u.store.Push(pushCtx, u.partition, u.pending.Clone()); err != nil {
		u.failed = true
		u.lastFailure = now
		u.logger.Warn().Err(err).Str("partition", u.partition).Int("batch_size", size).Msg("Push failed, batch kept for retry")
		code := status.NoDatabaseConnection
		if errors.Is(err, store.ErrUnreachable) {
			code = status.NoInternet
		}
		u.reporter.Report(code, false)
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}

	u.pending.Reset()
	u.lastFlush = now
	u.failed = false
	u.logger.Debug().Str("partition", u.partition).Int("batch_size", size).Msg("Batch pushed")
	u.reporter.Report(status.None, false)
	return nil
}

func (u *Uploader) reportDiagnostics() {
	st := u.buffer.State()
	u.reporter.Diagnostics(status.Diagnostics{
		BufferSize:     st.Size,
		BufferCapacity: st.Capacity,
		ReadIndex:      st.ReadIndex,
		WriteIndex:     st.WriteIndex,
		Pending:        u.pending.Len(),
	})
}
