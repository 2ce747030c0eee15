package clock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
	"github.com/rs/zerolog"
)

// ErrNoNTPData is returned when no usable time could be obtained from the
// configured NTP server.
var ErrNoNTPData = errors.New("no NTP time available")

// NTPConfig holds configuration for the NTP-corrected clock.
type NTPConfig struct {
	Server  string
	Timeout time.Duration
}

// queryFunc matches ntp.QueryWithOptions so tests can interpose on it.
type queryFunc func(host string, opt ntp.QueryOptions) (*ntp.Response, error)

// NTP is a Local clock whose NowMillis is corrected by the offset measured
// against an NTP server. Until the first successful Sync it behaves exactly
// like the host clock.
type NTP struct {
	*Local
	cfg    NTPConfig
	query  queryFunc
	offset atomic.Int64 // nanoseconds
	synced atomic.Bool
	logger zerolog.Logger
}

// NewNTP creates an NTP-corrected clock doing calendar arithmetic in loc.
func NewNTP(loc *time.Location, cfg NTPConfig, logger zerolog.Logger) (*NTP, error) {
	if cfg.Server == "" {
		return nil, errors.New("ntp server is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &NTP{
		Local:  NewLocal(loc),
		cfg:    cfg,
		query:  ntp.QueryWithOptions,
		logger: logger.With().Str("component", "NTPClock").Str("server", cfg.Server).Logger(),
	}, nil
}

// Sync queries the server once and stores the measured clock offset.
func (c *NTP) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := c.query(c.cfg.Server, ntp.QueryOptions{Timeout: c.cfg.Timeout})
	if err != nil {
		c.logger.Warn().Err(err).Msg("NTP query failed")
		return fmt.Errorf("%w: %v", ErrNoNTPData, err)
	}
	if err := resp.Validate(); err != nil {
		c.logger.Warn().Err(err).Msg("NTP response rejected")
		return fmt.Errorf("%w: %v", ErrNoNTPData, err)
	}
	c.offset.Store(int64(resp.ClockOffset))
	c.synced.Store(true)
	c.logger.Info().
		Dur("offset", resp.ClockOffset).
		Dur("rtt", resp.RTT).
		Str("local_time", c.Now().Format(time.RFC3339)).
		Msg("Clock synchronised with NTP server")
	return nil
}

// Synced reports whether at least one Sync succeeded.
func (c *NTP) Synced() bool {
	return c.synced.Load()
}

// Offset returns the last measured offset.
func (c *NTP) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}

// Now returns the corrected time in the clock's location.
func (c *NTP) Now() time.Time {
	return c.Local.now().Add(c.Offset()).In(c.loc)
}

func (c *NTP) NowMillis() int64 {
	return c.Now().UnixMilli()
}

// Run re-synchronises every interval until ctx is cancelled. Failures are
// logged and the previous offset is kept.
func (c *NTP) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = c.Sync(ctx)
		}
	}
}
