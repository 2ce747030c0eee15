package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/illmade-knight/go-datalogger/pkg/config"
	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ====================================================================================
// This file defines the remote store contract and the constructor that picks
// a variant from configuration.
// ====================================================================================

// ErrUnreachable marks push errors caused by the backend not being reachable
// at all, as opposed to the backend rejecting the write.
var ErrUnreachable = errors.New("store unreachable")

// Client pushes batches of samples to the remote time-series store.
//
// Every entry of one Push is written under the single partitionKey given. An
// empty batch is a successful no-op. Timeouts are governed by ctx.
type Client interface {
	Push(ctx context.Context, partitionKey string, batch *types.Batch) error
	// Close releases any resources the client created.
	Close() error
}

// BootLogger is implemented by stores that can record a device boot, which is
// useful to analyse crashes and restarts after the fact.
type BootLogger interface {
	LogBoot(ctx context.Context, timestampMillis int64) error
}

// New builds the store selected by cfg.Kind. The returned client owns any
// underlying SDK client it created.
func New(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (Client, error) {
	switch cfg.Kind {
	case config.StoreLog, "":
		return NewLogStore(logger), nil
	case config.StoreFirestore:
		return NewFirestoreStoreFromConfig(ctx, cfg.Firestore, logger)
	case config.StoreGCS:
		return NewGCSStoreFromConfig(ctx, cfg.GCS, logger)
	case config.StoreBigQuery:
		return NewBigQueryStoreFromConfig(ctx, cfg.BigQuery, logger)
	case config.StoreRedis:
		return NewRedisStoreFromConfig(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

// unreachable reports whether err, or any error joined into it, is a transport
// failure (network error or gRPC Unavailable/DeadlineExceeded) rather than a
// rejected write.
func unreachable(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if unreachable(e) {
				return true
			}
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// pushError wraps a backend error, marking transport failures ErrUnreachable.
func pushError(backend, target string, err error) error {
	if unreachable(err) {
		return fmt.Errorf("%s write to %s: %w: %w", backend, target, ErrUnreachable, err)
	}
	return fmt.Errorf("%s write to %s: %w", backend, target, err)
}
