package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/illmade-knight/go-datalogger/pkg/config"
	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
)

// RedisStore keeps one hash per partition, <prefix>:<partitionKey>, with a
// field per sample key holding the JSON readings. Boots are appended to the
// list <prefix>:boot.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a store on an existing client. The store closes it.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger zerolog.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if prefix == "" {
		return nil, errors.New("redis key prefix is required")
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "RedisStore").Logger(),
	}, nil
}

// NewRedisStoreFromConfig connects to Redis and checks the connection.
func NewRedisStoreFromConfig(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Connected to Redis")

	s, err := NewRedisStore(rdb, cfg.KeyPrefix, cfg.TTL, logger)
	if err != nil {
		rdb.Close()
		return nil, err
	}
	return s, nil
}

// PartitionKey returns the hash holding a partition.
func (s *RedisStore) PartitionKey(partitionKey string) string {
	return s.prefix + ":" + partitionKey
}

func (s *RedisStore) Push(ctx context.Context, partitionKey string, batch *types.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if partitionKey == "" {
		return errors.New("partition key is required")
	}
	hash := s.PartitionKey(partitionKey)

	fields := make([]interface{}, 0, batch.Len()*2)
	for _, e := range batch.Entries() {
		data, err := json.Marshal(e.Readings)
		if err != nil {
			return fmt.Errorf("marshal readings for %s: %w", types.EntryKey(e.Timestamp), err)
		}
		fields = append(fields, types.EntryKey(e.Timestamp), data)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, hash, fields...)
	if s.ttl > 0 {
		pipe.Expire(ctx, hash, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error().Err(err).Str("hash", hash).Int("batch_size", batch.Len()).Msg("Failed to write batch to Redis")
		return pushError("redis", hash, err)
	}

	s.logger.Debug().Str("hash", hash).Int("batch_size", batch.Len()).Msg("Batch written to Redis")
	return nil
}

func (s *RedisStore) LogBoot(ctx context.Context, timestampMillis int64) error {
	if err := s.client.RPush(ctx, s.prefix+":boot", timestampMillis).Err(); err != nil {
		return fmt.Errorf("redis boot log: %w", err)
	}
	s.logger.Info().Int64("boot_timestamp", timestampMillis).Msg("Boot recorded in Redis")
	return nil
}

func (s *RedisStore) Close() error {
	s.logger.Info().Msg("Closing Redis client connection...")
	return s.client.Close()
}
