package store

import (
	"context"

	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
)

// LogStore is the bench variant of the remote store: it prints every entry
// through the logger instead of uploading, and never fails.
type LogStore struct {
	logger zerolog.Logger
}

// NewLogStore creates a LogStore.
func NewLogStore(logger zerolog.Logger) *LogStore {
	return &LogStore{logger: logger.With().Str("component", "LogStore").Logger()}
}

func (s *LogStore) Push(_ context.Context, partitionKey string, batch *types.Batch) error {
	for _, e := range batch.Entries() {
		s.logger.Info().
			Str("partition", partitionKey).
			Str("key", types.EntryKey(e.Timestamp)).
			Ints("readings", e.Readings[:]).
			Msg("sample")
	}
	s.logger.Debug().Str("partition", partitionKey).Int("batch_size", batch.Len()).Msg("Batch logged")
	return nil
}

func (s *LogStore) LogBoot(_ context.Context, timestampMillis int64) error {
	s.logger.Info().Int64("boot_timestamp", timestampMillis).Msg("Boot recorded")
	return nil
}

func (s *LogStore) Close() error {
	return nil
}
