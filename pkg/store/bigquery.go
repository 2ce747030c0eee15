package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-datalogger/pkg/config"
	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BigQueryRow is the table schema of the BigQuery store. The table is
// partitioned by day on Timestamp.
type BigQueryRow struct {
	Partition string    `bigquery:"partition"`
	Key       string    `bigquery:"key"`
	Timestamp time.Time `bigquery:"timestamp"`
	P00       int64     `bigquery:"p00"`
	P01       int64     `bigquery:"p01"`
	P02       int64     `bigquery:"p02"`
	P03       int64     `bigquery:"p03"`
	P04       int64     `bigquery:"p04"`
	P05       int64     `bigquery:"p05"`
	P06       int64     `bigquery:"p06"`
	P07       int64     `bigquery:"p07"`
	P08       int64     `bigquery:"p08"`
	P09       int64     `bigquery:"p09"`
	P10       int64     `bigquery:"p10"`
	P11       int64     `bigquery:"p11"`
}

// NewBigQueryRow converts one batch entry.
func NewBigQueryRow(partitionKey string, e types.Entry) *BigQueryRow {
	r := e.Readings
	return &BigQueryRow{
		Partition: partitionKey,
		Key:       types.EntryKey(e.Timestamp),
		Timestamp: time.UnixMilli(e.Timestamp).UTC(),
		P00:       int64(r[0]),
		P01:       int64(r[1]),
		P02:       int64(r[2]),
		P03:       int64(r[3]),
		P04:       int64(r[4]),
		P05:       int64(r[5]),
		P06:       int64(r[6]),
		P07:       int64(r[7]),
		P08:       int64(r[8]),
		P09:       int64(r[9]),
		P10:       int64(r[10]),
		P11:       int64(r[11]),
	}
}

// RowInserter is satisfied by *bigquery.Inserter.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQueryStore streams batches into a BigQuery table.
type BigQueryStore struct {
	inserter RowInserter
	closer   func() error
	logger   zerolog.Logger
}

// NewBigQueryStore creates a store on an existing inserter.
func NewBigQueryStore(inserter RowInserter, logger zerolog.Logger) (*BigQueryStore, error) {
	if inserter == nil {
		return nil, errors.New("bigquery inserter cannot be nil")
	}
	return &BigQueryStore{
		inserter: inserter,
		logger:   logger.With().Str("component", "BigQueryStore").Logger(),
	}, nil
}

// NewBigQueryStoreFromConfig creates the client, makes sure the table exists
// and returns a store that owns the client.
func NewBigQueryStoreFromConfig(ctx context.Context, cfg config.BigQueryConfig, logger zerolog.Logger) (*BigQueryStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client")
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}

	table, err := ensureTable(ctx, client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	s, err := NewBigQueryStore(table.Inserter(), logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.closer = client.Close
	return s, nil
}

func ensureTable(ctx context.Context, client *bigquery.Client, cfg config.BigQueryConfig, logger zerolog.Logger) (*bigquery.Table, error) {
	logger = logger.With().Str("dataset_id", cfg.DatasetID).Str("table_id", cfg.TableID).Logger()
	table := client.Dataset(cfg.DatasetID).Table(cfg.TableID)

	_, err := table.Metadata(ctx)
	if err == nil {
		logger.Info().Msg("Using existing BigQuery table")
		return table, nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
	}

	logger.Warn().Msg("BigQuery table not found, creating it")
	schema, err := bigquery.InferSchema(BigQueryRow{})
	if err != nil {
		return nil, fmt.Errorf("failed to infer row schema: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "timestamp",
		},
	}
	if err := table.Create(ctx, meta); err != nil {
		return nil, fmt.Errorf("failed to create BigQuery table %s.%s: %w", cfg.DatasetID, cfg.TableID, err)
	}
	return table, nil
}

func (s *BigQueryStore) Push(ctx context.Context, partitionKey string, batch *types.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	entries := batch.Entries()
	rows := make([]*BigQueryRow, len(entries))
	for i, e := range entries {
		rows[i] = NewBigQueryRow(partitionKey, e)
	}

	if err := s.inserter.Put(ctx, rows); err != nil {
		s.logger.Error().Err(err).Int("batch_size", len(rows)).Msg("Failed to insert rows into BigQuery")
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				s.logger.Error().Int("row_index", rowErr.RowIndex).Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return pushError("bigquery", "table", err)
	}

	s.logger.Debug().Str("partition", partitionKey).Int("batch_size", len(rows)).Msg("Batch inserted into BigQuery")
	return nil
}

func (s *BigQueryStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
