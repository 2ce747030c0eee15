package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-datalogger/pkg/config"
	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// FirestoreWriter abstracts the two Firestore operations the store performs,
// so FirestoreStore can be tested without a Firestore backend.
type FirestoreWriter interface {
	// WriteDocuments sets every document (id -> fields) under collectionPath.
	WriteDocuments(ctx context.Context, collectionPath string, docs map[string]map[string]interface{}) error
	// AddDocument appends a document with a generated id.
	AddDocument(ctx context.Context, collectionPath string, data map[string]interface{}) error
}

// FirestoreStoreConfig holds the collection layout.
type FirestoreStoreConfig struct {
	// RootCollection holds one document per partition, each with a "samples"
	// sub-collection: <root>/<partitionKey>/samples/<unix>_<ms>.
	RootCollection string
	// BootCollection receives one document per device boot.
	BootCollection string
}

// FirestoreStore writes batches to Cloud Firestore, one document per sample.
type FirestoreStore struct {
	writer FirestoreWriter
	config FirestoreStoreConfig
	closer func() error
	logger zerolog.Logger
}

// NewFirestoreStore creates a store on top of an existing writer.
func NewFirestoreStore(writer FirestoreWriter, cfg FirestoreStoreConfig, logger zerolog.Logger) (*FirestoreStore, error) {
	if writer == nil {
		return nil, errors.New("firestore writer cannot be nil")
	}
	if cfg.RootCollection == "" {
		return nil, errors.New("firestore root collection is required")
	}
	if cfg.BootCollection == "" {
		cfg.BootCollection = "bootLog"
	}
	return &FirestoreStore{
		writer: writer,
		config: cfg,
		logger: logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// NewFirestoreStoreFromConfig creates the Firestore client and the store. The
// store closes the client.
func NewFirestoreStoreFromConfig(ctx context.Context, cfg config.FirestoreConfig, logger zerolog.Logger) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for Firestore client")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for Firestore client")
	}

	var client *firestore.Client
	var err error
	if cfg.DatabaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.DatabaseID, opts...)
	} else {
		client, err = firestore.NewClient(ctx, cfg.ProjectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}

	s, err := NewFirestoreStore(NewFirestoreClientAdapter(client), FirestoreStoreConfig{
		RootCollection: cfg.RootCollection,
		BootCollection: cfg.BootCollection,
	}, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.closer = client.Close
	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.RootCollection).Msg("Firestore store initialised")
	return s, nil
}

// CollectionPath returns the sample collection of a partition.
func (s *FirestoreStore) CollectionPath(partitionKey string) string {
	return path.Join(s.config.RootCollection, partitionKey, "samples")
}

func (s *FirestoreStore) Push(ctx context.Context, partitionKey string, batch *types.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if partitionKey == "" {
		return errors.New("partition key is required")
	}
	collection := s.CollectionPath(partitionKey)
	if err := s.writer.WriteDocuments(ctx, collection, batch.Documents()); err != nil {
		s.logger.Error().Err(err).Str("collection", collection).Int("batch_size", batch.Len()).Msg("Failed to write batch to Firestore")
		return pushError("firestore", collection, err)
	}
	s.logger.Debug().Str("collection", collection).Int("batch_size", batch.Len()).Msg("Batch written to Firestore")
	return nil
}

func (s *FirestoreStore) LogBoot(ctx context.Context, timestampMillis int64) error {
	data := map[string]interface{}{
		"timestampUnix": timestampMillis / 1000,
		"bootedAt":      time.UnixMilli(timestampMillis).UTC(),
	}
	if err := s.writer.AddDocument(ctx, s.config.BootCollection, data); err != nil {
		return fmt.Errorf("firestore boot log: %w", err)
	}
	s.logger.Info().Int64("boot_timestamp", timestampMillis).Msg("Boot recorded in Firestore")
	return nil
}

func (s *FirestoreStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// --- Adapter wrapping the concrete Firestore client ---

type firestoreClientAdapter struct {
	client *firestore.Client
}

// NewFirestoreClientAdapter makes a *firestore.Client conform to FirestoreWriter.
func NewFirestoreClientAdapter(client *firestore.Client) FirestoreWriter {
	return &firestoreClientAdapter{client: client}
}

func (a *firestoreClientAdapter) WriteDocuments(ctx context.Context, collectionPath string, docs map[string]map[string]interface{}) error {
	coll := a.client.Collection(collectionPath)
	if coll == nil {
		return fmt.Errorf("invalid collection path %q", collectionPath)
	}

	bw := a.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for id, fields := range docs {
		job, err := bw.Set(coll.Doc(id), fields)
		if err != nil {
			bw.End()
			return fmt.Errorf("enqueue %s: %w", id, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *firestoreClientAdapter) AddDocument(ctx context.Context, collectionPath string, data map[string]interface{}) error {
	coll := a.client.Collection(collectionPath)
	if coll == nil {
		return fmt.Errorf("invalid collection path %q", collectionPath)
	}
	_, _, err := coll.Add(ctx, data)
	return err
}
