package store

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-datalogger/pkg/config"
	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// ====================================================================================
// Google Cloud Storage variant: one gzip-compressed JSON-lines object per push,
// stored under <prefix>/<partitionKey>/<uuid>.jsonl.gz.
// ====================================================================================

// --- GCS Client Abstraction Interfaces ---

// GCSClient abstracts the top-level GCS client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a GCS bucket.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a GCS object.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context, contentType string) GCSWriter
}

// GCSWriter abstracts a GCS object writer.
type GCSWriter interface {
	io.WriteCloser
}

// GCSStoreConfig holds configuration specific to the GCS store.
type GCSStoreConfig struct {
	BucketName   string
	ObjectPrefix string
}

// gcsRecord is one line of an uploaded object.
type gcsRecord struct {
	Key       string         `json:"key"`
	Timestamp int64          `json:"timestamp"`
	Partition string         `json:"partition"`
	Readings  types.Readings `json:"readings"`
}

// GCSStore implements Client on Google Cloud Storage.
type GCSStore struct {
	client GCSClient
	config GCSStoreConfig
	closer func() error
	newID  func() string
	logger zerolog.Logger
}

// NewGCSStore creates a store on an existing (possibly mocked) client.
func NewGCSStore(client GCSClient, cfg GCSStoreConfig, logger zerolog.Logger) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSStore{
		client: client,
		config: cfg,
		newID:  func() string { return uuid.New().String() },
		logger: logger.With().Str("component", "GCSStore").Str("bucket", cfg.BucketName).Logger(),
	}, nil
}

// NewGCSStoreFromConfig creates the storage client and the store. The store
// closes the client.
func NewGCSStoreFromConfig(ctx context.Context, cfg config.GCSConfig, logger zerolog.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	s, err := NewGCSStore(NewGCSClientAdapter(client), GCSStoreConfig{
		BucketName:   cfg.BucketName,
		ObjectPrefix: cfg.ObjectPrefix,
	}, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.closer = client.Close
	return s, nil
}

// ObjectName returns the object name a push with id is written to.
func (s *GCSStore) ObjectName(partitionKey, id string) string {
	return path.Join(s.config.ObjectPrefix, partitionKey, fmt.Sprintf("%s.jsonl.gz", id))
}

func (s *GCSStore) Push(ctx context.Context, partitionKey string, batch *types.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if partitionKey == "" {
		return errors.New("partition key is required")
	}
	objectName := s.ObjectName(partitionKey, s.newID())

	gcsWriter := s.client.Bucket(s.config.BucketName).Object(objectName).NewWriter(ctx, "application/x-ndjson")
	pr, pw := io.Pipe()
	// Unblocks the encoder when the copy stops early.
	defer pr.Close()

	go func() {
		var err error
		defer func() {
			pw.CloseWithError(err)
		}()

		gz := gzip.NewWriter(pw)
		enc := json.NewEncoder(gz)
		for _, e := range batch.Entries() {
			rec := gcsRecord{
				Key:       types.EntryKey(e.Timestamp),
				Timestamp: e.Timestamp,
				Partition: partitionKey,
				Readings:  e.Readings,
			}
			if err = enc.Encode(rec); err != nil {
				err = fmt.Errorf("json encoding failed for %s: %w", objectName, err)
				return
			}
		}
		if err = gz.Close(); err != nil {
			err = fmt.Errorf("gzip writer close failed for %s: %w", objectName, err)
		}
	}()

	bytesWritten, pipeReadErr := io.Copy(gcsWriter, pr)
	closeErr := gcsWriter.Close()

	if pipeReadErr != nil {
		return pushError("gcs", objectName, pipeReadErr)
	}
	if closeErr != nil {
		return pushError("gcs", objectName, closeErr)
	}

	s.logger.Debug().
		Str("object_name", objectName).
		Int("batch_size", batch.Len()).
		Int64("bytes_written", bytesWritten).
		Msg("Batch uploaded to GCS")
	return nil
}

func (s *GCSStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// --- Adapters wrapping the concrete Google Cloud Storage client ---

type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter makes a *storage.Client conform to GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectHandleAdapter) NewWriter(ctx context.Context, contentType string) GCSWriter {
	w := a.handle.NewWriter(ctx)
	w.ContentType = contentType
	return w
}
