package store

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"
)

// --- Mock GCS Client Components ---

// mockGCSWriter writes to an in-memory buffer.
type mockGCSWriter struct {
	buf         bytes.Buffer
	contentType string
	closed      bool
	closeErr    error
	writeErr    error
}

func (m *mockGCSWriter) Write(p []byte) (n int, err error) {
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return m.closeErr
}

type mockGCSObjectHandle struct {
	writer   *mockGCSWriter
	closeErr error
	writeErr error
}

func (m *mockGCSObjectHandle) NewWriter(_ context.Context, contentType string) GCSWriter {
	if m.writer == nil {
		m.writer = &mockGCSWriter{contentType: contentType, closeErr: m.closeErr, writeErr: m.writeErr}
	}
	return m.writer
}

// mockGCSBucketHandle stores created objects in a map.
type mockGCSBucketHandle struct {
	sync.Mutex
	objects  map[string]*mockGCSObjectHandle
	closeErr error
	writeErr error
}

func (m *mockGCSBucketHandle) Object(name string) GCSObjectHandle {
	m.Lock()
	defer m.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]*mockGCSObjectHandle)
	}
	if _, ok := m.objects[name]; !ok {
		m.objects[name] = &mockGCSObjectHandle{closeErr: m.closeErr, writeErr: m.writeErr}
	}
	return m.objects[name]
}

type mockGCSClient struct {
	bucket     *mockGCSBucketHandle
	bucketName string
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{bucket: &mockGCSBucketHandle{}}
}

func (m *mockGCSClient) Bucket(name string) GCSBucketHandle {
	m.bucketName = name
	return m.bucket
}

// --- Mock Firestore writer ---

type firestoreWrite struct {
	collection string
	docs       map[string]map[string]interface{}
}

type mockFirestoreWriter struct {
	mu       sync.Mutex
	writes   []firestoreWrite
	added    []firestoreWrite
	writeErr error
	addErr   error
}

func (m *mockFirestoreWriter) WriteDocuments(_ context.Context, collectionPath string, docs map[string]map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, firestoreWrite{collection: collectionPath, docs: docs})
	return nil
}

func (m *mockFirestoreWriter) AddDocument(_ context.Context, collectionPath string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, firestoreWrite{
		collection: collectionPath,
		docs:       map[string]map[string]interface{}{"": data},
	})
	return nil
}

// --- Mock BigQuery inserter ---

type mockRowInserter struct {
	mock.Mock
}

func (m *mockRowInserter) Put(ctx context.Context, src interface{}) error {
	args := m.Called(ctx, src)
	return args.Error(0)
}
