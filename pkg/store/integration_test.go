//go:build integration

package store

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/firestore"
	"github.com/go-redis/redis/v8"
	"github.com/illmade-knight/go-datalogger/pkg/config"
	"github.com/illmade-knight/go-datalogger/pkg/helpers/emulators"
	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

const testProjectID = "datalogger-integration"

func TestGCSStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const bucket = "datalogger-test-bucket"
	conn := emulators.SetupGCSEmulator(t, ctx, emulators.GetDefaultGCSConfig(testProjectID, bucket))
	client := emulators.GetStorageClient(t, ctx, conn.ClientOptions)

	s, err := NewGCSStore(NewGCSClientAdapter(client), GCSStoreConfig{BucketName: bucket, ObjectPrefix: "readings"}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Push(ctx, "2024-06-15", testBatch()))

	it := client.Bucket(bucket).Objects(ctx, nil)
	attrs, err := it.Next()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(attrs.Name, "readings/2024-06-15/"), attrs.Name)
	_, err = it.Next()
	assert.Equal(t, iterator.Done, err, "exactly one object per push")

	r, err := client.Bucket(bucket).Object(attrs.Name).ReadCompressed(true).NewReader(ctx)
	require.NoError(t, err)
	defer r.Close()
	gz, err := gzip.NewReader(r)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)
	var rec gcsRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "1718409600_123", rec.Key)
}

func TestFirestoreStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(testProjectID))
	client, err := firestore.NewClient(ctx, testProjectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	s, err := NewFirestoreStore(NewFirestoreClientAdapter(client), FirestoreStoreConfig{RootCollection: "sensor_readings"}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Push(ctx, "2024-06-15", testBatch()))
	require.NoError(t, s.LogBoot(ctx, ts1))

	snap, err := client.Doc("sensor_readings/2024-06-15/samples/1718409600_123").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), snap.Data()["p11"])
	assert.Equal(t, int64(1718409600), snap.Data()["timestampUnix"])

	docs, err := client.Collection("sensor_readings/2024-06-15/samples").Documents(ctx).GetAll()
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	boots, err := client.Collection("bootLog").Documents(ctx).GetAll()
	require.NoError(t, err)
	assert.Len(t, boots, 1)
}

func TestRedisStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn := emulators.SetupRedisContainer(t, ctx, emulators.GetDefaultRedisImageContainer())

	s, err := NewRedisStoreFromConfig(ctx, config.RedisConfig{
		Addr:      conn.EmulatorAddress,
		KeyPrefix: "sensor_readings",
		TTL:       time.Hour,
	}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Push(ctx, "2024-06-15", testBatch()))
	require.NoError(t, s.LogBoot(ctx, ts1))

	rdb := redis.NewClient(&redis.Options{Addr: conn.EmulatorAddress})
	defer rdb.Close()

	fields, err := rdb.HGetAll(ctx, "sensor_readings:2024-06-15").Result()
	require.NoError(t, err)
	require.Len(t, fields, 2)
	var readings types.Readings
	require.NoError(t, json.Unmarshal([]byte(fields["1718409600_123"]), &readings))
	assert.Equal(t, types.Readings{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, readings)

	ttl, err := rdb.TTL(ctx, "sensor_readings:2024-06-15").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	boots, err := rdb.LRange(ctx, "sensor_readings:boot", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"1718409600123"}, boots)
}

func TestBigQueryStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const dataset = "datalogger"
	conn := emulators.SetupBigQueryEmulator(t, ctx, emulators.GetDefaultBigQueryConfig(testProjectID, dataset))
	client, err := bigquery.NewClient(ctx, testProjectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cfg := config.BigQueryConfig{ProjectID: testProjectID, DatasetID: dataset, TableID: "sensor_readings"}
	table, err := ensureTable(ctx, client, cfg, zerolog.Nop())
	require.NoError(t, err)

	s, err := NewBigQueryStore(table.Inserter(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Push(ctx, "2024-06-15", testBatch()))

	meta, err := table.Metadata(ctx)
	require.NoError(t, err)
	assert.Len(t, meta.Schema, 3+types.SensorCount)
}
