package emulators

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
)

const (
	testGCSEmulatorImage = "fsouza/fake-gcs-server:1.52.2"
	testGCSEmulatorPort  = "4443"
)

type GCSConfig struct {
	GCImageContainer
	BaseBucket  string
	BaseStorage string
}

func GetDefaultGCSConfig(projectID, bucket string) GCSConfig {
	return GCSConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    testGCSEmulatorImage,
				EmulatorHTTPPort: testGCSEmulatorPort,
			},
			ProjectID:       projectID,
			SetEnvVariables: true,
		},
		BaseBucket:  bucket,
		BaseStorage: "/storage/v1/b",
	}
}

// SetupGCSEmulator starts fake-gcs-server and creates the base bucket. The
// container is terminated when the test ends.
func SetupGCSEmulator(t *testing.T, ctx context.Context, cfg GCSConfig) *EmulatorConnection {
	t.Helper()

	httpPort := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{httpPort},
		Cmd:          []string{"-scheme", "http", "-port", cfg.EmulatorHTTPPort},
		WaitingFor: wait.ForHTTP(cfg.BaseStorage).WithPort(nat.Port(httpPort)).WithStatusCodeMatcher(
			func(status int) bool {
				return status > 0
			}).WithStartupTimeout(20 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(context.Background())) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(httpPort))
	require.NoError(t, err)
	address := fmt.Sprintf("%s:%s", host, port.Port())

	if cfg.SetEnvVariables {
		t.Setenv("STORAGE_EMULATOR_HOST", address)
	}
	opts := []option.ClientOption{
		option.WithoutAuthentication(),
		option.WithEndpoint(fmt.Sprintf("http://%s/storage/v1/", address)),
	}

	client := GetStorageClient(t, ctx, opts)
	err = client.Bucket(cfg.BaseBucket).Create(ctx, cfg.ProjectID, nil)
	require.NoError(t, err)

	return &EmulatorConnection{EmulatorAddress: address, ClientOptions: opts}
}

// GetStorageClient returns a client for the emulator, closed at test end.
func GetStorageClient(t *testing.T, ctx context.Context, opts []option.ClientOption) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}
