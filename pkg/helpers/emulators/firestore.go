package emulators

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	testFirestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	testFirestoreEmulatorPort  = "8080"
)

type FirestoreConfig struct {
	GCImageContainer
}

func GetDefaultFirestoreConfig(projectID string) FirestoreConfig {
	return FirestoreConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    testFirestoreEmulatorImage,
				EmulatorHTTPPort: testFirestoreEmulatorPort,
			},
			ProjectID:       projectID,
			SetEnvVariables: true,
		},
	}
}

// SetupFirestoreEmulator starts the gcloud Firestore emulator. With
// SetEnvVariables it also exports FIRESTORE_EMULATOR_HOST, which the
// Firestore client honours on its own.
func SetupFirestoreEmulator(t *testing.T, ctx context.Context, cfg FirestoreConfig) *EmulatorConnection {
	t.Helper()
	port := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{port},
		Cmd: []string{
			"gcloud", "beta", "emulators", "firestore", "start",
			fmt.Sprintf("--project=%s", cfg.ProjectID),
			fmt.Sprintf("--host-port=0.0.0.0:%s", cfg.EmulatorHTTPPort),
		},
		WaitingFor: wait.ForListeningPort(nat.Port(port)),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(context.Background())) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	address := fmt.Sprintf("%s:%s", host, mapped.Port())

	t.Logf("Firestore emulator container started, listening on: %s", address)
	if cfg.SetEnvVariables {
		t.Setenv("FIRESTORE_EMULATOR_HOST", address)
	}
	return &EmulatorConnection{
		EmulatorAddress: address,
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(address),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		},
	}
}
