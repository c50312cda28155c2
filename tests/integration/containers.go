// Package integration runs the persistence and Redis-backed components
// against real PostgreSQL and Redis containers started with testcontainers.
package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = time.Minute

// sharedContainer is started by the first test that needs it and reused by
// the rest of the package. TestMain terminates it.
type sharedContainer struct {
	mu        sync.Mutex
	name      string
	container testcontainers.Container
	endpoint  string
	start     func(ctx context.Context) (testcontainers.Container, string, error)
}

func (s *sharedContainer) endpointFor(t *testing.T, prepare func(endpoint string)) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.container == nil {
		c, endpoint, err := s.start(context.Background())
		require.NoError(t, err, "start %s container", s.name)
		if prepare != nil {
			prepare(endpoint)
		}
		s.container, s.endpoint = c, endpoint
	}
	return s.endpoint
}

func (s *sharedContainer) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "terminate %s container: %v\n", s.name, err)
	}
	s.container, s.endpoint = nil, ""
}

var postgresContainer = &sharedContainer{
	name: "postgres",
	start: func(ctx context.Context) (testcontainers.Container, string, error) {
		c, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("sync_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(startupTimeout)),
		)
		if err != nil {
			return nil, "", err
		}
		dsn, err := c.ConnectionString(ctx, "sslmode=disable")
		return c, dsn, err
	},
}

var redisContainer = &sharedContainer{
	name: "redis",
	start: func(ctx context.Context) (testcontainers.Container, string, error) {
		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(startupTimeout),
			},
			Started: true,
		})
		if err != nil {
			return nil, "", err
		}
		endpoint, err := c.Endpoint(ctx, "")
		return c, endpoint, err
	},
}

func terminateContainers() {
	postgresContainer.terminate()
	redisContainer.terminate()
}

// NewTestRedis returns a client on the shared Redis container with database 0 flushed
func NewTestRedis(t *testing.T) *redis.Client {
	addr := redisContainer.endpointFor(t, nil)
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}
