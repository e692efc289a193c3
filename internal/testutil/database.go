package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/congo-pay/congo_save/internal/infra"
	"github.com/congo-pay/congo_save/internal/logging"
)

// TestDatabase is a migrated PostgreSQL container plus a pool connected to it.
type TestDatabase struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	URL       string
}

// SetupTestDatabase starts a PostgreSQL container and applies the embedded
// migrations. Tests calling it are skipped under -short.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("congo_save_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
		testcontainers.CustomizeRequest(testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Labels: map[string]string{
					"test":      "congo-save",
					"test-name": t.Name(),
					"timestamp": time.Now().Format("20060102-150405"),
				},
			},
		}),
	)
	require.NoError(t, err)

	db := &TestDatabase{Container: container}
	t.Cleanup(func() { db.cleanup(t) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, infra.MigrateUp(connStr, logging.Discard()))

	pool, err := infra.NewPostgresPool(ctx, connStr, logging.Discard())
	require.NoError(t, err)

	db.Pool = pool
	db.URL = connStr
	return db
}

func (td *TestDatabase) cleanup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if td.Pool != nil {
		td.Pool.Close()
	}
	if td.Container != nil {
		if err := td.Container.Terminate(ctx); err != nil {
			t.Logf("terminate test container: %v", err)
		}
	}
}
