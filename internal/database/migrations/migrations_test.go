package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"ms-checkin/internal/logger"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func TestInitializeMissingDir(t *testing.T) {
	r := NewRunner(nil, MigrateOptions{MigrationsDir: t.TempDir() + "/nope", AutoMigrate: true}, logger.NewNop())
	assert.ErrorContains(t, r.Initialize(), "does not exist")
}

func TestNewRunnerDefaultsMigrationsDir(t *testing.T) {
	r := NewRunner(nil, MigrateOptions{AutoMigrate: true}, logger.NewNop())
	assert.Equal(t, DefaultOptions().MigrationsDir, r.options.MigrationsDir)

	r = NewRunner(nil, MigrateOptions{MigrationsDir: "/srv/migrations"}, logger.NewNop())
	assert.Equal(t, "/srv/migrations", r.options.MigrationsDir)
}

func TestRunMigrationsSkippedWhenDisabled(t *testing.T) {
	r := NewRunner(nil, MigrateOptions{MigrationsDir: "/does/not/matter"}, logger.NewNop())
	assert.NoError(t, r.RunMigrations())
	assert.NoError(t, r.Close())
}

func TestRunMigrations_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "checkin",
				"POSTGRES_PASSWORD": "checkin",
				"POSTGRES_DB":       "checkin",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Postgres container unavailable: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	sqldb, err := sql.Open("postgres", fmt.Sprintf("postgres://checkin:checkin@%s:%s/checkin?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	r := NewRunner(bunDB, MigrateOptions{MigrationsDir: "../../../migrations", AutoMigrate: true}, logger.NewNop())
	defer r.Close()

	require.NoError(t, r.RunMigrations())
	// A second run is a no-op.
	require.NoError(t, r.RunMigrations())

	var exists bool
	require.NoError(t, bunDB.QueryRowContext(ctx, "SELECT to_regclass('public.tickets') IS NOT NULL").Scan(&exists))
	assert.True(t, exists)

	require.NoError(t, r.MigrateDown())
	require.NoError(t, bunDB.QueryRowContext(ctx, "SELECT to_regclass('public.tickets') IS NOT NULL").Scan(&exists))
	assert.False(t, exists)
}
