package db

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/example/tododb/internal/config"
)

// repoRoot resolves the repository root so the tests pick up the real
// schema.sql and seed.sql rather than copies.
func repoRoot(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok, "failed to resolve caller path")
	return filepath.Join(filepath.Dir(file), "..", "..")
}

func startPostgres(t *testing.T) (*tcpostgres.PostgresContainer, *config.Config) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		}),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.WithDatabase("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	root := repoRoot(t)
	cfg := &config.Config{
		DBName:     "todoapp",
		DBUser:     "todouser",
		DBPassword: "todopass",
		DBHost:     host,
		DBPort:     port.Int(),
		Superuser:  "postgres",
		SchemaFile: filepath.Join(root, "schema.sql"),
		SeedFile:   filepath.Join(root, "seed.sql"),
	}
	return container, cfg
}

func connect(t *testing.T, url string) *pgx.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	require.NoError(t, err, "failed to connect to %s", url)
	t.Cleanup(func() { conn.Close(context.Background()) })
	return conn
}

func TestApplyFileIsIdempotent(t *testing.T) {
	_, cfg := startPostgres(t)
	ctx := context.Background()
	conn := connect(t, cfg.MaintenanceURL())

	for i := 0; i < 2; i++ {
		require.NoError(t, ApplyFile(ctx, conn, cfg.SchemaFile))
	}

	var count int
	err := conn.QueryRow(ctx,
		"SELECT count(*) FROM information_schema.tables WHERE table_name = 'todos'").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestApplyFileMissing(t *testing.T) {
	err := ApplyFile(context.Background(), nil, filepath.Join(t.TempDir(), "nope.sql"))
	require.Error(t, err)
}

func TestSeedIsIdempotent(t *testing.T) {
	_, cfg := startPostgres(t)
	ctx := context.Background()
	conn := connect(t, cfg.MaintenanceURL())

	require.NoError(t, ApplyFile(ctx, conn, cfg.SchemaFile))
	for i := 0; i < 2; i++ {
		require.NoError(t, ApplyFile(ctx, conn, cfg.SeedFile))
	}

	var count int
	require.NoError(t, conn.QueryRow(ctx, "SELECT count(*) FROM todos").Scan(&count))
	require.Equal(t, 2, count)
}

func TestProvision(t *testing.T) {
	_, cfg := startPostgres(t)
	ctx := context.Background()

	prov := NewProvisioner(cfg, zap.NewNop())
	require.NoError(t, prov.Provision(ctx, false))

	// Running it again must not fail or duplicate anything.
	require.NoError(t, prov.Provision(ctx, false))

	// The application role must be able to use its database.
	conn := connect(t, cfg.URL())

	var count int
	require.NoError(t, conn.QueryRow(ctx, "SELECT count(*) FROM todos").Scan(&count))
	require.Equal(t, 2, count)

	var status string
	err := conn.QueryRow(ctx,
		"SELECT status FROM todos WHERE title = 'Write your first todo'").Scan(&status)
	require.NoError(t, err)
	require.Equal(t, "pending", status)
}

func TestProvisionAppRoleOwnsObjects(t *testing.T) {
	_, cfg := startPostgres(t)
	ctx := context.Background()

	prov := NewProvisioner(cfg, zap.NewNop())
	require.NoError(t, prov.Provision(ctx, false))

	conn := connect(t, cfg.URL())

	// Writes exercise both table and sequence privileges.
	var id int64
	err := conn.QueryRow(ctx,
		"INSERT INTO todos (title) VALUES ('From the app role') RETURNING id").Scan(&id)
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = conn.Exec(ctx, "UPDATE todos SET status = 'completed' WHERE id = $1", id)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "DELETE FROM todos WHERE id = $1", id)
	require.NoError(t, err)

	var owner string
	require.NoError(t, conn.QueryRow(ctx,
		"SELECT tableowner FROM pg_tables WHERE tablename = 'todos'").Scan(&owner))
	require.Equal(t, cfg.DBUser, owner)
}

func TestProvisionSkipSeed(t *testing.T) {
	_, cfg := startPostgres(t)
	ctx := context.Background()

	prov := NewProvisioner(cfg, zap.NewNop())
	require.NoError(t, prov.Provision(ctx, true))

	conn := connect(t, cfg.URL())

	var count int
	require.NoError(t, conn.QueryRow(ctx, "SELECT count(*) FROM todos").Scan(&count))
	require.Equal(t, 0, count)
}

func TestQuoteLiteral(t *testing.T) {
	require.Equal(t, "'plain'", quoteLiteral("plain"))
	require.Equal(t, "'it''s'", quoteLiteral("it's"))
	require.Equal(t, "''", quoteLiteral(""))
}
