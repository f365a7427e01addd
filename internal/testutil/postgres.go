// Package testutil provides test helpers: a disposable PostgreSQL container and a
// websocket protocol client.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/smuggle/internal/config"
	"github.com/cory-johannsen/smuggle/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Store     *postgres.Store
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container with a connected Store
// and a raw pool for fixtures.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool, or fails the test.
// The container is terminated by t.Cleanup.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "smuggle",
				"POSTGRES_PASSWORD": "smuggle",
				"POSTGRES_DB":       "smuggle_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "smuggle",
		Password:        "smuggle",
		Name:            "smuggle_test",
		SSLMode:         "disable",
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}
	store, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}
	raw, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		store.Close()
		t.Fatalf("opening raw pool: %v", err)
	}
	t.Logf("postgres container started [%s]", time.Since(start))

	t.Cleanup(func() {
		raw.Close()
		store.Close()
		_ = container.Terminate(ctx)
	})
	return &PostgresContainer{container: container, Store: store, RawPool: raw, Config: dbCfg}
}

// ApplyMigrations executes every *.up.sql file in the repository's migrations
// directory in name order.
//
// Postcondition: The schema matches what cmd/migrate would produce.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	dir := MigrationsDir(t)
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("listing migrations: %v", err)
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading migration %s: %v", f, err)
		}
		if _, err := pc.RawPool.Exec(ctx, string(sql)); err != nil {
			t.Fatalf("applying migration %s: %v", filepath.Base(f), err)
		}
	}
	t.Logf("applied %d migrations", len(files))
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return pc.Config.DSN()
}

// MigrationsDir locates the repository's migrations directory from this source file.
func MigrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("locating testutil source file")
	}
	root := strings.TrimSuffix(filepath.Dir(file), filepath.Join("internal", "testutil"))
	return filepath.Join(root, "migrations")
}

// String describes the container endpoint for test logs.
func (pc *PostgresContainer) String() string {
	return fmt.Sprintf("postgres %s:%d/%s", pc.Config.Host, pc.Config.Port, pc.Config.Name)
}
