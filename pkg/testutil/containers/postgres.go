//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"cidledger/internal/platform/database"
	"cidledger/migrations"
)

// moduleTables lists every migrated table, children before parents.
var moduleTables = []string{"audit_events", "consent_events", "contacts", "verifications", "identities"}

// PostgresContainer is a migrated database shared by the package's suites.
type PostgresContainer struct {
	DSN string
	DB  *sql.DB
}

func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:18-alpine",
		postgres.WithDatabase("cidledger_test"),
		postgres.WithUsername("cidledger"),
		postgres.WithPassword("cidledger_test_password"),
		testcontainers.WithWaitStrategy(
			// Postgres logs readiness twice: once for the init run, once for real.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	fail := func(format string, args ...any) {
		_ = container.Terminate(ctx)
		t.Fatalf(format, args...)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fail("postgres connection string: %v", err)
	}
	if err := database.Migrate(slog.New(slog.NewTextHandler(io.Discard, nil)), dsn, migrations.FS); err != nil {
		fail("migrate: %v", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fail("open postgres: %v", err)
	}
	return &PostgresContainer{DSN: dsn, DB: db}
}

// TruncateTables clears tables without restarting the container. TRUNCATE
// does not fire the consent append-only trigger.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE"); err != nil {
		return fmt.Errorf("truncate %v: %w", tables, err)
	}
	return nil
}

func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	return p.TruncateTables(ctx, moduleTables...)
}

func (p *PostgresContainer) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.DB.ExecContext(ctx, query, args...)
}

// DisableAppendOnly lifts the consent_events append-only trigger so tests
// can tamper with stored chains. The returned func restores it.
func (p *PostgresContainer) DisableAppendOnly(ctx context.Context, t testing.TB) func() {
	t.Helper()
	if _, err := p.Exec(ctx, `ALTER TABLE consent_events DISABLE TRIGGER trg_consent_events_append_only`); err != nil {
		t.Fatalf("disable append-only trigger: %v", err)
	}
	return func() {
		if _, err := p.Exec(context.Background(), `ALTER TABLE consent_events ENABLE TRIGGER trg_consent_events_append_only`); err != nil {
			t.Errorf("re-enable append-only trigger: %v", err)
		}
	}
}
