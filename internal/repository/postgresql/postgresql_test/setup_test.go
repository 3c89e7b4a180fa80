package postgresql_test

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"testing"

	"github.com/cmlabs-hris/geo-attendance/internal/pkg/database"
)

//go:embed schema.sql
var schemaSQL string

// TestDatabaseSetup holds a connection to the test database
type TestDatabaseSetup struct {
	DB *database.DB
}

// NewTestDatabase connects to TEST_DATABASE_URL and creates the schema. The
// calling test is skipped when the variable is unset.
func NewTestDatabase(t testing.TB) *TestDatabaseSetup {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.NewPostgreSQLDB(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		db.Close()
		t.Fatalf("failed to create schema: %v", err)
	}

	setup := &TestDatabaseSetup{DB: db}
	if err := setup.TruncateAllTables(ctx); err != nil {
		db.Close()
		t.Fatalf("%v", err)
	}
	t.Cleanup(setup.Close)
	return setup
}

// TruncateAllTables removes every row from the attendance tables
func (t *TestDatabaseSetup) TruncateAllTables(ctx context.Context) error {
	tx, err := t.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tables := []string{
		"approval_requests",
		"attendance_records",
		"sites",
		"employees",
	}

	for _, table := range tables {
		_, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}

// SeedEmployee inserts an employee. An empty branchID leaves the employee unassigned.
func (t *TestDatabaseSetup) SeedEmployee(ctx context.Context, id, branchID, role string) error {
	_, err := t.DB.Exec(ctx, `
		INSERT INTO employees (id, name, email, branch_id, role)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	`, id, "Employee "+id, id+"@example.com", branchID, role)
	return err
}

func (t *TestDatabaseSetup) SeedSite(ctx context.Context, id, branchID string, lat, lng, radius float64) error {
	_, err := t.DB.Exec(ctx, `
		INSERT INTO sites (id, name, branch_id, latitude, longitude, radius_meters)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, "Site "+id, branchID, lat, lng, radius)
	return err
}

// Close closes the database connection
func (t *TestDatabaseSetup) Close() {
	t.DB.Close()
}
