package sqlstore

import (
	"context"
	"fmt"
	"testing"
	"testing/fstest"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	repo, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepositoryLoadsSeededPortfolio(t *testing.T) {
	repo := openTestRepository(t)

	positions, err := repo.FindPortfolio(context.Background(), "me")
	require.NoError(t, err)
	require.Len(t, positions, 5)

	first := positions[0]
	assert.Equal(t, "TSLA", first.StockName)
	assert.Equal(t, "US", string(first.Market))
	assert.True(t, first.AveragePrice.Equal(decimal.NewFromInt(350000)))
	assert.True(t, first.CurrentPrice.Equal(decimal.NewFromInt(245000)))
	assert.Equal(t, int64(20), first.Quantity)
	assert.Equal(t, "카카오", positions[2].StockName)
}

func TestRepositoryLoadsSeededRealizedGains(t *testing.T) {
	repo := openTestRepository(t)

	gains, err := repo.FindRealizedGains(context.Background(), "me")
	require.NoError(t, err)
	require.Len(t, gains, 3)

	assert.Equal(t, "AAPL", gains[0].StockName)
	assert.True(t, gains[0].GainAmount.Equal(decimal.NewFromInt(4200000)))
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), gains[0].RealizedDate)
	assert.True(t, gains[2].GainAmount.IsNegative())
}

func TestRepositoryUnknownUserIsEmpty(t *testing.T) {
	repo := openTestRepository(t)

	positions, err := repo.FindPortfolio(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, positions)

	gains, err := repo.FindRealizedGains(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, gains)
}

func TestMigrationsAreAppliedOnce(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	require.NoError(t, runMigrations(ctx, repo.db, embeddedMigrations))

	var count int
	require.NoError(t, repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)

	positions, err := repo.FindPortfolio(ctx, "me")
	require.NoError(t, err)
	assert.Len(t, positions, 5)
}

func TestLoadMigrationFilesOrdersByVersion(t *testing.T) {
	source := fstest.MapFS{
		"0002_b.sql": {Data: []byte("SELECT 2;")},
		"0001_a.sql": {Data: []byte("SELECT 1; SELECT 11;")},
		"empty.sql":  {Data: []byte("  ;  ")},
		"readme.txt": {Data: []byte("ignored")},
	}
	files, err := loadMigrationFiles(source)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "0001", files[0].version)
	assert.Equal(t, []string{"SELECT 1", "SELECT 11"}, files[0].statements)
	assert.Equal(t, "0002", files[1].version)
}

func TestParseDateAcceptsDriverRepresentations(t *testing.T) {
	want := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	for _, value := range []any{"2026-05-20", []byte("2026-05-20"), "2026-05-20T00:00:00Z", time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC)} {
		got, err := parseDate(value)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseDate(42)
	assert.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "postgres", DSN: "x"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: DriverSQLite})
	assert.Error(t, err)
}
