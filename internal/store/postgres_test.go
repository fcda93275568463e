package store

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSN(t *testing.T) {
	assert.Equal(t, "postgresql://u:p@db:5432/finsite", NormalizeDSN("postgresql+psycopg2://u:p@db:5432/finsite"))
	assert.Equal(t, "postgresql://u:p@db/x", NormalizeDSN("postgresql+psycopg://u:p@db/x"))
	assert.Equal(t, "postgres://db/x", NormalizeDSN("postgres://db/x"))
}

// TestPostgresStore runs against TEST_DATABASE_URL and truncates its tables.
func TestPostgresStore(t *testing.T) {
	_ = godotenv.Load("../../.env")
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	runStoreSuite(t, func(t *testing.T) Store {
		_, err := s.pool.Exec(ctx, `TRUNCATE daily_price, companies RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		return s
	})
}
