package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sifan077/linkpulse/internal/infra/postgres"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, postgres.AutoMigrate(ctx, db, Models()...))

	s := NewPostgresStore(db, nil)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	runStoreContract(t, func(t *testing.T) Store { return s })
}
