package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r2clabs/bulkstudy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("r2c_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr)
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool, connStr
}

func TestRunMigrations_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	_, connStr := setupTestDB(t)

	assert.NoError(t, store.RunMigrations(connStr))
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	assert.NoError(t, s.Ping(context.Background()))
}

func TestGetSlot_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetSlot(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPutGetSlot_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	value := []byte(`[{"id":"a1","analysisId":"a1","originalName":"f1.pdf","status":"pending","data":null,"error":null}]`)
	require.NoError(t, s.PutSlot(ctx, "bulkAnalysisJobs", value))

	got, err := s.GetSlot(ctx, "bulkAnalysisJobs")
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func TestPutSlot_Overwrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.PutSlot(ctx, "slot", []byte("first")))
	require.NoError(t, s.PutSlot(ctx, "slot", []byte("second")))

	got, err := s.GetSlot(ctx, "slot")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestPutSlot_StoresMalformedText(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	// The slot is opaque text; validation happens in the job store on load.
	require.NoError(t, s.PutSlot(ctx, "slot", []byte("not json")))
	got, err := s.GetSlot(ctx, "slot")
	require.NoError(t, err)
	assert.Equal(t, "not json", string(got))
}

func TestDeleteSlot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.PutSlot(ctx, "slot", []byte("[]")))
	require.NoError(t, s.DeleteSlot(ctx, "slot"))

	_, err := s.GetSlot(ctx, "slot")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleting again is harmless.
	assert.NoError(t, s.DeleteSlot(ctx, "slot"))
}

func TestSlots_Isolated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.PutSlot(ctx, "tab-a", []byte("a")))
	require.NoError(t, s.PutSlot(ctx, "tab-b", []byte("b")))
	require.NoError(t, s.DeleteSlot(ctx, "tab-a"))

	got, err := s.GetSlot(ctx, "tab-b")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}
