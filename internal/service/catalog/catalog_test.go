package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/internal/config"
	"streamchat/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: fmt.Sprintf("file:catalog_%d?mode=memory&cache=shared", time.Now().UnixNano())},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	require.NoError(t, storage.Seed(context.Background(), db))
	return db
}

func TestListReturnsSeededInventory(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db)
	guitars, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, guitars, len(storage.DefaultInventory))
	for i := 1; i < len(guitars); i++ {
		assert.Less(t, guitars[i-1].ID, guitars[i].ID)
	}
	assert.Equal(t, storage.DefaultInventory[0].Name, guitars[0].Name)
}

func TestSeedIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	require.NoError(t, storage.Seed(context.Background(), db))
	guitars, err := NewService(db).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, guitars, len(storage.DefaultInventory))
}

func TestGet(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)

	g, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.ID)

	_, err = svc.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}
