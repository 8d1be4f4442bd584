package storage

import (
	"context"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a temporary BadgerDB instance for testing.
// It returns the repository instance and a cleanup function.
func setupTestDB(t *testing.T) (*BadgerRepository, func()) {
	t.Helper()

	testLogger := logrus.New()
	testLogger.SetOutput(os.Stderr)
	testLogger.SetLevel(logrus.ErrorLevel)

	repo, err := NewBadgerRepository(t.TempDir(), testLogger)
	require.NoError(t, err, "Failed to create test BadgerDB repository")

	cleanup := func() {
		err := repo.Close()
		assert.NoError(t, err, "Failed to close test BadgerDB repository")
	}
	return repo, cleanup
}

func putRaw(t *testing.T, r *BadgerRepository, namespace, key string, raw []byte) {
	t.Helper()
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ledgerKey(namespace, key), raw)
	})
	require.NoError(t, err)
}

func TestBadgerRepository_SaveAndLoadIDs(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	// --- Missing key loads as empty ---
	ids, err := repo.LoadIDs(ctx, "", LikedKey)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)

	// --- Save and read back, order preserved ---
	require.NoError(t, repo.SaveIDs(ctx, "", LikedKey, []string{"b", "a", "c"}))
	ids, err = repo.LoadIDs(ctx, "", LikedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, ids)

	// --- Overwrite replaces the whole list ---
	require.NoError(t, repo.SaveIDs(ctx, "", LikedKey, []string{"z"}))
	ids, err = repo.LoadIDs(ctx, "", LikedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, ids)

	// --- Keys are independent ---
	ids, err = repo.LoadIDs(ctx, "", DislikedKey)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// --- nil saves as an empty array ---
	require.NoError(t, repo.SaveIDs(ctx, "", DislikedKey, nil))
	ids, err = repo.LoadIDs(ctx, "", DislikedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{}, ids)
}

func TestBadgerRepository_Namespaces(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.SaveIDs(ctx, "chat:1", LikedKey, []string{"x"}))
	require.NoError(t, repo.SaveIDs(ctx, "chat:2", LikedKey, []string{"y"}))

	ids, err := repo.LoadIDs(ctx, "chat:1", LikedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids)

	ids, err = repo.LoadIDs(ctx, "", LikedKey)
	require.NoError(t, err)
	assert.Empty(t, ids, "default namespace must not see chat namespaces")
}

func TestBadgerRepository_SaveLedger(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.SaveLedger(ctx, "chat:1", []string{"a", "b"}, []string{"c"}))

	liked, err := repo.LoadIDs(ctx, "chat:1", LikedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, liked)
	disliked, err := repo.LoadIDs(ctx, "chat:1", DislikedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, disliked)

	// --- Both lists are replaced together, nil as empty ---
	require.NoError(t, repo.SaveLedger(ctx, "chat:1", nil, []string{"a"}))
	liked, err = repo.LoadIDs(ctx, "chat:1", LikedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{}, liked)
	disliked, err = repo.LoadIDs(ctx, "chat:1", DislikedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, disliked)

	liked, err = repo.LoadIDs(ctx, "", LikedKey)
	require.NoError(t, err)
	assert.Empty(t, liked)
}

func TestBadgerRepository_MalformedValue(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	putRaw(t, repo, "", LikedKey, []byte("{not json"))
	putRaw(t, repo, "", DislikedKey, []byte("null"))

	ids, err := repo.LoadIDs(ctx, "", LikedKey)
	require.NoError(t, err, "malformed content is never fatal")
	assert.Empty(t, ids)

	ids, err = repo.LoadIDs(ctx, "", DislikedKey)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestBadgerRepository_Persistence(t *testing.T) {
	dir := t.TempDir()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	ctx := context.Background()

	repo, err := NewBadgerRepository(dir, logger)
	require.NoError(t, err)
	require.NoError(t, repo.SaveIDs(ctx, "", LikedKey, []string{"keep"}))
	require.NoError(t, repo.Close())

	reopened, err := NewBadgerRepository(dir, logger)
	require.NoError(t, err)
	defer reopened.Close()

	ids, err := reopened.LoadIDs(ctx, "", LikedKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids)
}
