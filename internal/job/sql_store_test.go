package job

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	j := newTestJob("sess-1")
	j.Warnings = []string{"initial warning"}
	require.NoError(t, store.Create(ctx, j))

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, j.SessionID, got.SessionID)
	assert.Equal(t, j.OriginalFileName, got.OriginalFileName)
	assert.Equal(t, j.TargetFormat, got.TargetFormat)
	assert.Equal(t, j.FileSizeBytes, got.FileSizeBytes)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Equal(t, []string{"initial warning"}, got.Warnings)
	assert.Equal(t, "medium", got.Metadata["quality"])
}

func TestSQLStore_GetUnknown(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_CompleteThenRejectSecondTransition(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	j := newTestJob("sess-1")
	require.NoError(t, store.Create(ctx, j))

	done, err := store.Complete(ctx, j.ID, "downloads/a.docx", []string{"ocr fallback used"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.DownloadPath)
	assert.Equal(t, "downloads/a.docx", *done.DownloadPath)
	assert.Equal(t, []string{"ocr fallback used"}, done.Warnings)
	require.NotNil(t, done.CompletedAt)

	_, err = store.Fail(ctx, j.ID, "too late", nil)
	assert.ErrorIs(t, err, ErrTerminal)

	_, err = store.Complete(ctx, j.ID, "downloads/b.docx", nil)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestSQLStore_FinishUnknownJob(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.Fail(context.Background(), "missing", "boom", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_ClearDownloadPath(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	j := newTestJob("sess-1")
	require.NoError(t, store.Create(ctx, j))
	_, err := store.Complete(ctx, j.ID, "downloads/a.docx", nil)
	require.NoError(t, err)

	require.NoError(t, store.ClearDownloadPath(ctx, j.ID))

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DownloadPath)
	assert.Equal(t, StatusCompleted, got.Status)

	assert.ErrorIs(t, store.ClearDownloadPath(ctx, "missing"), ErrNotFound)
}

func TestSQLStore_ListBySession(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Create(ctx, newTestJob("sess-a")))
	}
	require.NoError(t, store.Create(ctx, newTestJob("sess-b")))

	jobs, err := store.ListBySession(ctx, "sess-a", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	for _, j := range jobs {
		assert.Equal(t, "sess-a", j.SessionID)
	}

	limited, err := store.ListBySession(ctx, "sess-a", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
