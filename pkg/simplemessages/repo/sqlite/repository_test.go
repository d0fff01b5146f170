package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-messages/pkg/simplemessages"
	"github.com/tendant/simple-messages/pkg/simplemessages/repo/repotest"
	"github.com/tendant/simple-messages/pkg/simplemessages/repo/sqlite"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, sqlite.Migrate(context.Background(), db))
	return db
}

func TestRepositoryContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simplemessages.Repository {
		return sqlite.New(newTestDB(t))
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, sqlite.Migrate(context.Background(), db))
}

func TestOpen_FileDatabasePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "messages.db")

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(ctx, db))

	want := repotest.NewSubmission(0)
	require.NoError(t, sqlite.New(db).CreateSubmission(ctx, want))
	require.NoError(t, db.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := sqlite.New(reopened).GetSubmission(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.MessageBody, got.MessageBody)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}
