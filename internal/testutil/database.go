// Package testutil provides an isolated in-memory ledger database and
// builders for the records tests need most.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Veraticus/notiledger/internal/storage"
)

// DefaultGroupID is the group every builder scopes its records to.
const DefaultGroupID = "group-test"

// TestDB is a migrated in-memory database bound to one test.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a migrated in-memory database that is closed when the
// test finishes.
//
//	db := testutil.SetupTestDB(t)
//	db.MustSaveTransaction(testutil.NewTransaction().WithAmount(12345).Build())
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()), "failed to run migrations")

	return &TestDB{Storage: store, t: t}
}
