//go:build integration

package invitations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/storage/storagetest"
)

func TestPostgresRepository(t *testing.T) {
	db := storagetest.Postgres(t)
	require.NoError(t, RunMigrations(context.Background(), db, nil))

	open := func(t *testing.T) Repository {
		_, err := db.Exec(`DELETE FROM invitations`)
		require.NoError(t, err)
		return NewStore(db)
	}

	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, open(t)) })
	t.Run("OnePendingPerEmail", func(t *testing.T) { testOnePendingPerEmail(t, open(t)) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, open(t)) })
	t.Run("CompareAndSwapVersion", func(t *testing.T) { testCompareAndSwapVersion(t, open(t)) })
	t.Run("List", func(t *testing.T) { testList(t, open(t)) })
	t.Run("ListPastDue", func(t *testing.T) { testListPastDue(t, open(t)) })
}
