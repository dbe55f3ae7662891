// Package storagetest holds the behavioural suite every storage.Repository
// implementation must pass.
package storagetest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/campusgate/storage"
)

// Run exercises repo against the storage.Repository contract. Each subtest
// uses its own namespace so backends do not need to be reset between them.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, repo.Put("ns-putget", "accessToken", []byte("tok-1")))

		got, err := repo.Get("ns-putget", "accessToken")
		require.NoError(t, err)
		assert.Equal(t, []byte("tok-1"), got)

		require.NoError(t, repo.Put("ns-putget", "accessToken", []byte("tok-2")))
		got, err = repo.Get("ns-putget", "accessToken")
		require.NoError(t, err)
		assert.Equal(t, []byte("tok-2"), got)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("ns-missing", "accessToken")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "missing namespace: %v", err)

		require.NoError(t, repo.Put("ns-notfound", "refreshToken", []byte("r")))
		_, err = repo.Get("ns-notfound", "accessToken")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "missing key: %v", err)
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		require.NoError(t, repo.Put("ns-copy", "k", []byte("abc")))
		got, err := repo.Get("ns-copy", "k")
		require.NoError(t, err)
		got[0] = 'X'

		again, err := repo.Get("ns-copy", "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, repo.Put("ns-list", "tenantId", []byte("t1")))
		require.NoError(t, repo.Put("ns-list", "accessToken", []byte("a")))
		require.NoError(t, repo.Put("ns-other", "refreshToken", []byte("r")))

		keys, err := repo.List("ns-list")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"accessToken", "tenantId"}, keys)

		keys, err = repo.List("ns-never-written")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		require.NoError(t, repo.Put("ns-delete", "accessToken", []byte("a")))
		require.NoError(t, repo.Delete("ns-delete", "accessToken"))
		require.NoError(t, repo.Delete("ns-delete", "accessToken"))
		require.NoError(t, repo.Delete("ns-never-written", "accessToken"))

		_, err := repo.Get("ns-delete", "accessToken")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("BatchCommits", func(t *testing.T) {
		require.NoError(t, repo.Put("ns-batch", "tenantId", []byte("stale")))

		err := repo.Batch("ns-batch", func(tx storage.BatchTx) error {
			if err := tx.Put("accessToken", []byte("a")); err != nil {
				return err
			}
			if err := tx.Put("refreshToken", []byte("r")); err != nil {
				return err
			}
			return tx.Delete("tenantId")
		})
		require.NoError(t, err)

		keys, err := repo.List("ns-batch")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"accessToken", "refreshToken"}, keys)
	})

	t.Run("BatchRollsBack", func(t *testing.T) {
		require.NoError(t, repo.Put("ns-rollback", "accessToken", []byte("keep")))

		boom := errors.New("boom")
		err := repo.Batch("ns-rollback", func(tx storage.BatchTx) error {
			if err := tx.Put("accessToken", []byte("overwritten")); err != nil {
				return err
			}
			if err := tx.Put("refreshToken", []byte("r")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := repo.Get("ns-rollback", "accessToken")
		require.NoError(t, err)
		assert.Equal(t, []byte("keep"), got)

		_, err = repo.Get("ns-rollback", "refreshToken")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
}
