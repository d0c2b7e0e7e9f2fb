package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryCreateOrGetReusesLiveSession(t *testing.T) {
	repo := NewRepository()
	first, created := repo.CreateOrGet("conn-1", Config{})
	require.True(t, created)

	second, created := repo.CreateOrGet("conn-1", Config{})
	assert.False(t, created)
	assert.Same(t, first, second)
}

func TestRepositoryDualIndex(t *testing.T) {
	repo := NewRepository()
	sess, _ := repo.CreateOrGet("conn-1", Config{})

	byID, err := repo.ByID(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, byID)

	byConn, err := repo.ByConnection("conn-1")
	require.NoError(t, err)
	assert.Same(t, sess, byConn)
}

func TestRepositoryUnknownLookups(t *testing.T) {
	repo := NewRepository()
	_, err := repo.ByID("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = repo.ByConnection("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRepositoryRemoveClearsBothIndexes(t *testing.T) {
	repo := NewRepository()
	sess, _ := repo.CreateOrGet("conn-1", Config{})
	repo.Remove(sess)

	_, err := repo.ByID(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = repo.ByConnection("conn-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, repo.All())
}

func TestRepositoryConcurrentCreateOrGetSingleWinner(t *testing.T) {
	repo := NewRepository()
	const n = 16
	sessions := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], _ = repo.CreateOrGet("conn-x", Config{})
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, sessions[0], sessions[i])
	}
	assert.Len(t, repo.All(), 1)
}
