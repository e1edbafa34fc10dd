package inmemory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/landuse-agentic/domain"
)

func TestSessionRepository(t *testing.T) {
	repo := NewSessionRepository()
	session := domain.NewSession("s1", nil)

	require.NoError(t, repo.Save(session))
	assert.Equal(t, 1, repo.Count())

	got, err := repo.Get("s1")
	require.NoError(t, err)
	assert.Same(t, session, got)

	_, err = repo.Get("missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, repo.Delete("s1"))
	assert.ErrorIs(t, repo.Delete("s1"), domain.ErrSessionNotFound)
	assert.Equal(t, 0, repo.Count())
}

func TestSessionRepositoryConcurrentSaves(t *testing.T) {
	repo := NewSessionRepository()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.Save(domain.NewSession(fmt.Sprintf("s%d", i), nil))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, repo.Count())
}

func TestSessionRepositorySweep(t *testing.T) {
	repo := NewSessionRepository()
	stale := domain.NewSession("stale", nil)
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)
	fresh := domain.NewSession("fresh", nil)
	require.NoError(t, repo.Save(stale))
	require.NoError(t, repo.Save(fresh))

	swept := repo.Sweep(time.Now().Add(-time.Hour))
	require.Len(t, swept, 1)
	assert.Same(t, stale, swept[0])

	_, err := repo.Get("stale")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = repo.Get("fresh")
	assert.NoError(t, err)
	assert.Empty(t, repo.Sweep(time.Now().Add(-time.Hour)))
}
