package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/logsift/internal/commit"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "commit_messages.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

var carbon = commit.Repository{URL: "https://github.com/carbon-language/carbon-lang", Name: "carbon-lang"}

func testCommits() []commit.Commit {
	return []commit.Commit{
		{Hash: "b2", Author: "Bob", Date: "2024-03-02", Message: "Add generics.", Repository: carbon},
		{Hash: "a1", Author: "Alice", Date: "2024-03-01", Message: "Fix parser.", Repository: carbon},
		{Hash: "a1", Author: "Alice", Date: "2024-03-01", Message: "Initial.", Repository: commit.Repository{URL: "https://example.com/other", Name: "other"}},
	}
}

func TestSaveCommits_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	added, err := s.SaveCommits(ctx, testCommits())
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	first, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Repositories: 2, Commits: 3}, first)

	added, err = s.SaveCommits(ctx, testCommits())
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	second, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInsertCommit_ForeignKeyOrdering(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	c := testCommits()[0]

	err := s.InsertCommit(ctx, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReferentialViolation)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Commits, "failed insert must not orphan a commit")

	require.NoError(t, s.InsertRepository(ctx, c.Repository))
	require.NoError(t, s.InsertCommit(ctx, c))

	counts, err = s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Repositories: 1, Commits: 1}, counts)
}

func TestInsert_MissingRepository(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	c := commit.Commit{Hash: "h", Author: "a", Date: "d", Message: "m"}

	assert.ErrorIs(t, s.InsertCommit(ctx, c), ErrMissingRepository)
	assert.ErrorIs(t, s.InsertRepository(ctx, c.Repository), ErrMissingRepository)

	_, err := s.SaveCommits(ctx, []commit.Commit{testCommits()[0], c})
	assert.ErrorIs(t, err, ErrMissingRepository)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts, "failed batch must roll back")
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.SaveCommits(ctx, testCommits())
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)

	// Schema is usable after reset, including the foreign key.
	assert.ErrorIs(t, s.InsertCommit(ctx, testCommits()[0]), ErrReferentialViolation)
}

func TestCommitsAndRepositories(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	_, err := s.SaveCommits(ctx, testCommits())
	require.NoError(t, err)

	commits, err := s.Commits(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, "https://example.com/other", commits[0].Repository.URL)
	assert.Equal(t, "a1", commits[1].Hash)
	assert.Equal(t, "b2", commits[2].Hash)
	assert.Equal(t, carbon, commits[2].Repository)
	assert.Equal(t, "Add generics.", commits[2].Message)

	repos, err := s.Repositories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []commit.Repository{
		{URL: "https://example.com/other", Name: "other"},
		carbon,
	}, repos)
}

func TestOpen_ExistingDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "commit_messages.db")

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	_, err = s.SaveCommits(ctx, testCommits())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Commits)
	assert.NoError(t, s.Ping(ctx))
}
