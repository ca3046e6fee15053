// Package graph projects ingested commits into a property graph of
// repositories, commits and authors.
package graph

import (
	"context"

	"github.com/efebarandurmaz/logsift/internal/commit"
)

// Projector maintains the commit graph.
type Projector interface {
	// Reset removes every node the projection owns.
	Reset(ctx context.Context) error
	// StoreCommits merges commits with their repository and author.
	StoreCommits(ctx context.Context, commits []commit.Commit) error
	// AuthorCommits returns the keys of commits by author, ordered by
	// repository url then hash.
	AuthorCommits(ctx context.Context, author string) ([]commit.Key, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
