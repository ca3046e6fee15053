package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/efebarandurmaz/logsift/internal/commit"
	"github.com/efebarandurmaz/logsift/internal/graph"
)

// authorHistory resolves the commits the graph attributes to author against
// the store's rows. Keys the store no longer holds keep only their key
// fields.
func authorHistory(ctx context.Context, g graph.Projector, rows func(context.Context) ([]commit.Commit, error), author string) ([]commit.Commit, error) {
	if g == nil {
		return nil, fmt.Errorf("commit graph is not configured: set graph.uri")
	}
	keys, err := g.AuthorCommits(ctx, author)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	stored, err := rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading commits: %w", err)
	}
	byKey := make(map[commit.Key]commit.Commit, len(stored))
	for _, c := range stored {
		byKey[c.Key()] = c
	}

	out := make([]commit.Commit, 0, len(keys))
	for _, k := range keys {
		c, ok := byKey[k]
		if !ok {
			c = commit.Commit{Hash: k.Hash, Author: author, Repository: commit.Repository{URL: k.RepositoryURL}}
		}
		out = append(out, c)
	}
	return out, nil
}

func printAuthorHistory(w io.Writer, author string, commits []commit.Commit) {
	if len(commits) == 0 {
		fmt.Fprintf(w, "No commits by %s.\n", author)
		return
	}
	fmt.Fprintf(w, "%d commit(s) by %s\n", len(commits), author)
	for _, c := range commits {
		subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
		fmt.Fprintf(w, "  %s  %-10s  %s  %s\n", shortHash(c.Hash), c.Date, c.Repository.URL, subject)
	}
}

func runAuthors(ctx context.Context, configPath, author string, jsonOutput bool) error {
	a, err := open(ctx, configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	commits, err := authorHistory(ctx, a.Graph, a.Store.Commits, author)
	if err != nil {
		return err
	}
	if jsonOutput {
		if commits == nil {
			commits = []commit.Commit{}
		}
		return writeJSON(os.Stdout, commits)
	}
	printAuthorHistory(os.Stdout, author, commits)
	return nil
}
