package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/efebarandurmaz/logsift/internal/commit"
)

type stubGraph struct {
	keys  map[string][]commit.Key
	err   error
	asked []string
}

func (g *stubGraph) Reset(context.Context) error                         { return nil }
func (g *stubGraph) StoreCommits(context.Context, []commit.Commit) error { return nil }
func (g *stubGraph) Close(context.Context) error                         { return nil }
func (g *stubGraph) AuthorCommits(_ context.Context, author string) ([]commit.Key, error) {
	g.asked = append(g.asked, author)
	return g.keys[author], g.err
}

var carbon = commit.Repository{URL: "https://github.com/carbon-language/carbon-lang", Name: "carbon-lang"}

func storedRows(context.Context) ([]commit.Commit, error) {
	return []commit.Commit{
		{Hash: "a1b2c3", Author: "Alice", Date: "2024-03-01", Message: "Fix parser crash\n\nDetails.", Repository: carbon},
		{Hash: "d4e5f6", Author: "Bob", Date: "2024-03-02", Message: "Add generics", Repository: carbon},
	}, nil
}

func TestAuthorHistory(t *testing.T) {
	g := &stubGraph{keys: map[string][]commit.Key{
		"Alice": {
			{RepositoryURL: carbon.URL, Hash: "a1b2c3"},
			{RepositoryURL: "https://example.com/gone", Hash: "ffff"},
		},
	}}

	got, err := authorHistory(context.Background(), g, storedRows, "Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.asked) != 1 || g.asked[0] != "Alice" {
		t.Fatalf("graph asked for %v", g.asked)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(got))
	}
	if got[0].Date != "2024-03-01" || got[0].Repository.Name != "carbon-lang" {
		t.Errorf("stored row not used: %+v", got[0])
	}
	if got[1].Hash != "ffff" || got[1].Repository.URL != "https://example.com/gone" || got[1].Author != "Alice" {
		t.Errorf("unstored key not kept: %+v", got[1])
	}
}

func TestAuthorHistory_NoCommits(t *testing.T) {
	rows := func(context.Context) ([]commit.Commit, error) {
		t.Fatal("store read without graph hits")
		return nil, nil
	}
	got, err := authorHistory(context.Background(), &stubGraph{}, rows, "Nobody")
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestAuthorHistory_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := authorHistory(ctx, nil, storedRows, "Alice"); err == nil || !strings.Contains(err.Error(), "graph.uri") {
		t.Fatalf("expected unconfigured graph error, got %v", err)
	}

	boom := errors.New("neo4j unavailable")
	if _, err := authorHistory(ctx, &stubGraph{err: boom}, storedRows, "Alice"); !errors.Is(err, boom) {
		t.Fatalf("expected graph error, got %v", err)
	}

	failing := func(context.Context) ([]commit.Commit, error) { return nil, errors.New("disk I/O error") }
	g := &stubGraph{keys: map[string][]commit.Key{"Bob": {{RepositoryURL: carbon.URL, Hash: "d4e5f6"}}}}
	if _, err := authorHistory(ctx, g, failing, "Bob"); err == nil {
		t.Fatal("expected store error")
	}
}

func TestPrintAuthorHistory(t *testing.T) {
	var buf bytes.Buffer
	printAuthorHistory(&buf, "Nobody", nil)
	if got := buf.String(); got != "No commits by Nobody.\n" {
		t.Errorf("got %q", got)
	}

	buf.Reset()
	rows, _ := storedRows(context.Background())
	printAuthorHistory(&buf, "Alice", rows[:1])
	out := buf.String()
	for _, want := range []string{"1 commit(s) by Alice", "a1b2c3", "Fix parser crash"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Details.") {
		t.Errorf("only the subject line should print:\n%s", out)
	}
}
