package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/logsift/internal/commit"
	"github.com/efebarandurmaz/logsift/internal/graph"
)

// writeBatch bounds the rows sent per UNWIND statement.
const writeBatch = 500

// Projector implements graph.Projector using Neo4j.
type Projector struct {
	driver neo4j.DriverWithContext
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Projector, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Projector{driver: driver}, nil
}

func (p *Projector) Reset(ctx context.Context) error {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, "MATCH (n) WHERE n:Repository OR n:Commit OR n:Author DETACH DELETE n", nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("reset commit graph: %w", err)
	}
	return nil
}

func (p *Projector) StoreCommits(ctx context.Context, commits []commit.Commit) error {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for start := 0; start < len(commits); start += writeBatch {
		end := min(start+writeBatch, len(commits))
		rows := commitRows(commits[start:end])
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx,
				"UNWIND $rows AS row "+
					"MERGE (r:Repository {url: row.repo}) SET r.name = row.repo_name "+
					"MERGE (c:Commit {repository_url: row.repo, hash: row.hash}) "+
					"SET c.date = row.date, c.message = row.message "+
					"MERGE (a:Author {name: row.author}) "+
					"MERGE (r)-[:HAS_COMMIT]->(c) "+
					"MERGE (a)-[:AUTHORED]->(c)",
				map[string]any{"rows": rows})
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("store commits [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (p *Projector) AuthorCommits(ctx context.Context, author string) ([]commit.Key, error) {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (:Author {name: $name})-[:AUTHORED]->(c:Commit) "+
				"RETURN c.repository_url AS repo, c.hash AS hash ORDER BY repo, hash",
			map[string]any{"name": author})
		if err != nil {
			return nil, err
		}
		var keys []commit.Key
		for records.Next(ctx) {
			rec := records.Record()
			repo, _ := rec.Get("repo")
			hash, _ := rec.Get("hash")
			keys = append(keys, commit.Key{RepositoryURL: repo.(string), Hash: hash.(string)})
		}
		return keys, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query commits by %s: %w", author, err)
	}
	return result.([]commit.Key), nil
}

func (p *Projector) Close(ctx context.Context) error {
	return p.driver.Close(ctx)
}

// commitRows flattens commits into UNWIND parameters.
func commitRows(commits []commit.Commit) []map[string]any {
	rows := make([]map[string]any, len(commits))
	for i, c := range commits {
		rows[i] = map[string]any{
			"repo":      c.Repository.URL,
			"repo_name": c.Repository.Name,
			"hash":      c.Hash,
			"author":    c.Author,
			"date":      c.Date,
			"message":   c.Message,
		}
	}
	return rows
}

var _ graph.Projector = (*Projector)(nil)
