// Package query answers free-text questions with the nearest commits.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/logsift/internal/observability"
	"github.com/efebarandurmaz/logsift/internal/vector"
)

// DefaultLimit is the number of matches returned per query.
const DefaultLimit = 5

// Encoder embeds a single query string.
type Encoder interface {
	EncodeOne(ctx context.Context, text string) ([]float32, error)
}

// Index answers nearest-neighbour queries.
type Index interface {
	Query(ctx context.Context, name string, vec []float32, k int) (vector.Hits, error)
}

// Match is one ranked result.
type Match struct {
	Score      float32 `json:"score"`
	CommitHash string  `json:"commit_hash"`
	Author     string  `json:"author"`
	Date       string  `json:"date"`
	Message    string  `json:"message"`
	Repository string  `json:"repository"`
	// Text is the matched unit; it differs from Message at sentence
	// granularity.
	Text string `json:"text"`
}

// Results is the outcome of a search. The zero value means nothing matched.
type Results struct {
	Query   string  `json:"query"`
	Matches []Match `json:"matches"`
}

// Found reports whether any match exists. A false value is the explicit
// "no results" answer, distinct from an error.
func (r Results) Found() bool { return len(r.Matches) > 0 }

// Best returns the top match. It panics when !Found().
func (r Results) Best() Match { return r.Matches[0] }

// Service bridges query text to the vector index.
type Service struct {
	encoder    Encoder
	index      Index
	collection string
	limit      int
}

// NewService creates a Service. A non-positive limit uses DefaultLimit.
func NewService(enc Encoder, idx Index, collection string, limit int) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{encoder: enc, index: idx, collection: collection, limit: limit}
}

// Limit returns the configured result limit.
func (s *Service) Limit() int { return s.limit }

// Search embeds text and returns up to Limit() matches, best first. Errors
// from the model or the index fail this query only.
func (s *Service) Search(ctx context.Context, text string) (Results, error) {
	ctx, span := observability.StartQuerySpan(ctx, s.collection, s.limit)
	defer span.End()

	res := Results{Query: text}
	if strings.TrimSpace(text) == "" {
		return res, fmt.Errorf("query text is empty")
	}

	vec, err := s.encoder.EncodeOne(ctx, text)
	if err != nil {
		observability.RecordError(span, err)
		return res, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := s.index.Query(ctx, s.collection, vec, s.limit)
	if err != nil {
		observability.RecordError(span, err)
		return res, fmt.Errorf("querying index: %w", err)
	}
	if hits.Empty() {
		observability.RecordQueryResult(span, 0, 0)
		return res, nil
	}

	res.Matches = make([]Match, len(hits))
	for i, h := range hits {
		res.Matches[i] = Match{
			Score:      h.Score,
			CommitHash: h.Payload.CommitHash,
			Author:     h.Payload.Author,
			Date:       h.Payload.Date,
			Message:    h.Payload.Message,
			Repository: h.Payload.RepositoryURL,
			Text:       h.Payload.Text,
		}
	}
	observability.RecordQueryResult(span, len(hits), hits[0].Score)
	return res, nil
}
