// Package vector maintains the semantic index of commit text units.
package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/efebarandurmaz/logsift/internal/commit"
)

var (
	// ErrDimensionMismatch means a vector's length differs from the
	// collection dimension. Vectors are never truncated or padded.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCollectionNotFound is returned when the named collection is absent.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Metric is the similarity measure of a collection.
type Metric string

const (
	Cosine Metric = "cosine"
	Dot    Metric = "dot"
	Euclid Metric = "euclid"
)

// ParseMetric validates a configured metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case Cosine, Dot, Euclid:
		return m, nil
	case "":
		return Cosine, nil
	}
	return "", fmt.Errorf("unknown similarity metric %q", s)
}

// Payload field names as stored in the index. The first four keep the
// names used by earlier exports of the index.
const (
	FieldCommitHash    = "commit-hash"
	FieldAuthor        = "author"
	FieldDate          = "date"
	FieldMessage       = "message"
	FieldRepositoryURL = "repository_url"
	FieldGranularity   = "granularity"
	FieldUnitIndex     = "unit_index"
	FieldText          = "text"
	FieldKey           = "key"
)

// Payload is the metadata stored next to each vector.
type Payload struct {
	CommitHash    string
	Author        string
	Date          string
	Message       string
	RepositoryURL string
	Granularity   string
	UnitIndex     int
	Text          string
	// Key is the stable UUID of the text unit; point ids are only stable
	// within one run.
	Key string
}

// PayloadFor builds the payload of a text unit.
func PayloadFor(u commit.Unit) Payload {
	return Payload{
		CommitHash:    u.Commit.Hash,
		Author:        u.Commit.Author,
		Date:          u.Commit.Date,
		Message:       u.Commit.Message,
		RepositoryURL: u.Commit.Repository.URL,
		Granularity:   string(u.Granularity),
		UnitIndex:     u.Index,
		Text:          u.Text,
		Key:           u.Key(),
	}
}

// Strings returns the string-valued fields keyed by field name.
func (p Payload) Strings() map[string]string {
	return map[string]string{
		FieldCommitHash:    p.CommitHash,
		FieldAuthor:        p.Author,
		FieldDate:          p.Date,
		FieldMessage:       p.Message,
		FieldRepositoryURL: p.RepositoryURL,
		FieldGranularity:   p.Granularity,
		FieldText:          p.Text,
		FieldKey:           p.Key,
	}
}

// PayloadFromStrings is the inverse of Strings; unitIndex is carried
// separately because it is stored as an integer.
func PayloadFromStrings(m map[string]string, unitIndex int) Payload {
	return Payload{
		CommitHash:    m[FieldCommitHash],
		Author:        m[FieldAuthor],
		Date:          m[FieldDate],
		Message:       m[FieldMessage],
		RepositoryURL: m[FieldRepositoryURL],
		Granularity:   m[FieldGranularity],
		UnitIndex:     unitIndex,
		Text:          m[FieldText],
		Key:           m[FieldKey],
	}
}

// Point is one vector with its id and payload.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload Payload
}

// Hit is a single search match.
type Hit struct {
	ID      uint64
	Score   float32
	Payload Payload
}

// Hits are search matches, best first.
type Hits []Hit

// Empty reports whether the query matched nothing. Callers must check it
// rather than index into the result.
func (h Hits) Empty() bool { return len(h) == 0 }

// Backend is the boundary to a vector database.
type Backend interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	// CollectionDimension returns ErrCollectionNotFound when absent.
	CollectionDimension(ctx context.Context, name string) (int, error)
	DeleteCollection(ctx context.Context, name string) error
	CreateCollection(ctx context.Context, name string, dim int, metric Metric) error
	// Upsert must be durable when it returns.
	Upsert(ctx context.Context, name string, points []Point) error
	Search(ctx context.Context, name string, vec []float32, limit int) ([]Hit, error)
	// Scroll returns every point's id and payload; vectors are omitted.
	Scroll(ctx context.Context, name string) ([]Point, error)
	Count(ctx context.Context, name string) (int, error)
	Close() error
}
