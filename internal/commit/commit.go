// Package commit defines the records that flow through the ingestion
// pipeline: repositories, commits and the text units derived from them.
package commit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrMissingField is returned when a commit descriptor lacks a required field.
var ErrMissingField = errors.New("missing required field")

// Repository identifies the source of a set of commits.
type Repository struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// IsZero reports whether the repository descriptor was absent.
func (r Repository) IsZero() bool {
	return r.URL == "" && r.Name == ""
}

// Commit is a single normalized commit record.
type Commit struct {
	Hash       string     `json:"hash"`
	Author     string     `json:"author"`
	Date       string     `json:"date"`
	Message    string     `json:"message"`
	Repository Repository `json:"repository"`
}

// Key is the composite natural key of a commit.
type Key struct {
	RepositoryURL string
	Hash          string
}

func (k Key) String() string {
	return k.RepositoryURL + "@" + k.Hash
}

// Key returns the (repository_url, hash) key of the commit.
func (c Commit) Key() Key {
	return Key{RepositoryURL: c.Repository.URL, Hash: c.Hash}
}

// FieldError names the field that failed validation.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrMissingField }

// Validate checks that every required field is present. Message is checked
// first since a commit without one cannot be segmented or embedded.
func (c Commit) Validate() error {
	switch {
	case strings.TrimSpace(c.Message) == "":
		return &FieldError{Field: "message"}
	case c.Hash == "":
		return &FieldError{Field: "hash"}
	case c.Author == "":
		return &FieldError{Field: "author"}
	case c.Date == "":
		return &FieldError{Field: "date"}
	}
	return nil
}

// Granularity selects what one vector represents.
type Granularity string

const (
	// GranularityMessage embeds each commit message as a whole.
	GranularityMessage Granularity = "message"
	// GranularitySentence embeds every sentence of a message separately.
	GranularitySentence Granularity = "sentence"
)

// ParseGranularity validates a configured granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case GranularityMessage, GranularitySentence:
		return g, nil
	case "":
		return GranularityMessage, nil
	default:
		return "", fmt.Errorf("unknown granularity %q (want %q or %q)", s, GranularityMessage, GranularitySentence)
	}
}

// Unit is one piece of text that receives its own vector.
type Unit struct {
	Commit      Commit
	Granularity Granularity
	Index       int // position within the commit message, 0 for whole-message units
	Text        string
}

// Key returns the stable identity of the unit across rebuilds.
func (u Unit) Key() string {
	return PointKey(u.Commit.Repository.URL, u.Commit.Hash, u.Index)
}

// PointKey derives a deterministic UUID for the text unit at position unit
// of the given commit. Unlike the sequential point ids assigned during a
// rebuild, the key is identical across runs.
func PointKey(repositoryURL, hash string, unit int) string {
	name := repositoryURL + "\x00" + hash + "\x00" + strconv.Itoa(unit)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
