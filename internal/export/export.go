// Package export reads commit export documents. Each document is an XML
// file holding one repository descriptor and any number of commit
// descriptors:
//
//	<commits>
//	  <repository><url>…</url><name>…</name></repository>
//	  <commit><hash/><author/><date/><message/></commit>
//	</commits>
//
// Commit elements are matched at any depth below the root; the repository
// descriptor must be a direct child of the root.
package export

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/efebarandurmaz/logsift/internal/commit"
)

// DefaultExtension is the file extension of export documents.
const DefaultExtension = ".xml"

// UnknownRepositoryScheme prefixes the pseudo-repository url assigned to
// commits of a document without a repository descriptor.
const UnknownRepositoryScheme = "unknown:"

// DocumentError reports which document and record failed to load.
type DocumentError struct {
	Path  string
	Index int // commit position within the document, -1 for document-level errors
	Hash  string
	Err   error
}

func (e *DocumentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("document %s: %v", e.Path, e.Err)
	}
	if e.Hash != "" {
		return fmt.Sprintf("document %s: commit #%d (%s): %v", e.Path, e.Index, e.Hash, e.Err)
	}
	return fmt.Sprintf("document %s: commit #%d: %v", e.Path, e.Index, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// Document is one parsed export file.
type Document struct {
	Path       string
	Repository commit.Repository
	Commits    []commit.Commit
}

// Loader turns export documents into commit records.
type Loader struct {
	// UnknownRepository assigns a per-document pseudo-repository to commits
	// of documents that lack a repository descriptor. When false those
	// commits carry an empty repository.
	UnknownRepository bool
}

type xmlRepository struct {
	URL  *string `xml:"url"`
	Name *string `xml:"name"`
}

type xmlCommit struct {
	Hash    *string `xml:"hash"`
	Author  *string `xml:"author"`
	Date    *string `xml:"date"`
	Message *string `xml:"message"`
}

// Load parses a single document.
func (l Loader) Load(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, &DocumentError{Path: path, Index: -1, Err: err}
	}
	defer f.Close()
	return l.Decode(path, f)
}

// Decode parses a document from r. path is only used for error reporting
// and pseudo-repository naming.
func (l Loader) Decode(path string, r io.Reader) (Document, error) {
	doc := Document{Path: path}
	dec := xml.NewDecoder(r)

	var (
		depth   int
		hasRepo bool
		raw     []xmlCommit
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Document{}, &DocumentError{Path: path, Index: -1, Err: fmt.Errorf("parse xml: %w", err)}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case t.Name.Local == "repository" && depth == 2 && !hasRepo:
				var xr xmlRepository
				if err := dec.DecodeElement(&xr, &t); err != nil {
					return Document{}, &DocumentError{Path: path, Index: -1, Err: fmt.Errorf("parse repository: %w", err)}
				}
				depth--
				hasRepo = true
				doc.Repository = commit.Repository{URL: text(xr.URL), Name: text(xr.Name)}
			case t.Name.Local == "commit":
				var xc xmlCommit
				if err := dec.DecodeElement(&xc, &t); err != nil {
					return Document{}, &DocumentError{Path: path, Index: len(raw), Err: fmt.Errorf("parse commit: %w", err)}
				}
				depth--
				raw = append(raw, xc)
			}
		case xml.EndElement:
			depth--
		}
	}

	repo := doc.Repository
	if repo.URL == "" && l.UnknownRepository {
		base := filepath.Base(path)
		repo = commit.Repository{
			URL:  UnknownRepositoryScheme + strings.TrimSuffix(base, filepath.Ext(base)),
			Name: "unknown",
		}
		doc.Repository = repo
	}

	doc.Commits = make([]commit.Commit, 0, len(raw))
	for i, xc := range raw {
		c := commit.Commit{
			Hash:       text(xc.Hash),
			Author:     text(xc.Author),
			Date:       text(xc.Date),
			Repository: repo,
		}
		if xc.Message != nil {
			c.Message = *xc.Message
		}
		if err := c.Validate(); err != nil {
			return Document{}, &DocumentError{Path: path, Index: i, Hash: c.Hash, Err: err}
		}
		doc.Commits = append(doc.Commits, c)
	}
	return doc, nil
}

// Documents yields each parsed document in order. Iteration stops at the
// first error, which is yielded with a zero Document. Ranging over the
// sequence again re-reads the files.
func (l Loader) Documents(paths ...string) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		for _, p := range paths {
			doc, err := l.Load(p)
			if err != nil {
				yield(Document{}, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// Commits yields every commit of every document, one document at a time.
func (l Loader) Commits(paths ...string) iter.Seq2[commit.Commit, error] {
	return func(yield func(commit.Commit, error) bool) {
		for doc, err := range l.Documents(paths...) {
			if err != nil {
				yield(commit.Commit{}, err)
				return
			}
			for _, c := range doc.Commits {
				if !yield(c, nil) {
					return
				}
			}
		}
	}
}

// Discover returns the files in dir with the given extension, sorted by
// name. Subdirectories are not descended into.
func Discover(dir, ext string) ([]string, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
