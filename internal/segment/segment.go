// Package segment splits commit messages into sentence-level text units.
package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/efebarandurmaz/logsift/internal/commit"
)

// Detector finds sentence boundaries in a single paragraph of text.
type Detector interface {
	Sentences(paragraph string) []string
}

// paragraphBreak matches blank-line separated blocks.
var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// Segmenter turns a raw commit message into ordered sentences.
type Segmenter struct {
	detector Detector
}

// New returns a Segmenter using d, or the rule-based detector when d is nil.
func New(d Detector) *Segmenter {
	if d == nil {
		d = RuleDetector{}
	}
	return &Segmenter{detector: d}
}

// NewFromName builds a Segmenter for a configured detector name.
func NewFromName(name string) (*Segmenter, error) {
	switch name {
	case "", "rule":
		return New(RuleDetector{}), nil
	case "punkt":
		d, err := NewPunktDetector()
		if err != nil {
			return nil, err
		}
		return New(d), nil
	default:
		return nil, fmt.Errorf("unknown sentence detector %q", name)
	}
}

// Segment returns the sentences of message in order of occurrence.
//
// Paragraphs (blocks separated by two or more newlines) are segmented
// independently so that a subject line never merges with the body. Inside a
// paragraph single newlines are soft wraps and become spaces.
func (s *Segmenter) Segment(message string) []string {
	message = strings.ReplaceAll(message, "\r\n", "\n")
	message = strings.TrimSpace(message)

	var out []string
	for _, part := range paragraphBreak.Split(message, -1) {
		part = strings.TrimSpace(strings.ReplaceAll(part, "\n", " "))
		if part == "" {
			continue
		}
		for _, sent := range s.detector.Sentences(part) {
			if sent = strings.TrimSpace(sent); sent != "" {
				out = append(out, sent)
			}
		}
	}
	return out
}

// Units returns the text units of c for the given granularity. Whole-message
// units have index 0; sentence units are numbered from 0 in message order.
func (s *Segmenter) Units(c commit.Commit, g commit.Granularity) []commit.Unit {
	if g == commit.GranularitySentence {
		sentences := s.Segment(c.Message)
		if len(sentences) > 0 {
			units := make([]commit.Unit, len(sentences))
			for i, sent := range sentences {
				units[i] = commit.Unit{Commit: c, Granularity: g, Index: i, Text: sent}
			}
			return units
		}
	}
	return []commit.Unit{{
		Commit:      c,
		Granularity: commit.GranularityMessage,
		Text:        strings.TrimSpace(c.Message),
	}}
}
