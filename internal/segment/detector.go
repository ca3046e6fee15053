package segment

import (
	"strings"
	"unicode"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// abbreviations never end a sentence even when followed by whitespace.
var abbreviations = map[string]bool{
	"e.g.":    true,
	"i.e.":    true,
	"vs.":     true,
	"cf.":     true,
	"approx.": true,
	"mr.":     true,
	"mrs.":    true,
	"ms.":     true,
	"dr.":     true,
}

// RuleDetector splits after runs of terminal punctuation (. ! ?) that are
// followed by whitespace or the end of the text. Closing quotes and
// brackets directly after the punctuation stay with the sentence. Dotted
// tokens such as versions or paths ("v1.2", "pkg/a.go") never split because
// no whitespace follows the dot.
type RuleDetector struct{}

// Sentences implements Detector.
func (RuleDetector) Sentences(paragraph string) []string {
	runes := []rune(paragraph)
	var (
		out   []string
		start int
	)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminal(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		if runes[i] == '.' && abbreviations[strings.ToLower(lastWord(runes[start:end]))] {
			i = end - 1
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '»', '”', '’':
		return true
	}
	return false
}

func lastWord(rs []rune) string {
	s := strings.TrimSpace(string(rs))
	if i := strings.LastIndexFunc(s, unicode.IsSpace); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimLeft(s, "([{\"'")
}

// PunktDetector uses a pre-trained English Punkt model.
type PunktDetector struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewPunktDetector loads the bundled English Punkt parameters.
func NewPunktDetector() (*PunktDetector, error) {
	t, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, err
	}
	return &PunktDetector{tokenizer: t}, nil
}

// Sentences implements Detector.
func (p *PunktDetector) Sentences(paragraph string) []string {
	toks := p.tokenizer.Tokenize(paragraph)
	out := make([]string, 0, len(toks))
	for _, s := range toks {
		out = append(out, s.Text)
	}
	return out
}
