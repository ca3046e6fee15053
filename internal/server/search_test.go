package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/efebarandurmaz/logsift/internal/query"
)

type fakeSearcher struct {
	res query.Results
	err error
	got string
}

func (f *fakeSearcher) Search(_ context.Context, text string) (query.Results, error) {
	f.got = text
	return f.res, f.err
}

type fakeRecorder struct {
	found []bool
	errs  int
}

func (r *fakeRecorder) RecordQuery(_ time.Duration, found bool, err error) {
	r.found = append(r.found, found)
	if err != nil {
		r.errs++
	}
}

func TestSearchHandler(t *testing.T) {
	hit := query.Results{Query: "parser crash", Matches: []query.Match{{Score: 0.9, CommitHash: "a1"}}}
	tests := []struct {
		name    string
		method  string
		target  string
		res     query.Results
		err     error
		code    int
		matches int
	}{
		{"found", http.MethodGet, "/search?q=parser+crash", hit, nil, http.StatusOK, 1},
		{"empty", http.MethodGet, "/search?q=nothing", query.Results{Query: "nothing"}, nil, http.StatusOK, 0},
		{"missing q", http.MethodGet, "/search", query.Results{}, nil, http.StatusBadRequest, -1},
		{"wrong method", http.MethodPost, "/search?q=x", query.Results{}, nil, http.StatusMethodNotAllowed, -1},
		{"backend error", http.MethodGet, "/search?q=x", query.Results{}, errors.New("qdrant unavailable"), http.StatusInternalServerError, -1},
		{"timeout", http.MethodGet, "/search?q=x", query.Results{}, context.DeadlineExceeded, http.StatusGatewayTimeout, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSearcher{res: tt.res, err: tt.err}
			rec := &fakeRecorder{}
			w := httptest.NewRecorder()
			SearchHandler(s, rec, nil).ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if tt.matches < 0 {
				return
			}
			var res query.Results
			if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
				t.Fatal(err)
			}
			if res.Matches == nil {
				t.Fatal("matches must be an empty array, not null")
			}
			if len(res.Matches) != tt.matches {
				t.Fatalf("expected %d matches, got %d", tt.matches, len(res.Matches))
			}
			if len(rec.found) != 1 || rec.found[0] != (tt.matches > 0) {
				t.Fatalf("unexpected recorded queries %v", rec.found)
			}
		})
	}
}

func TestSearchHandler_PassesQuery(t *testing.T) {
	s := &fakeSearcher{}
	w := httptest.NewRecorder()
	SearchHandler(s, nil, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?q=fix+the+lexer", nil))
	if s.got != "fix the lexer" {
		t.Fatalf("searcher got %q", s.got)
	}
}
