package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/efebarandurmaz/logsift/internal/query"
)

// Searcher answers free-text queries.
type Searcher interface {
	Search(ctx context.Context, text string) (query.Results, error)
}

// QueryRecorder observes searches.
type QueryRecorder interface {
	RecordQuery(d time.Duration, found bool, err error)
}

type errorResponse struct {
	Error string `json:"error"`
}

// SearchHandler serves GET /search?q=<text>. An empty result is a 200 with
// no matches, never a 404.
func SearchHandler(s Searcher, rec QueryRecorder, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}
		q := r.URL.Query().Get("q")
		if q == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
			return
		}

		start := time.Now()
		res, err := s.Search(r.Context(), q)
		if rec != nil {
			rec.RecordQuery(time.Since(start), res.Found(), err)
		}
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			logger.Error("search failed", "query", q, "error", err)
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		if res.Matches == nil {
			res.Matches = []query.Match{}
		}
		writeJSON(w, http.StatusOK, res)
	})
}

func itoa(n int) string { return strconv.Itoa(n) }
