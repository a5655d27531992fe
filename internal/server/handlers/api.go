package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/gotrawl/internal/errors"
	"github.com/3leaps/gotrawl/pkg/indexstore"
)

// Paging bounds for the search API.
const (
	defaultLimit = 10
	maxLimit     = 100
)

// API serves the read-only search endpoints over an index store.
type API struct {
	store *indexstore.Store
	log   *zap.Logger
}

// NewAPI binds the handlers to a store. A nil logger disables logging.
func NewAPI(store *indexstore.Store, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{store: store, log: log}
}

type searchHit struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Site      string `json:"site"`
	Class     string `json:"class"`
	Server    string `json:"server"`
	Share     string `json:"share"`
	Timestamp string `json:"timestamp"`
	Snippet   string `json:"snippet"`
}

type searchResponse struct {
	Hits   []searchHit `json:"hits"`
	Total  int64       `json:"total"`
	TookMS int64       `json:"took_ms"`
}

type suggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

type documentResponse struct {
	ID        string `json:"id"`
	Site      string `json:"site"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Class     string `json:"class"`
	Ext       string `json:"ext"`
	Server    string `json:"server"`
	Share     string `json:"share"`
	Timestamp int64  `json:"timestamp"`
	Time      string `json:"time"`
}

// Search serves GET /api/search.
func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		apperrors.InvalidArgument(w, r, "missing query parameter q")
		return
	}

	limit, offset, ok := a.paging(w, r)
	if !ok {
		return
	}

	opts := indexstore.SearchOptions{
		Site:   r.URL.Query().Get("site"),
		Class:  r.URL.Query().Get("class"),
		Limit:  limit,
		Offset: offset,
	}

	start := time.Now()
	result, err := a.store.Search(r.Context(), q, opts)
	if err != nil {
		if errors.Is(err, indexstore.ErrEmptyQuery) {
			apperrors.InvalidArgument(w, r, "query contains no searchable terms")
			return
		}
		a.log.Error("search failed", zap.String("q", q), zap.Error(err))
		respondWithError(w, r, err)
		return
	}

	resp := searchResponse{
		Hits:   make([]searchHit, 0, len(result.Hits)),
		Total:  result.Total,
		TookMS: time.Since(start).Milliseconds(),
	}
	for _, h := range result.Hits {
		resp.Hits = append(resp.Hits, searchHit{
			ID:        h.ID,
			URL:       h.URL,
			Title:     h.Title,
			Site:      h.Site,
			Class:     h.Class,
			Server:    h.Server,
			Share:     h.Share,
			Timestamp: h.Timestamp,
			Snippet:   h.Snippet,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Suggest serves GET /api/suggest.
func (a *API) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		apperrors.InvalidArgument(w, r, "missing query parameter q")
		return
	}

	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		apperrors.InvalidArgument(w, r, err.Error())
		return
	}
	if limit < 1 || limit > maxLimit {
		apperrors.InvalidArgument(w, r, fmt.Sprintf("limit must be between 1 and %d", maxLimit))
		return
	}

	suggestions, err := a.store.Suggest(r.Context(), q, limit)
	if err != nil {
		a.log.Error("suggest failed", zap.String("q", q), zap.Error(err))
		respondWithError(w, r, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	writeJSON(w, http.StatusOK, suggestResponse{Suggestions: suggestions})
}

// Document serves GET /api/docs/{id} with the full cached content.
func (a *API) Document(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := a.store.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, indexstore.ErrNotFound) {
			apperrors.NotFound(w, r, "document not found")
			return
		}
		a.log.Error("document lookup failed", zap.String("id", id), zap.Error(err))
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, documentResponse{
		ID:        doc.ID,
		Site:      doc.Site,
		URL:       doc.URL,
		Title:     doc.Title,
		Content:   doc.Content,
		Class:     doc.Class,
		Ext:       doc.Ext,
		Server:    doc.Server,
		Share:     doc.Share,
		Timestamp: doc.Timestamp,
		Time:      indexstore.DisplayTime(doc.Timestamp),
	})
}

// NotConfigured reports that no index store is attached. The serve
// command mounts it when the index database cannot be opened.
func NotConfigured(w http.ResponseWriter, r *http.Request) {
	apperrors.ServiceUnavailable(w, r, "index store not available", nil)
}

func (a *API) paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		apperrors.InvalidArgument(w, r, err.Error())
		return 0, 0, false
	}
	if limit < 1 || limit > maxLimit {
		apperrors.InvalidArgument(w, r, fmt.Sprintf("limit must be between 1 and %d", maxLimit))
		return 0, 0, false
	}

	offset, err = queryInt(r, "offset", 0)
	if err != nil {
		apperrors.InvalidArgument(w, r, err.Error())
		return 0, 0, false
	}
	if offset < 0 {
		apperrors.InvalidArgument(w, r, "offset must be >= 0")
		return 0, 0, false
	}
	return limit, offset, true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}
