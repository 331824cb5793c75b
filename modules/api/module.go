package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"streamgate/internal/metrics"
	"streamgate/pkg/catalog"
	"streamgate/pkg/token"
)

// ModuleCtx exposes the token-minting API: /get-proxy for a raw origin
// URL and /lecture for catalog lookups with per-quality variants.
type ModuleCtx struct {
	logger  zerolog.Logger
	minter  *token.Minter
	catalog catalog.Store
	metrics *metrics.Metrics
}

func New(minter *token.Minter, cat catalog.Store, met *metrics.Metrics) *ModuleCtx {
	return &ModuleCtx{
		logger:  log.With().Str("module", "api").Logger(),
		minter:  minter,
		catalog: cat,
		metrics: met,
	}
}

func (m *ModuleCtx) Mount(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		//nolint
		_, _ = w.Write([]byte("pong"))
	})

	r.Get("/get-proxy", m.getProxy)
	r.Get("/lecture", m.lecture)
}

func (m *ModuleCtx) getProxy(w http.ResponseWriter, r *http.Request) {
	originURL := r.URL.Query().Get("url")
	if originURL == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: url")
		return
	}

	grant, err := m.minter.Mint(r.Context(), originURL)
	if err != nil {
		if errors.Is(err, token.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, "invalid URL provided")
			return
		}
		m.logger.Err(err).Msg("mint failed")
		writeError(w, http.StatusInternalServerError, "token could not be issued")
		return
	}

	m.metrics.IncTokensMinted()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"m3u8_url":   grant.ProxyURL,
		"expires_in": grant.ExpiresIn,
	})
}

type lectureSource struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
}

type lectureResponse struct {
	Title     string                   `json:"title"`
	Thumbnail string                   `json:"thumbnail,omitempty"`
	Sources   map[string]lectureSource `json:"sources"`
}

// lecture resolves a catalog entry and mints one token per quality
// variant, so the origin URL never reaches the client.
func (m *ModuleCtx) lecture(w http.ResponseWriter, r *http.Request) {
	if m.catalog == nil {
		writeError(w, http.StatusNotFound, "catalog is not configured")
		return
	}

	q := r.URL.Query()
	batchID, subjectID, topicID := q.Get("batch"), q.Get("subject"), q.Get("topic")
	if batchID == "" || subjectID == "" || topicID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameters: batch, subject, topic")
		return
	}

	index, err := strconv.Atoi(q.Get("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid lecture index")
		return
	}

	lec, err := m.catalog.GetLecture(r.Context(), batchID, subjectID, topicID, index)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lecture not found")
			return
		}
		m.logger.Err(err).Msg("catalog lookup failed")
		writeError(w, http.StatusInternalServerError, "catalog lookup failed")
		return
	}

	resp := lectureResponse{
		Title:     lec.Title,
		Thumbnail: lec.Thumbnail,
		Sources:   make(map[string]lectureSource, len(catalog.Qualities)),
	}

	for _, quality := range catalog.Qualities {
		variant := catalog.VariantURL(lec.VideoURL, quality)

		grant, err := m.minter.Mint(r.Context(), variant)
		if err != nil {
			m.logger.Err(err).Int("quality", quality).Msg("variant mint failed")
			writeError(w, http.StatusInternalServerError, "token could not be issued")
			return
		}
		m.metrics.IncTokensMinted()

		resp.Sources[strconv.Itoa(quality)] = lectureSource{
			URL:      grant.ProxyURL,
			MimeType: catalog.MimeType(variant),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{
		"status": "error",
		"error":  msg,
	})
}
