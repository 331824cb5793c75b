package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"streamgate/internal/metrics"
	"streamgate/pkg/playlist"
	"streamgate/pkg/token"
)

// ManagerCtx resolves tokens and streams origin media back to clients.
// Manifests are buffered and rewritten, everything else passes through
// chunk by chunk.
type ManagerCtx struct {
	logger  zerolog.Logger
	config  Config
	codec   token.Codec
	client  *http.Client
	metrics *metrics.Metrics
}

func New(codec token.Codec, met *metrics.Metrics, config *Config) *ManagerCtx {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// raw bytes are forwarded as-is, never ask origins for compression
	transport.DisableCompression = true

	return &ManagerCtx{
		logger:  log.With().Str("module", "proxy").Str("submodule", "manager").Logger(),
		config:  config.withDefaultValues(),
		codec:   codec,
		client:  &http.Client{Transport: transport},
		metrics: met,
	}
}

func (m *ManagerCtx) Shutdown() {
	m.client.CloseIdleConnections()
}

// Serve handles GET {PathPrefix}{token}/{remainder*}. The remainder may
// be empty, in which case the registered manifest itself is fetched.
func (m *ManagerCtx) Serve(w http.ResponseWriter, r *http.Request, tok string, remainder string) {
	logger := m.logger.With().Str("path", r.URL.Path).Logger()

	rc, err := m.codec.Decode(r.Context(), tok)
	if err != nil {
		m.metrics.IncProxyRequest("error")
		if errors.Is(err, token.ErrExpired) {
			writeError(w, http.StatusGone, "token is invalid or has expired")
		} else {
			writeError(w, http.StatusNotFound, "video not found")
		}
		return
	}

	if remainder == m.config.KeyName {
		m.serveKey(w, r, rc, logger)
		return
	}

	target := rc.EntryURL()
	if remainder != "" {
		target = rc.ResolveURL(remainder)
	}

	resp, err := m.fetch(r, target)
	if err != nil {
		m.metrics.IncProxyRequest("error")
		logger.Warn().Err(err).Str("target", target).Msg("origin fetch failed")
		writeError(w, http.StatusBadGateway, "origin fetch failed")
		return
	}
	defer resp.Body.Close()

	// only the top-level playlist fetch is rewritten; sub-playlists and
	// segments requested with a remainder stream through untouched
	if remainder == "" && isManifest(rc.Entry) && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		m.serveManifest(w, resp, tok, logger)
		return
	}

	m.servePassthrough(w, resp, logger)
}

func (m *ManagerCtx) serveManifest(w http.ResponseWriter, resp *http.Response, tok string, logger zerolog.Logger) {
	buf, err := io.ReadAll(io.LimitReader(resp.Body, m.config.ManifestMaxBytes+1))
	if err != nil {
		m.metrics.IncProxyRequest("error")
		logger.Err(err).Msg("unable to read manifest body")
		writeError(w, http.StatusInternalServerError, "manifest read failed")
		return
	}
	if int64(len(buf)) > m.config.ManifestMaxBytes {
		m.metrics.IncProxyRequest("error")
		logger.Error().Int("size", len(buf)).Msg("manifest exceeds size bound")
		writeError(w, http.StatusInternalServerError, "manifest too large")
		return
	}

	rewriter := playlist.Rewriter{
		Prefix:         strings.TrimRight(m.config.PathPrefix, "/") + "/" + tok,
		KeyName:        m.config.KeyName,
		BlockedMarkers: m.config.BlockedMarkers,
	}
	text := rewriter.Rewrite(string(buf))

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	// origin manifests can rotate segment sets
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	n, _ := io.WriteString(w, text)
	m.metrics.IncProxyRequest("manifest")
	m.metrics.AddBytesStreamed(int64(n))
}

func (m *ManagerCtx) servePassthrough(w http.ResponseWriter, resp *http.Response, logger zerolog.Logger) {
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		// headers are already sent, the connection just terminates
		logger.Debug().Err(err).Int64("bytes", n).Msg("stream interrupted")
	}

	m.metrics.IncProxyRequest("segment")
	m.metrics.AddBytesStreamed(n)
}

// serveKey is the one two-hop path: the manifest is fetched first to find
// the real key URI, then the key bytes are proxied as opaque binary.
func (m *ManagerCtx) serveKey(w http.ResponseWriter, r *http.Request, rc token.ResolutionContext, logger zerolog.Logger) {
	manifestURL := rc.EntryURL()

	resp, err := m.fetch(r, manifestURL)
	if err != nil {
		m.metrics.IncProxyRequest("error")
		logger.Warn().Err(err).Msg("manifest fetch for key lookup failed")
		writeError(w, http.StatusBadGateway, "origin fetch failed")
		return
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, m.config.ManifestMaxBytes))
	resp.Body.Close()
	if err != nil {
		m.metrics.IncProxyRequest("error")
		writeError(w, http.StatusInternalServerError, "manifest read failed")
		return
	}

	keyURI, ok := playlist.KeyURI(string(buf))
	if !ok {
		m.metrics.IncProxyRequest("error")
		logger.Warn().Msg("manifest has no key directive")
		writeError(w, http.StatusInternalServerError, "key proxy error")
		return
	}

	base, err := url.Parse(manifestURL)
	if err != nil {
		m.metrics.IncProxyRequest("error")
		writeError(w, http.StatusInternalServerError, "key proxy error")
		return
	}
	ref, err := url.Parse(keyURI)
	if err != nil {
		m.metrics.IncProxyRequest("error")
		writeError(w, http.StatusInternalServerError, "key proxy error")
		return
	}
	keyURL := base.ResolveReference(ref).String()

	keyResp, err := m.fetch(r, keyURL)
	if err != nil {
		m.metrics.IncProxyRequest("error")
		logger.Warn().Err(err).Str("target", keyURL).Msg("key fetch failed")
		writeError(w, http.StatusBadGateway, "origin fetch failed")
		return
	}
	defer keyResp.Body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(keyResp.StatusCode)

	n, _ := io.Copy(w, keyResp.Body)
	m.metrics.IncProxyRequest("key")
	m.metrics.AddBytesStreamed(n)
}

func (m *ManagerCtx) fetch(r *http.Request, target string) (*http.Response, error) {
	// bound to the inbound request context so a client disconnect aborts
	// the origin fetch
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	ua := r.Header.Get("User-Agent")
	if ua == "" {
		ua = m.config.UserAgent
	}
	req.Header.Set("User-Agent", ua)

	// many media hosts enforce same-origin referer checks, so these are
	// fabricated from the target rather than forwarded from the client
	origin := req.URL.Scheme + "://" + req.URL.Host
	req.Header.Set("Referer", origin)
	req.Header.Set("Origin", origin)

	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err == nil {
		m.metrics.ObserveOriginFetch(time.Since(start))
	}
	return resp, err
}

func isManifest(entry string) bool {
	return strings.HasSuffix(entry, ".m3u8")
}

// response headers that never cross the proxy: CORS is set by this
// service, Content-Encoding would desynchronize clients since bytes are
// streamed raw, the rest are hop-by-hop
var skipHeaders = map[string]struct{}{
	"Content-Encoding":    {},
	"Connection":          {},
	"Keep-Alive":          {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Trailer":             {},
	"Te":                  {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if _, ok := skipHeaders[key]; ok {
			continue
		}
		if strings.HasPrefix(key, "Access-Control-") {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Status: "error", Error: msg})
}
