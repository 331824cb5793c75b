package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamgate/internal/metrics"
	"streamgate/pkg/token"
)

func newTestManager(t *testing.T, markers ...string) (*ManagerCtx, token.Codec) {
	t.Helper()

	store := token.NewMemoryStore(time.Minute)
	t.Cleanup(store.Stop)

	codec := token.NewOpaqueCodec(store)
	manager := New(codec, metrics.New(), &Config{
		PathPrefix:     "/video/",
		BlockedMarkers: markers,
	})
	t.Cleanup(manager.Shutdown)

	return manager, codec
}

func mintFor(t *testing.T, codec token.Codec, baseURL, entry, query string) string {
	t.Helper()

	now := time.Now()
	tok, err := codec.Encode(context.Background(), token.ResolutionContext{
		BasePath:  strings.TrimRight(baseURL, "/") + "/hls/720/",
		Entry:     entry,
		Query:     query,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}, time.Hour)
	require.NoError(t, err)

	return tok
}

func TestServeManifestRewrite(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hls/720/master.m3u8", r.URL.Path)
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(strings.Join([]string{
			"#EXTM3U",
			"seg0.ts",
			`#EXT-X-KEY:METHOD=AES-128,URI="k.key"`,
			"seg1.ts",
			"jarvis.ts",
		}, "\n")))
	}))
	defer origin.Close()

	manager, codec := newTestManager(t, "jarvis.ts")
	tok := mintFor(t, codec, origin.URL, "master.m3u8", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/"+tok, nil)
	manager.Serve(w, r, tok, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	want := strings.Join([]string{
		"#EXTM3U",
		"/video/" + tok + "/seg0.ts",
		`#EXT-X-KEY:METHOD=AES-128,URI="/video/` + tok + `/enc.key"`,
		"/video/" + tok + "/seg1.ts",
	}, "\n")
	assert.Equal(t, want, w.Body.String())
	assert.NotContains(t, w.Body.String(), "jarvis.ts")
}

func TestServeSegmentPassthroughWithRange(t *testing.T) {
	var gotRange atomic.Value

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hls/720/seg1.ts", r.URL.Path)
		gotRange.Store(r.Header.Get("Range"))

		w.Header().Set("Content-Type", "video/MP2T")
		w.Header().Set("Content-Range", "bytes 1000-1999/5000")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Access-Control-Allow-Origin", "https://origin.example.com")
		w.Header().Set("X-Origin-Extra", "kept")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("segment-bytes"))
	}))
	defer origin.Close()

	manager, codec := newTestManager(t)
	tok := mintFor(t, codec, origin.URL, "master.m3u8", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/"+tok+"/seg1.ts", nil)
	r.Header.Set("Range", "bytes=1000-1999")
	manager.Serve(w, r, tok, "seg1.ts")

	assert.Equal(t, "bytes=1000-1999", gotRange.Load())
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 1000-1999/5000", w.Header().Get("Content-Range"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "kept", w.Header().Get("X-Origin-Extra"))
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "segment-bytes", w.Body.String())
}

func TestServeForgesOriginHeaders(t *testing.T) {
	var referer, originHdr, agent atomic.Value

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer.Store(r.Header.Get("Referer"))
		originHdr.Store(r.Header.Get("Origin"))
		agent.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer origin.Close()

	manager, codec := newTestManager(t)
	tok := mintFor(t, codec, origin.URL, "master.m3u8", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/"+tok+"/seg0.ts", nil)
	manager.Serve(w, r, tok, "seg0.ts")

	assert.Equal(t, origin.URL, referer.Load())
	assert.Equal(t, origin.URL, originHdr.Load())
	// no client agent was sent, the generic default is used
	assert.Equal(t, "Mozilla/5.0", agent.Load())
}

func TestServeReplaysQueryString(t *testing.T) {
	var gotQuery atomic.Value

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		_, _ = w.Write([]byte("ok"))
	}))
	defer origin.Close()

	manager, codec := newTestManager(t)
	tok := mintFor(t, codec, origin.URL, "master.m3u8", "sig=abc&exp=9")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/"+tok+"/seg0.ts", nil)
	manager.Serve(w, r, tok, "seg0.ts")

	assert.Equal(t, "sig=abc&exp=9", gotQuery.Load())
}

func TestServeKeyTwoHop(t *testing.T) {
	var fetches int64

	mux := http.NewServeMux()
	mux.HandleFunc("/hls/720/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-KEY:METHOD=AES-128,URI=\"keys/k1.bin\"\nseg0.ts"))
	})
	mux.HandleFunc("/hls/720/keys/k1.bin", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
		_, _ = w.Write([]byte{0x01, 0x02, 0x03, 0x04})
	})
	origin := httptest.NewServer(mux)
	defer origin.Close()

	manager, codec := newTestManager(t)
	tok := mintFor(t, codec, origin.URL, "master.m3u8", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/"+tok+"/enc.key", nil)
	manager.Serve(w, r, tok, "enc.key")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), atomic.LoadInt64(&fetches), "key proxy must fetch manifest then key, nothing else")
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, w.Body.Bytes())
}

func TestServeUnknownTokenSkipsOrigin(t *testing.T) {
	var fetches int64

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
	}))
	defer origin.Close()

	manager, _ := newTestManager(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/unknown", nil)
	manager.Serve(w, r, "unknown", "")

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, int64(0), atomic.LoadInt64(&fetches))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
}

func TestServeExpiredSealedToken(t *testing.T) {
	codec, err := token.NewSealedCodec("test-secret")
	require.NoError(t, err)

	manager := New(codec, metrics.New(), &Config{})
	defer manager.Shutdown()

	now := time.Now()
	tok, err := codec.Encode(context.Background(), token.ResolutionContext{
		BasePath:  "https://cdn.example.com/hls/720/",
		Entry:     "master.m3u8",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/"+tok, nil)
	manager.Serve(w, r, tok, "")

	assert.Equal(t, http.StatusGone, w.Code)
}

func TestServeOriginDown(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	manager, codec := newTestManager(t)
	tok := mintFor(t, codec, origin.URL, "master.m3u8", "")

	// close before the proxy fetches
	origin.Close()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/"+tok, nil)
	manager.Serve(w, r, tok, "")

	require.Equal(t, http.StatusBadGateway, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
}

func TestServeOriginErrorStatusPassesThrough(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone fishing", http.StatusForbidden)
	}))
	defer origin.Close()

	manager, codec := newTestManager(t)
	tok := mintFor(t, codec, origin.URL, "master.m3u8", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/"+tok, nil)
	manager.Serve(w, r, tok, "")

	// non-2xx origin replies are not rewritten, the status passes through
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeSubPlaylistIsNotRewritten(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hls/720/480p.m3u8", r.URL.Path)
		_, _ = w.Write([]byte("#EXTM3U\nseg0.ts"))
	}))
	defer origin.Close()

	manager, codec := newTestManager(t)
	tok := mintFor(t, codec, origin.URL, "master.m3u8", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video/"+tok+"/480p.m3u8", nil)
	manager.Serve(w, r, tok, "480p.m3u8")

	// fetched with a remainder, so it streams through untouched
	assert.Equal(t, "#EXTM3U\nseg0.ts", w.Body.String())
}
