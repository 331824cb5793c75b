package proxy

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"streamgate/pkg/proxy"
)

// ModuleCtx mounts the streaming proxy under a path prefix and splits
// incoming paths into {token, remainder} before handing off to the
// manager.
type ModuleCtx struct {
	logger     zerolog.Logger
	pathPrefix string

	manager proxy.Manager
}

func New(pathPrefix string, manager proxy.Manager) *ModuleCtx {
	// ensure it starts and ends with single /
	pathPrefix = "/" + strings.Trim(pathPrefix, "/") + "/"

	return &ModuleCtx{
		logger:     log.With().Str("module", "proxy").Logger(),
		pathPrefix: pathPrefix,
		manager:    manager,
	}
}

func (m *ModuleCtx) Shutdown() {
	m.manager.Shutdown()
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, m.pathPrefix) {
		http.NotFound(w, r)
		return
	}

	p := strings.TrimPrefix(r.URL.Path, m.pathPrefix)
	p = strings.TrimLeft(p, "/")

	// split on the first / only: the token never contains slashes, the
	// remainder may
	token, remainder := p, ""
	if idx := strings.Index(p, "/"); idx >= 0 {
		token, remainder = p[:idx], p[idx+1:]
	}

	if token == "" {
		http.NotFound(w, r)
		return
	}

	m.manager.Serve(w, r, token, remainder)
}
