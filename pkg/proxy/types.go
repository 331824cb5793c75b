package proxy

import (
	"net/http"
	"strings"
)

// generic browser agent for origins that refuse unknown clients
const defaultUserAgent = "Mozilla/5.0"

const defaultManifestMaxBytes = 4 << 20

type Config struct {
	// PathPrefix is the client-facing mount point, e.g. "/video/".
	PathPrefix string
	// KeyName is the synthetic filename content-key requests arrive under.
	KeyName string
	// UserAgent is sent upstream when the client did not supply one.
	UserAgent string
	// BlockedMarkers are substrings of manifest lines that must be
	// removed from rewritten output.
	BlockedMarkers []string
	// ManifestMaxBytes bounds how much of a manifest body is buffered
	// for rewriting.
	ManifestMaxBytes int64
}

func (c Config) withDefaultValues() Config {
	if c.PathPrefix == "" {
		c.PathPrefix = "/video/"
	}
	if c.KeyName == "" {
		c.KeyName = "enc.key"
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.ManifestMaxBytes == 0 {
		c.ManifestMaxBytes = defaultManifestMaxBytes
	}
	// ensure it starts and ends with single /
	c.PathPrefix = "/" + strings.Trim(c.PathPrefix, "/") + "/"
	return c
}

type Manager interface {
	Shutdown()

	Serve(w http.ResponseWriter, r *http.Request, token string, remainder string)
}
