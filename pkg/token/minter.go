package token

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long minted tokens stay valid unless configured
// otherwise.
const DefaultTTL = 3 * time.Hour

// Grant is the result of minting a token for an origin URL.
type Grant struct {
	Token     string
	ProxyURL  string
	ExpiresIn int // seconds
}

// Minter derives a resolution context from an origin media URL and issues
// a client-facing proxy URL for it.
type Minter struct {
	logger     zerolog.Logger
	codec      Codec
	publicBase string
	ttl        time.Duration
}

func NewMinter(codec Codec, publicBase string, ttl time.Duration) *Minter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Minter{
		logger:     log.With().Str("module", "token").Str("submodule", "minter").Logger(),
		codec:      codec,
		publicBase: strings.TrimRight(publicBase, "/"),
		ttl:        ttl,
	}
}

// Mint registers a new token for the given origin URL. Every call issues
// an independent token, even for the same URL.
func (m *Minter) Mint(ctx context.Context, originURL string) (Grant, error) {
	u, err := url.Parse(originURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Grant{}, ErrInvalidURL
	}

	dir := u.Path
	entry := ""
	if idx := strings.LastIndex(dir, "/"); idx >= 0 {
		entry = dir[idx+1:]
		dir = dir[:idx+1]
	} else {
		dir = "/"
	}

	now := time.Now()
	rc := ResolutionContext{
		BasePath:  u.Scheme + "://" + u.Host + dir,
		Entry:     entry,
		Query:     u.RawQuery,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	tok, err := m.codec.Encode(ctx, rc, m.ttl)
	if err != nil {
		return Grant{}, err
	}

	m.logger.Debug().
		Str("base", rc.BasePath).
		Str("entry", rc.Entry).
		Time("expires", rc.ExpiresAt).
		Msg("token minted")

	return Grant{
		Token:     tok,
		ProxyURL:  m.publicBase + "/video/" + tok,
		ExpiresIn: int(m.ttl.Seconds()),
	}, nil
}
