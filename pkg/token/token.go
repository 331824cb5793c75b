package token

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a token is unknown, malformed or has
	// been evicted from the backing store.
	ErrNotFound = errors.New("token not found")
	// ErrExpired is returned when a token is decodable but past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalidURL is returned when an origin URL cannot be parsed as an
	// absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid origin url")
	// ErrNotRevocable is returned by codecs whose tokens carry their own
	// state and cannot be invalidated before expiry.
	ErrNotRevocable = errors.New("token cannot be revoked before expiry")
)

// ResolutionContext binds a token to an origin location. It is created by
// the minter, is immutable once stored, and is removed only by expiry or
// explicit revocation.
type ResolutionContext struct {
	// BasePath is the origin directory containing the manifest and its
	// segments, including scheme and host. Always ends with a slash.
	BasePath string `json:"base"`
	// Entry is the manifest filename an empty remainder resolves to.
	Entry string `json:"entry"`
	// Query is the origin query string (signed-url parameters etc.)
	// replayed on every derived fetch, without the leading "?".
	Query string `json:"query,omitempty"`

	CreatedAt time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Expired reports whether the context is past its expiry at the given time.
func (rc ResolutionContext) Expired(now time.Time) bool {
	return !now.Before(rc.ExpiresAt)
}

// EntryURL returns the full origin URL of the registered manifest.
func (rc ResolutionContext) EntryURL() string {
	return rc.withQuery(rc.BasePath + rc.Entry)
}

// ResolveURL returns the origin URL for a remainder path relative to the
// base path, with the stored query string re-appended.
func (rc ResolutionContext) ResolveURL(remainder string) string {
	return rc.withQuery(rc.BasePath + strings.TrimLeft(remainder, "/"))
}

func (rc ResolutionContext) withQuery(u string) string {
	if rc.Query == "" {
		return u
	}
	return u + "?" + rc.Query
}
