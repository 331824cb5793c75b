package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Codec turns a resolution context into a client-facing token and back.
// The two implementations are functionally interchangeable: OpaqueCodec
// keys a server-side store, SealedCodec embeds the encrypted context in
// the token itself. The streaming proxy does not care which is wired.
type Codec interface {
	Encode(ctx context.Context, rc ResolutionContext, ttl time.Duration) (string, error)
	Decode(ctx context.Context, token string) (ResolutionContext, error)
	Revoke(ctx context.Context, token string) error
}

const opaqueTokenBytes = 32

// OpaqueCodec issues cryptographically random tokens that act purely as
// lookup keys into a Store. Tokens can be revoked before expiry.
type OpaqueCodec struct {
	store Store
}

func NewOpaqueCodec(store Store) *OpaqueCodec {
	return &OpaqueCodec{store: store}
}

func (c *OpaqueCodec) Encode(ctx context.Context, rc ResolutionContext, ttl time.Duration) (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	tok := base64.RawURLEncoding.EncodeToString(buf)
	if err := c.store.Put(ctx, tok, rc, ttl); err != nil {
		return "", err
	}

	return tok, nil
}

func (c *OpaqueCodec) Decode(ctx context.Context, token string) (ResolutionContext, error) {
	rc, err := c.store.Get(ctx, token)
	if err != nil {
		return ResolutionContext{}, err
	}

	// redis expiry is native, the memory store checks on read; this guard
	// covers stores that only sweep periodically
	if rc.Expired(time.Now()) {
		_ = c.store.Delete(ctx, token)
		return ResolutionContext{}, ErrExpired
	}

	return rc, nil
}

func (c *OpaqueCodec) Revoke(ctx context.Context, token string) error {
	return c.store.Delete(ctx, token)
}
