package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMinter(t *testing.T) (*Minter, Store) {
	t.Helper()
	store := NewMemoryStore(time.Minute)
	t.Cleanup(store.Stop)

	return NewMinter(NewOpaqueCodec(store), "https://gw.example.com", 3*time.Hour), store
}

func TestMintResolvesToBasePrefix(t *testing.T) {
	minter, store := newTestMinter(t)
	ctx := context.Background()

	origin := "https://cdn.example.com/hls/720/master.m3u8"
	grant, err := minter.Mint(ctx, origin)
	require.NoError(t, err)

	rc, err := store.Get(ctx, grant.Token)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(origin, rc.BasePath), "base %q is not a prefix of %q", rc.BasePath, origin)
	assert.Equal(t, "https://cdn.example.com/hls/720/", rc.BasePath)
	assert.Equal(t, "master.m3u8", rc.Entry)
	assert.True(t, rc.ExpiresAt.After(rc.CreatedAt))
}

func TestMintCapturesQueryString(t *testing.T) {
	minter, store := newTestMinter(t)
	ctx := context.Background()

	grant, err := minter.Mint(ctx, "https://cdn.example.com/hls/720/master.m3u8?sig=abc&exp=123")
	require.NoError(t, err)

	rc, err := store.Get(ctx, grant.Token)
	require.NoError(t, err)

	assert.Equal(t, "sig=abc&exp=123", rc.Query)
	assert.Contains(t, rc.ResolveURL("seg0.ts"), "?sig=abc&exp=123")
}

func TestMintProxyURLAndTTL(t *testing.T) {
	minter, _ := newTestMinter(t)

	grant, err := minter.Mint(context.Background(), "https://cdn.example.com/hls/720/master.m3u8")
	require.NoError(t, err)

	assert.Equal(t, "https://gw.example.com/video/"+grant.Token, grant.ProxyURL)
	assert.Equal(t, 10800, grant.ExpiresIn)
}

func TestMintRelativeProxyURLWithoutPublicBase(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Stop()
	minter := NewMinter(NewOpaqueCodec(store), "", 0)

	grant, err := minter.Mint(context.Background(), "https://cdn.example.com/hls/720/master.m3u8")
	require.NoError(t, err)

	assert.Equal(t, "/video/"+grant.Token, grant.ProxyURL)
	assert.Equal(t, int(DefaultTTL.Seconds()), grant.ExpiresIn)
}

func TestMintRejectsInvalidURLs(t *testing.T) {
	minter, _ := newTestMinter(t)
	ctx := context.Background()

	for _, u := range []string{
		"",
		"not a url",
		"ftp://cdn.example.com/file",
		"/relative/path/master.m3u8",
		"https://",
	} {
		_, err := minter.Mint(ctx, u)
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q", u)
	}
}

func TestMintIsNotDeduplicated(t *testing.T) {
	minter, _ := newTestMinter(t)
	ctx := context.Background()

	origin := "https://cdn.example.com/hls/720/master.m3u8"
	a, err := minter.Mint(ctx, origin)
	require.NoError(t, err)
	b, err := minter.Mint(ctx, origin)
	require.NoError(t, err)

	assert.NotEqual(t, a.Token, b.Token)
}
