package remote

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_RoundTrip(t *testing.T) {
	c := newMemCache(t)
	scope := ScopeFor("acme", "blocks")
	key := CacheKey("https://api.github.com/repos/acme/blocks/contents/modules", "tok")
	payload := []byte(`[{"type":"dir","name":"hero"}]`)

	require.NoError(t, c.Put(scope, key, payload))

	got, ok := c.Get(scope, key)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestCache_Expiry(t *testing.T) {
	c := newMemCache(t)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start }

	scope := ScopeFor("acme", "blocks")
	key := CacheKey("https://api.github.com/repos/acme/blocks", "")
	require.NoError(t, c.Put(scope, key, []byte(`{}`)))

	c.now = func() time.Time { return start.Add(DefaultCacheLifetime - time.Second) }
	_, ok := c.Get(scope, key)
	assert.True(t, ok, "entry should be fresh just before the lifetime elapses")

	c.now = func() time.Time { return start.Add(DefaultCacheLifetime) }
	_, ok = c.Get(scope, key)
	assert.False(t, ok, "entry should expire once the lifetime has elapsed")
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c, err := NewCache(fsys, "/cache", DefaultCacheLifetime)
	require.NoError(t, err)

	scope := ScopeFor("acme", "blocks")
	key := CacheKey("https://api.github.com/repos/acme/blocks", "")
	require.NoError(t, c.Put(scope, key, []byte(`{"ok":true}`)))

	require.NoError(t, afero.WriteFile(fsys, c.entryPath(scope, key), []byte(`{"trunc`), 0644))

	_, ok := c.Get(scope, key)
	assert.False(t, ok)
}

func TestCache_MissingEntry(t *testing.T) {
	c := newMemCache(t)

	_, ok := c.Get(globalScope, CacheKey("https://api.github.com/rate_limit", ""))
	assert.False(t, ok)
}

func TestCache_ClearScope(t *testing.T) {
	c := newMemCache(t)
	acme := ScopeFor("acme", "blocks")
	other := ScopeFor("other", "repo")

	require.NoError(t, c.Put(acme, CacheKey("a1", ""), []byte(`1`)))
	require.NoError(t, c.Put(acme, CacheKey("a2", ""), []byte(`2`)))
	require.NoError(t, c.Put(other, CacheKey("o1", ""), []byte(`3`)))

	n, err := c.ClearScope(acme)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := c.Get(other, CacheKey("o1", ""))
	assert.True(t, ok)
	_, ok = c.Get(acme, CacheKey("a1", ""))
	assert.False(t, ok)
}

func TestCache_ClearAndStats(t *testing.T) {
	c := newMemCache(t)
	require.NoError(t, c.Put(globalScope, CacheKey("x", ""), []byte(`{"a":1}`)))
	require.NoError(t, c.Put(globalScope, CacheKey("y", ""), []byte(`[1,2,3]`)))

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, int64(14), stats.Bytes)
	assert.Equal(t, "14 B", stats.HumanSize())

	n, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err = c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Files)
}

func TestCache_OnDisk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	c, err := NewCache(afero.NewOsFs(), root, time.Hour)
	require.NoError(t, err)

	key := CacheKey("https://api.github.com/repos/acme/blocks", "tok")
	require.NoError(t, c.Put(ScopeFor("acme", "blocks"), key, []byte(`{"name":"blocks"}`)))

	got, ok := c.Get(ScopeFor("acme", "blocks"), key)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"blocks"}`, string(got))
}

func TestScopeFor_CaseInsensitive(t *testing.T) {
	assert.Equal(t, ScopeFor("Acme", "Blocks"), ScopeFor("acme", "blocks"))
	assert.NotEqual(t, ScopeFor("acme", "blocks"), ScopeFor("acme", "other"))
	assert.Equal(t, globalScope, ScopeFor("", ""))
}

func TestRepoFromPath(t *testing.T) {
	tests := []struct {
		path        string
		owner, repo string
	}{
		{"/repos/acme/blocks/contents/modules", "acme", "blocks"},
		{"/api/v3/repos/acme/blocks", "acme", "blocks"},
		{"/rate_limit", "", ""},
		{"/repos/acme", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			owner, repo := repoFromPath(tt.path)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}
