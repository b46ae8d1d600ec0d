package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndLoad(t *testing.T) {
	t.Setenv(TokenEnv, "")
	dir := t.TempDir()

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Dir), cfg.Path())
	assert.DirExists(t, cfg.CachePath())

	_, err = Initialize(dir)
	assert.ErrorContains(t, err, "already exists")

	loaded, err := LoadFrom(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, loaded.APIURL)
	assert.Equal(t, time.Hour, loaded.CacheTTL())
	assert.Equal(t, 30*time.Second, loaded.Timeout())
	assert.Equal(t, filepath.Join(dir, Dir, "cms.db"), loaded.DatabasePath())
	assert.Equal(t, filepath.Join(dir, Dir, ReposFile), loaded.ReposPath())
	assert.Equal(t, filepath.Join(dir, "classes"), loaded.ClassPath())
	assert.Equal(t, filepath.Join(dir, "assets"), loaded.AssetPath())
	assert.Equal(t, filepath.Join(dir, "render-cache"), loaded.RenderCachePath())
	assert.Equal(t, DefaultBranch, loaded.Upload.Branch)
}

func TestFindRootFrom(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir)
	require.NoError(t, err)

	nested := filepath.Join(dir, "site", "theme")
	require.NoError(t, os.MkdirAll(nested, 0755))

	root, err := FindRootFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Dir), root)

	_, err = FindRootFrom(t.TempDir())
	assert.ErrorContains(t, err, "not a blocksync project")
}

func TestLoad_CacheLifetimeFloorAndAbsolutePaths(t *testing.T) {
	t.Setenv(TokenEnv, "")
	dir := t.TempDir()
	path := filepath.Join(dir, Dir)
	require.NoError(t, os.MkdirAll(path, 0755))

	content := `
cache_lifetime = 10
database = "/var/lib/cms/site.db"
class_dir = "lib/classes"

[upload]
owner = "acme"
repo = "exports"
`
	require.NoError(t, os.WriteFile(filepath.Join(path, ConfigFile), []byte(content), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, MinCacheLifetime, cfg.CacheLifetime)
	assert.Equal(t, "/var/lib/cms/site.db", cfg.DatabasePath())
	assert.Equal(t, filepath.Join(dir, "lib", "classes"), cfg.ClassPath())
	assert.Equal(t, filepath.Join(dir, "assets"), cfg.AssetPath(), "unset keys keep defaults")
	assert.Equal(t, Upload{Owner: "acme", Repo: "exports", Branch: DefaultBranch}, cfg.Upload)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), Dir)
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, ConfigFile), []byte("cache_lifetime = ["), 0644))

	_, err := LoadFrom(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestToken_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Initialize(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Set("github_token", "stored"))
	require.NoError(t, cfg.Save())

	t.Setenv(TokenEnv, "")
	loaded, err := LoadFrom(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, "stored", loaded.Token())
	assert.False(t, loaded.TokenFromEnv())

	t.Setenv(TokenEnv, "from-env")
	loaded, err = LoadFrom(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, "from-env", loaded.Token())
	assert.True(t, loaded.TokenFromEnv())

	// The override is never written back.
	require.NoError(t, loaded.Save())
	data, err := os.ReadFile(filepath.Join(cfg.Path(), ConfigFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "stored")
	assert.NotContains(t, string(data), "from-env")
}

func TestToken_DotEnvFile(t *testing.T) {
	t.Setenv(TokenEnv, "")
	os.Unsetenv(TokenEnv)
	dir := t.TempDir()
	cfg, err := Initialize(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFile), []byte(TokenEnv+"=dotenv-token\n"), 0600))

	loaded, err := LoadFrom(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, "dotenv-token", loaded.Token())
}

func TestSetAndGet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("upload.author", "Jo"))
	v, err := cfg.Get("upload.author")
	require.NoError(t, err)
	assert.Equal(t, "Jo", v)

	require.NoError(t, cfg.Set("cache_lifetime", "60"))
	assert.Equal(t, MinCacheLifetime, cfg.CacheLifetime)

	require.NoError(t, cfg.Set("http_timeout", "5"))
	assert.Equal(t, 5*time.Second, cfg.Timeout())

	assert.Error(t, cfg.Set("http_timeout", "soon"))
	assert.Error(t, cfg.Set("cache_lifetime", "-1"))
	assert.ErrorContains(t, cfg.Set("colour", "blue"), "unknown config key")

	_, err = cfg.Get("colour")
	assert.Error(t, err)

	for _, k := range Keys() {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}
