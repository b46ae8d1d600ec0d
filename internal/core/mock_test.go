package core

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kilupskalvis/blocksync/internal/cms"
	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/kilupskalvis/blocksync/internal/remote"
	"github.com/kilupskalvis/blocksync/internal/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// mockRemote implements remote.RemoteClient over an in-memory repository tree.
type mockRemote struct {
	mu sync.Mutex

	files       map[string]string // "owner/repo/path" -> content
	commits     map[string]*models.CommitInfo
	unreachable bool
	getErr      map[string]error
	putErr      map[string]error

	puts         []string // paths written
	clearedRepos []string
}

func newMockRemote() *mockRemote {
	return &mockRemote{
		files:   make(map[string]string),
		commits: make(map[string]*models.CommitInfo),
		getErr:  make(map[string]error),
		putErr:  make(map[string]error),
	}
}

func full(owner, repo, p string) string {
	return owner + "/" + repo + "/" + strings.Trim(p, "/")
}

func (m *mockRemote) setFile(owner, repo, p, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[full(owner, repo, p)] = content
}

func (m *mockRemote) file(owner, repo, p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[full(owner, repo, p)]
	return c, ok
}

func (m *mockRemote) setCommit(owner, repo, p, sha string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits[full(owner, repo, p)] = &models.CommitInfo{SHA: sha, Date: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), Message: "commit " + sha}
}

func (m *mockRemote) putPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.puts...)
}

func (m *mockRemote) ListDirectory(_ context.Context, owner, repo, p, _ string) ([]remote.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := full(owner, repo, p) + "/"
	seen := make(map[string]remote.EntryType)
	for k := range m.files {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		name, _, isDir := strings.Cut(rest, "/")
		if isDir {
			seen[name] = remote.EntryDir
		} else if _, ok := seen[name]; !ok {
			seen[name] = remote.EntryFile
		}
	}
	if len(seen) == 0 {
		return nil, &remote.NotFoundError{Path: p}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)

	entries := make([]remote.DirEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, remote.DirEntry{Type: seen[n], Name: n, Path: path.Join(strings.Trim(p, "/"), n)})
	}
	return entries, nil
}

func (m *mockRemote) GetFile(ctx context.Context, owner, repo, p, branch string) ([]byte, error) {
	data, _, err := m.GetFileWithSHA(ctx, owner, repo, p, branch)
	return data, err
}

func (m *mockRemote) GetFileWithSHA(_ context.Context, owner, repo, p, _ string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[p]; err != nil {
		return nil, "", err
	}
	c, ok := m.files[full(owner, repo, p)]
	if !ok {
		return nil, "", &remote.NotFoundError{Path: p}
	}
	return []byte(c), "sha-" + p, nil
}

func (m *mockRemote) FileExists(ctx context.Context, owner, repo, p, branch string) (bool, error) {
	_, err := m.GetFile(ctx, owner, repo, p, branch)
	if remote.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (m *mockRemote) PathExists(ctx context.Context, owner, repo, p, branch string) (bool, error) {
	if ok, err := m.FileExists(ctx, owner, repo, p, branch); ok || err != nil {
		return ok, err
	}
	_, err := m.ListDirectory(ctx, owner, repo, p, branch)
	if remote.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (m *mockRemote) TestConnection(_ context.Context, _, _, _ string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unreachable
}

func (m *mockRemote) PutFile(_ context.Context, owner, repo, p string, content []byte, _, _ string) (*models.CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.putErr[p]; err != nil {
		return nil, err
	}
	_, existed := m.files[full(owner, repo, p)]
	m.files[full(owner, repo, p)] = string(content)
	m.puts = append(m.puts, p)
	return &models.CommitResult{Path: p, ContentSHA: "c-" + p, CommitSHA: "k-" + p, Created: !existed}, nil
}

func (m *mockRemote) LastCommit(_ context.Context, owner, repo, p, _ string) *models.CommitInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits[full(owner, repo, p)]
}

func (m *mockRemote) ClearRepositoryCache(owner, repo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearedRepos = append(m.clearedRepos, owner+"/"+repo)
	return nil
}

// countingRenderCache records invalidations.
type countingRenderCache struct {
	calls int
}

func (c *countingRenderCache) Invalidate() error {
	c.calls++
	return nil
}

// shortWriteFs fails the next writes to failPath after writing half of the data.
type shortWriteFs struct {
	afero.Fs
	failPath string
	failures int
}

func (f *shortWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	if name == f.failPath && flag&(os.O_WRONLY|os.O_RDWR) != 0 && f.failures > 0 {
		f.failures--
		return &shortWriteFile{File: file}, nil
	}
	return file, nil
}

type shortWriteFile struct {
	afero.File
}

func (s *shortWriteFile) Write(p []byte) (int, error) {
	n, _ := s.File.Write(p[:len(p)/2])
	return n, errors.New("no space left on device")
}

// testEnv wires an Engine to a mock remote, real stores and in-memory trees.
type testEnv struct {
	engine   *Engine
	remote   *mockRemote
	registry *store.Store
	repos    *store.RepoStore
	entities *cms.SQLEntityStore
	fs       afero.Fs
	classes  *cms.ClassTree
	assets   *cms.AssetTree
	render   *countingRenderCache
	upload   UploadTarget
	now      time.Time
}

type envOption func(*testEnv)

func withFs(fs afero.Fs) envOption {
	return func(env *testEnv) { env.fs = fs }
}

func withUploadTarget(target UploadTarget) envOption {
	return func(env *testEnv) { env.upload = target }
}

func withCapabilities(caps cms.Capabilities) envOption {
	return func(env *testEnv) { env.entities = cms.NewSQLEntityStore(env.registry.DB(), caps) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()

	st, err := store.New(filepath.Join(dir, "cms.db"))
	require.NoError(t, err)
	require.NoError(t, st.RunMigrations(context.Background()))
	t.Cleanup(func() { st.Close() })

	repos, err := store.NewRepoStore(filepath.Join(dir, "repos.db"))
	require.NoError(t, err)
	require.NoError(t, repos.Initialize())
	t.Cleanup(func() { repos.Close() })

	caps, err := cms.DetectCapabilities(context.Background(), st.DB())
	require.NoError(t, err)

	env := &testEnv{
		remote:   newMockRemote(),
		registry: st,
		repos:    repos,
		entities: cms.NewSQLEntityStore(st.DB(), caps),
		fs:       afero.NewMemMapFs(),
		render:   &countingRenderCache{},
		upload:   UploadTarget{Author: "Jo Tester"},
		now:      time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(env)
	}
	env.classes = cms.NewClassTree(env.fs, "/project/classes")
	env.assets = cms.NewAssetTree(env.fs, "/public/assets")

	env.engine = NewEngine(Deps{
		Remote:       env.remote,
		Registry:     st,
		Repositories: repos,
		Entities:     env.entities,
		Capabilities: env.entities.Capabilities(),
		Classes:      env.classes,
		Assets:       env.assets,
		RenderCache:  env.render,
		Upload:       env.upload,
		Now:          func() time.Time { return env.now },
	})
	return env
}

// addRepo registers acme/blocks@main as the default repository.
func (env *testEnv) addRepo(t *testing.T) {
	t.Helper()
	_, err := env.engine.AddRepository(context.Background(), "acme", "blocks", "", "")
	require.NoError(t, err)
}

// seedHero puts the hero module into acme/blocks.
func (env *testEnv) seedHero() {
	env.remote.setFile("acme", "blocks", "modules/hero/input.php", "<?php /** Hero input */ ?>")
	env.remote.setFile("acme", "blocks", "modules/hero/output.php", "<section>hero</section>")
	env.remote.setFile("acme", "blocks", "modules/hero/config.yml", "title: \"Hero\"\ndescription: Big banner\n")
}
