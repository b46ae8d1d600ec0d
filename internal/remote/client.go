// Package remote talks to the GitHub contents and commits API on behalf of the sync
// engine. Successful reads are cached on disk; writes go straight through.
package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v82/github"
	"github.com/kilupskalvis/blocksync/internal/models"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout bounds every remote call.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent identifies the tool to the remote API.
	DefaultUserAgent = "blocksync"
)

// RemoteClient defines the contract for reading and writing repository content.
type RemoteClient interface {
	ListDirectory(ctx context.Context, owner, repo, path, branch string) ([]DirEntry, error)
	GetFile(ctx context.Context, owner, repo, path, branch string) ([]byte, error)
	GetFileWithSHA(ctx context.Context, owner, repo, path, branch string) ([]byte, string, error)
	FileExists(ctx context.Context, owner, repo, path, branch string) (bool, error)
	PathExists(ctx context.Context, owner, repo, path, branch string) (bool, error)
	TestConnection(ctx context.Context, owner, repo, branch string) bool
	PutFile(ctx context.Context, owner, repo, path string, content []byte, message, branch string) (*models.CommitResult, error)
	LastCommit(ctx context.Context, owner, repo, path, branch string) *models.CommitInfo
	ClearRepositoryCache(owner, repo string) error
}

// EntryType distinguishes files from directories in a listing.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// DirEntry is an immediate child of a listed directory.
type DirEntry struct {
	Type EntryType
	Name string
	Path string
	Size int
}

// Options configures a GitHubClient.
type Options struct {
	Token     string
	BaseURL   string // defaults to https://api.github.com/
	Timeout   time.Duration
	UserAgent string
	Cache     *Cache // nil disables response caching
	Logger    *slog.Logger
	Transport http.RoundTripper // defaults to http.DefaultTransport
}

// GitHubClient implements RemoteClient using go-github.
type GitHubClient struct {
	gh     *github.Client
	cache  *Cache
	logger *slog.Logger
}

// NewGitHubClient builds an authenticated client. An empty token issues
// unauthenticated requests.
func NewGitHubClient(opts Options) (*GitHubClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var rt http.RoundTripper = http.DefaultTransport
	if opts.Transport != nil {
		rt = opts.Transport
	}
	if opts.Cache != nil {
		rt = &cachingTransport{cache: opts.Cache, base: rt, logger: logger}
	}
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		rt = &oauth2.Transport{Source: ts, Base: rt}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	gh := github.NewClient(&http.Client{Transport: rt, Timeout: timeout})

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid api url: %w", err)
		}
		gh.BaseURL = u
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	gh.UserAgent = ua

	return &GitHubClient{gh: gh, cache: opts.Cache, logger: logger}, nil
}

// ListDirectory returns the immediate children of path.
func (c *GitHubClient) ListDirectory(ctx context.Context, owner, repo, path, branch string) ([]DirEntry, error) {
	file, dir, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, refOpts(branch))
	if err != nil {
		return nil, classifyError("list directory", path, err)
	}
	if file != nil {
		return nil, &NotFoundError{Path: path}
	}

	entries := make([]DirEntry, 0, len(dir))
	for _, e := range dir {
		entries = append(entries, DirEntry{
			Type: EntryType(e.GetType()),
			Name: e.GetName(),
			Path: e.GetPath(),
			Size: e.GetSize(),
		})
	}
	return entries, nil
}

// GetFile fetches and decodes a single file.
func (c *GitHubClient) GetFile(ctx context.Context, owner, repo, path, branch string) ([]byte, error) {
	data, _, err := c.GetFileWithSHA(ctx, owner, repo, path, branch)
	return data, err
}

// GetFileWithSHA fetches a file along with its blob sha.
func (c *GitHubClient) GetFileWithSHA(ctx context.Context, owner, repo, path, branch string) ([]byte, string, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, refOpts(branch))
	if err != nil {
		return nil, "", classifyError("get file", path, err)
	}
	if file == nil || file.GetType() == string(EntryDir) {
		return nil, "", &NotFoundError{Path: path}
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, "", &MalformedResponseError{Op: "get file", Err: err}
	}
	return []byte(content), file.GetSHA(), nil
}

// FileExists reports whether path is an existing file.
func (c *GitHubClient) FileExists(ctx context.Context, owner, repo, path, branch string) (bool, error) {
	_, err := c.GetFile(ctx, owner, repo, path, branch)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PathExists reports whether path exists as either a file or a directory.
func (c *GitHubClient) PathExists(ctx context.Context, owner, repo, path, branch string) (bool, error) {
	_, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, refOpts(branch))
	if err == nil {
		return true, nil
	}
	err = classifyError("stat path", path, err)
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// TestConnection reports whether the repository is reachable with the configured
// credentials.
func (c *GitHubClient) TestConnection(ctx context.Context, owner, repo, branch string) bool {
	if _, _, err := c.gh.Repositories.Get(ctx, owner, repo); err != nil {
		c.logger.Debug("connection test failed", "repo", models.RepositoryKey(owner, repo), "error", err)
		return false
	}
	return true
}

// PutFile creates or updates path. The current blob sha is read first, bypassing
// the cache, and sent along when the file already exists.
func (c *GitHubClient) PutFile(ctx context.Context, owner, repo, path string, content []byte, message, branch string) (*models.CommitResult, error) {
	_, sha, err := c.GetFileWithSHA(WithoutCache(ctx), owner, repo, path, branch)
	if err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: content,
	}
	if branch != "" {
		opts.Branch = github.Ptr(branch)
	}

	var resp *github.RepositoryContentResponse
	if sha != "" {
		opts.SHA = github.Ptr(sha)
		resp, _, err = c.gh.Repositories.UpdateFile(ctx, owner, repo, path, opts)
	} else {
		resp, _, err = c.gh.Repositories.CreateFile(ctx, owner, repo, path, opts)
	}
	if err != nil {
		return nil, classifyError("put file", path, err)
	}

	result := &models.CommitResult{Path: path, Created: sha == ""}
	if resp != nil {
		result.ContentSHA = resp.GetContent().GetSHA()
		result.CommitSHA = resp.Commit.GetSHA()
	}

	c.logger.Debug("file written", "repo", models.RepositoryKey(owner, repo), "path", path, "created", result.Created)
	return result, nil
}

// LastCommit returns the newest commit touching path, or nil when it cannot be
// determined. Failures are logged, never returned.
func (c *GitHubClient) LastCommit(ctx context.Context, owner, repo, path, branch string) *models.CommitInfo {
	opts := &github.CommitsListOptions{
		SHA:         branch,
		Path:        path,
		ListOptions: github.ListOptions{PerPage: 1},
	}

	commits, _, err := c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
	if err != nil {
		c.logger.Debug("last commit lookup failed", "path", path, "error", classifyError("list commits", path, err))
		return nil
	}
	if len(commits) == 0 {
		return nil
	}

	head := commits[0]
	info := &models.CommitInfo{
		SHA:     head.GetSHA(),
		Message: head.GetCommit().GetMessage(),
	}
	if date := head.GetCommit().GetCommitter().GetDate(); !date.IsZero() {
		info.Date = date.Time
	}
	if info.SHA == "" {
		return nil
	}
	return info
}

// ClearCache removes every cached response.
func (c *GitHubClient) ClearCache() (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	return c.cache.Clear()
}

// ClearRepositoryCache removes cached responses belonging to one repository.
func (c *GitHubClient) ClearRepositoryCache(owner, repo string) error {
	if c.cache == nil {
		return nil
	}
	n, err := c.cache.ClearScope(ScopeFor(owner, repo))
	if err != nil {
		return err
	}
	c.logger.Debug("repository cache cleared", "repo", models.RepositoryKey(owner, repo), "entries", n)
	return nil
}

// CacheStats reports the size of the response cache.
func (c *GitHubClient) CacheStats() (CacheStats, error) {
	if c.cache == nil {
		return CacheStats{}, nil
	}
	return c.cache.Stats()
}

func refOpts(branch string) *github.RepositoryContentGetOptions {
	if branch == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: branch}
}
