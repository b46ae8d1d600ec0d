package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/blocksync/internal/models"
)

// AddRepository registers a repository after checking it can be reached. The
// display name defaults to the repository name and the branch to main. The first
// repository added becomes the default.
func (e *Engine) AddRepository(ctx context.Context, owner, repo, displayName, branch string) (*models.Repository, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repository name are required")
	}
	if displayName == "" {
		displayName = repo
	}
	if branch == "" {
		branch = models.DefaultBranch
	}

	key := models.RepositoryKey(owner, repo)
	existing, err := e.repos.GetRepository(key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("repository '%s' already exists", key)
	}

	if !e.remote.TestConnection(ctx, owner, repo, branch) {
		return nil, fmt.Errorf("cannot reach repository '%s' (branch %s)", key, branch)
	}

	r := &models.Repository{Owner: owner, Repo: repo, DisplayName: displayName, Branch: branch, AddedAt: e.now().UTC()}
	if err := e.repos.AddRepository(r); err != nil {
		return nil, err
	}

	def, err := e.repos.DefaultRepository()
	if err != nil {
		return nil, err
	}
	if def == "" {
		if err := e.repos.SetDefaultRepository(key); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// UpdateRepository changes the display name and branch of a repository. Empty
// values keep the current setting. The new branch must be reachable.
func (e *Engine) UpdateRepository(ctx context.Context, key, displayName, branch string) (*models.Repository, error) {
	r, err := e.repos.GetRepository(key)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &RepositoryNotFoundError{Key: key}
	}
	if displayName == "" {
		displayName = r.DisplayName
	}
	if branch == "" {
		branch = r.Branch
	}

	if !e.remote.TestConnection(ctx, r.Owner, r.Repo, branch) {
		return nil, fmt.Errorf("cannot reach repository '%s' (branch %s)", key, branch)
	}
	if err := e.repos.UpdateRepository(key, displayName, branch); err != nil {
		return nil, err
	}
	r.DisplayName, r.Branch = displayName, branch
	return r, nil
}

// RemoveRepository deletes a repository and purges its cached responses.
// Installation records made from it are kept.
func (e *Engine) RemoveRepository(key string) error {
	r, err := e.repos.GetRepository(key)
	if err != nil {
		return err
	}
	if r == nil {
		return &RepositoryNotFoundError{Key: key}
	}
	if err := e.repos.RemoveRepository(key); err != nil {
		return err
	}
	if err := e.remote.ClearRepositoryCache(r.Owner, r.Repo); err != nil {
		e.logger.Warn("could not clear repository cache", "repo", key, "error", err)
	}
	return nil
}

// ListRepositories returns the configured repositories sorted by key.
func (e *Engine) ListRepositories() ([]*models.Repository, error) {
	return e.repos.ListRepositories()
}

// Repository returns one configured repository.
func (e *Engine) Repository(key string) (*models.Repository, error) {
	return e.repository(key)
}

// TestRepository reports whether a configured repository can be reached.
func (e *Engine) TestRepository(ctx context.Context, key string) (bool, error) {
	r, err := e.repository(key)
	if err != nil {
		return false, err
	}
	return e.remote.TestConnection(ctx, r.Owner, r.Repo, r.Branch), nil
}

// SetDefaultRepository selects the repository used when a command names none.
func (e *Engine) SetDefaultRepository(key string) error {
	if _, err := e.repository(key); err != nil {
		return err
	}
	return e.repos.SetDefaultRepository(key)
}

// DefaultRepository returns the default repository key, or "".
func (e *Engine) DefaultRepository() (string, error) {
	return e.repos.DefaultRepository()
}
