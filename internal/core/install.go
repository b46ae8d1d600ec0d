package core

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/kilupskalvis/blocksync/internal/cms"
	"github.com/kilupskalvis/blocksync/internal/metadata"
	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/kilupskalvis/blocksync/internal/remote"
)

// InstallResult describes a completed install or update.
type InstallResult struct {
	Kind      models.ItemKind
	Name      string // slug
	Title     string
	Key       string
	EntityID  int64
	MatchedBy models.MatchedBy
	Assets    int
	Commit    *models.CommitInfo
}

// Install adds a module or template from a repository as a new local entity.
// It refuses to touch an existing entity; use Update for that.
func (e *Engine) Install(ctx context.Context, kind models.ItemKind, repoKey, name, explicitKey string) (*InstallResult, error) {
	if kind == models.KindClass {
		return e.InstallClass(ctx, repoKey, name)
	}

	repo, err := e.repository(repoKey)
	if err != nil {
		return nil, err
	}
	item, err := e.findItem(ctx, repo, kind, name)
	if err != nil {
		return nil, err
	}
	md := item.Base()
	key := explicitKey
	if key == "" {
		key = md.Key
	}

	m, err := e.match(ctx, kind, key, md.Title)
	if err != nil {
		return nil, err
	}
	if m.Found() {
		return nil, &AlreadyExistsError{Kind: kind, Name: md.Title, MatchedBy: m.MatchedBy}
	}

	ent, err := e.fetchEntity(ctx, repo, md, key)
	if err != nil {
		return nil, err
	}
	id, err := e.entities.Insert(ctx, ent)
	if err != nil {
		return nil, fmt.Errorf("install %s '%s': %w", kind, md.Title, err)
	}

	res := &InstallResult{Kind: kind, Name: md.Name, Title: md.Title, Key: key, EntityID: id}
	if md.HasAssets {
		res.Assets = e.installAssets(ctx, repo, md, registryKey(key, md.Name))
	}

	res.Commit = e.remote.LastCommit(ctx, repo.Owner, repo.Repo, md.Path(), repo.Branch)
	if err := e.registry.SaveInstallation(kind, registryKey(key, md.Name), md.Title, origin(repo, md.Path()), res.Commit); err != nil {
		return nil, fmt.Errorf("record installation: %w", err)
	}

	e.invalidateRenderCache()
	e.logger.Info("installed", "kind", kind, "name", md.Title, "key", key, "repo", repo.Key())
	return res, nil
}

// Update overwrites the content of an installed module or template in place. The
// row is addressed by the same predicate that found it, so a key match never
// changes the key.
func (e *Engine) Update(ctx context.Context, kind models.ItemKind, repoKey, name, explicitKey string) (*InstallResult, error) {
	if kind == models.KindClass {
		return e.UpdateClass(ctx, repoKey, name)
	}

	repo, err := e.repository(repoKey)
	if err != nil {
		return nil, err
	}
	item, err := e.findItem(ctx, repo, kind, name)
	if err != nil {
		return nil, err
	}
	md := item.Base()
	key := explicitKey
	if key == "" {
		key = md.Key
	}

	m, err := e.match(ctx, kind, key, md.Title)
	if err != nil {
		return nil, err
	}
	if !m.Found() {
		return nil, &NotInstalledError{Kind: kind, Name: md.Title}
	}
	if key == "" {
		key = m.Entity.Key
	}

	ent, err := e.fetchEntity(ctx, repo, md, key)
	if err != nil {
		return nil, err
	}
	ent.ID = m.Entity.ID
	if m.MatchedBy == models.MatchedByKey {
		ent.Key = m.Entity.Key
	}
	if err := e.entities.Update(ctx, ent, m.MatchedBy); err != nil {
		return nil, fmt.Errorf("update %s '%s': %w", kind, md.Title, err)
	}

	res := &InstallResult{Kind: kind, Name: md.Name, Title: md.Title, Key: key, EntityID: ent.ID, MatchedBy: m.MatchedBy}
	if md.HasAssets {
		res.Assets = e.installAssets(ctx, repo, md, registryKey(key, md.Name))
	}

	res.Commit = e.remote.LastCommit(ctx, repo.Owner, repo.Repo, md.Path(), repo.Branch)
	if err := e.registry.SaveInstallation(kind, registryKey(key, md.Name), md.Title, origin(repo, md.Path()), res.Commit); err != nil {
		e.logger.Warn("could not refresh installation record", "kind", kind, "key", key, "error", err)
	}

	e.invalidateRenderCache()
	e.logger.Info("updated", "kind", kind, "name", md.Title, "matched_by", m.MatchedBy, "repo", repo.Key())
	return res, nil
}

// fetchEntity reads the content files of an item. Module input and output are
// optional; the template body is required.
func (e *Engine) fetchEntity(ctx context.Context, repo *models.Repository, md *models.Metadata, key string) (*cms.Entity, error) {
	ent := &cms.Entity{Kind: md.Kind, Name: md.Title, Key: key}
	dir := md.Path()

	switch md.Kind {
	case models.KindModule:
		var err error
		if ent.Input, err = e.optionalFile(ctx, repo, dir+"/"+metadata.InputFile); err != nil {
			return nil, err
		}
		if ent.Output, err = e.optionalFile(ctx, repo, dir+"/"+metadata.OutputFile); err != nil {
			return nil, err
		}
	case models.KindTemplate:
		data, err := e.remote.GetFile(ctx, repo.Owner, repo.Repo, dir+"/"+metadata.TemplateFile, repo.Branch)
		if err != nil {
			return nil, fmt.Errorf("template file: %w", err)
		}
		ent.Content = string(data)
	default:
		return nil, fmt.Errorf("unsupported kind %q", md.Kind)
	}
	return ent, nil
}

func (e *Engine) optionalFile(ctx context.Context, repo *models.Repository, p string) (string, error) {
	data, err := e.remote.GetFile(ctx, repo.Owner, repo.Repo, p, repo.Branch)
	if err != nil {
		if remote.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("fetch %s: %w", p, err)
	}
	return string(data), nil
}

// installAssets copies the remote assets directory of an item into the asset
// tree. Individual failures are logged and skipped; the number of copied files
// is returned.
func (e *Engine) installAssets(ctx context.Context, repo *models.Repository, md *models.Metadata, key string) int {
	if e.assets == nil {
		return 0
	}
	root := md.Path() + "/" + metadata.AssetsDir
	return e.copyAssetDir(ctx, repo, md.Kind, key, root, root)
}

func (e *Engine) copyAssetDir(ctx context.Context, repo *models.Repository, kind models.ItemKind, key, root, dir string) int {
	entries, err := e.remote.ListDirectory(ctx, repo.Owner, repo.Repo, dir, repo.Branch)
	if err != nil {
		e.logger.Warn("could not list assets", "path", dir, "error", err)
		return 0
	}

	copied := 0
	for _, entry := range entries {
		p := entry.Path
		if p == "" {
			p = path.Join(dir, entry.Name)
		}
		switch entry.Type {
		case remote.EntryDir:
			copied += e.copyAssetDir(ctx, repo, kind, key, root, p)
		case remote.EntryFile:
			data, err := e.remote.GetFile(ctx, repo.Owner, repo.Repo, p, repo.Branch)
			if err != nil {
				e.logger.Warn("could not fetch asset", "path", p, "error", err)
				continue
			}
			rel := strings.TrimPrefix(p, root+"/")
			if err := e.assets.WriteFile(kind, key, rel, data); err != nil {
				e.logger.Warn("could not write asset", "path", rel, "error", err)
				continue
			}
			copied++
		}
	}
	return copied
}
