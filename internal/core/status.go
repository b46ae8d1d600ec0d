package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/blocksync/internal/cms"
	"github.com/kilupskalvis/blocksync/internal/models"
)

// ItemStatus is the sync state of one remote item.
type ItemStatus struct {
	Item      models.Item
	Status    models.Status
	Entity    *cms.Entity // matched local row, nil for classes and new items
	MatchedBy models.MatchedBy
	Record    *models.InstalledRecord
	Update    *models.UpdateCheck
}

// Match is the local entity found for a remote item and the predicate that found it.
type Match struct {
	Entity    *cms.Entity
	MatchedBy models.MatchedBy
}

// Found reports whether a local entity was located.
func (m Match) Found() bool {
	return m.Entity != nil
}

// match locates the local entity for an item: by key when the schema has a key
// column and the item declares one, otherwise by display name.
func (e *Engine) match(ctx context.Context, kind models.ItemKind, key, name string) (Match, error) {
	if key != "" && e.caps.HasKey(kind) {
		ent, err := e.entities.FindByKey(ctx, kind, key)
		if err != nil {
			return Match{}, fmt.Errorf("find %s by key: %w", kind, err)
		}
		if ent != nil {
			return Match{Entity: ent, MatchedBy: models.MatchedByKey}, nil
		}
	}

	if name != "" {
		ent, err := e.entities.FindByName(ctx, kind, name)
		if err != nil {
			return Match{}, fmt.Errorf("find %s by name: %w", kind, err)
		}
		if ent != nil {
			return Match{Entity: ent, MatchedBy: models.MatchedByName}, nil
		}
	}

	return Match{}, nil
}

// registryKey is the key an item is tracked under: its stable key, else its slug.
func registryKey(key, slug string) string {
	if key != "" {
		return key
	}
	return slug
}

// ListItems returns the status of every module or template in a repository.
func (e *Engine) ListItems(ctx context.Context, kind models.ItemKind, repoKey string) ([]*ItemStatus, error) {
	if kind == models.KindClass {
		return e.ListClasses(ctx, repoKey)
	}

	repo, err := e.repository(repoKey)
	if err != nil {
		return nil, err
	}
	names, err := e.itemNames(ctx, repo, kind)
	if err != nil {
		return nil, err
	}

	statuses := make([]*ItemStatus, 0, len(names))
	for _, name := range names {
		item := e.resolver.Resolve(ctx, repo, kind, name)
		st, err := e.itemStatus(ctx, item, "")
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// Status returns the status of a single module or template.
func (e *Engine) Status(ctx context.Context, kind models.ItemKind, repoKey, name, explicitKey string) (*ItemStatus, error) {
	repo, err := e.repository(repoKey)
	if err != nil {
		return nil, err
	}
	if kind == models.KindClass {
		return e.classStatus(ctx, repo, name)
	}
	item, err := e.findItem(ctx, repo, kind, name)
	if err != nil {
		return nil, err
	}
	return e.itemStatus(ctx, item, explicitKey)
}

func (e *Engine) itemStatus(ctx context.Context, item models.Item, explicitKey string) (*ItemStatus, error) {
	md := item.Base()
	key := explicitKey
	if key == "" {
		key = md.Key
	}

	m, err := e.match(ctx, md.Kind, key, md.Title)
	if err != nil {
		return nil, err
	}

	st := &ItemStatus{Item: item, Status: models.StatusNew, Entity: m.Entity, MatchedBy: m.MatchedBy}
	if !m.Found() {
		return st, nil
	}
	st.Status = models.StatusInstalled

	if key == "" {
		key = m.Entity.Key
	}
	if err := e.attachUpdateCheck(ctx, st, md.Kind, registryKey(key, md.Name)); err != nil {
		return nil, err
	}
	return st, nil
}

func (e *Engine) attachUpdateCheck(ctx context.Context, st *ItemStatus, kind models.ItemKind, key string) error {
	rec, err := e.registry.GetInstallation(kind, key)
	if err != nil {
		return fmt.Errorf("get installation: %w", err)
	}
	if rec == nil {
		return nil
	}
	st.Record = rec

	check, err := e.registry.CheckForUpdate(ctx, kind, key, e.remote)
	if err != nil {
		return fmt.Errorf("check for update: %w", err)
	}
	st.Update = check
	if check.Available {
		st.Status = models.StatusUpdateAvailable
	}
	return nil
}
