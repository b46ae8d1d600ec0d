package core

import (
	"context"
	"fmt"
	"time"

	"github.com/kilupskalvis/blocksync/internal/models"
)

// UpdateReport pairs an installation record with its update check.
type UpdateReport struct {
	Record *models.InstalledRecord
	Check  *models.UpdateCheck
}

// Installed lists installation records. An empty kind lists every kind.
func (e *Engine) Installed(kind models.ItemKind) ([]*models.InstalledRecord, error) {
	return e.registry.ListInstallations(kind)
}

// CheckUpdates compares every installation record of kind with its remote.
func (e *Engine) CheckUpdates(ctx context.Context, kind models.ItemKind) ([]*UpdateReport, error) {
	records, err := e.registry.ListInstallations(kind)
	if err != nil {
		return nil, err
	}

	reports := make([]*UpdateReport, 0, len(records))
	for _, rec := range records {
		check, err := e.registry.CheckForUpdate(ctx, rec.Kind, rec.Key, e.remote)
		if err != nil {
			return nil, fmt.Errorf("check %s '%s': %w", rec.Kind, rec.Key, err)
		}
		reports = append(reports, &UpdateReport{Record: rec, Check: check})
	}
	return reports, nil
}

// Refresh re-reads the remote commit of installation records. An empty key
// refreshes every record of kind; records refreshed within lifetime are skipped
// unless force is set. Returns the number of records updated.
func (e *Engine) Refresh(ctx context.Context, kind models.ItemKind, key string, lifetime time.Duration, force bool) (int, error) {
	var records []*models.InstalledRecord
	if key != "" {
		rec, err := e.registry.GetInstallation(kind, key)
		if err != nil {
			return 0, err
		}
		if rec == nil {
			return 0, &NotInstalledError{Kind: kind, Name: key}
		}
		records = append(records, rec)
	} else {
		var err error
		if records, err = e.registry.ListInstallations(kind); err != nil {
			return 0, err
		}
	}

	refreshed := 0
	for _, rec := range records {
		if !force {
			fresh, err := e.registry.IsInstallationFresh(rec.Kind, rec.Key, lifetime)
			if err != nil {
				return refreshed, err
			}
			if fresh {
				continue
			}
		}
		ok, err := e.registry.RefreshInstallation(ctx, rec.Kind, rec.Key, e.remote)
		if err != nil {
			return refreshed, fmt.Errorf("refresh %s '%s': %w", rec.Kind, rec.Key, err)
		}
		if ok {
			refreshed++
		}
	}
	return refreshed, nil
}

// Forget removes an installation record. The local entity is left alone.
func (e *Engine) Forget(kind models.ItemKind, key string) error {
	rec, err := e.registry.GetInstallation(kind, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return &NotInstalledError{Kind: kind, Name: key}
	}
	return e.registry.DeleteInstallation(kind, key)
}
