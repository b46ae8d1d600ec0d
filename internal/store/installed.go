package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kilupskalvis/blocksync/internal/models"
)

// Origin is the remote location an item was installed from.
type Origin struct {
	Owner  string
	Repo   string
	Branch string
	Path   string
}

// CommitSource looks up the newest commit touching a remote path.
type CommitSource interface {
	LastCommit(ctx context.Context, owner, repo, path, branch string) *models.CommitInfo
}

const installedColumns = `id, item_type, item_key, item_name, repo_owner, repo_name, repo_branch, repo_path,
	installed_at, last_commit_sha, last_commit_date, last_commit_message, cache_refreshed_at`

// SaveInstallation inserts or updates the record for (kind, key). Commit fields are
// written only when commit is non-nil; on insert they stay NULL otherwise.
func (s *Store) SaveInstallation(kind models.ItemKind, key, name string, origin Origin, commit *models.CommitInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTimestamp(s.now())

	var id int64
	err = tx.QueryRow(`SELECT id FROM installed_items WHERE item_type = ? AND item_key = ?`, string(kind), key).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		var sha, date, msg, refreshed sql.NullString
		if commit != nil {
			sha = sql.NullString{String: commit.SHA, Valid: true}
			date = nullTimestamp(commit.Date)
			msg = sql.NullString{String: commit.Message, Valid: true}
			refreshed = sql.NullString{String: now, Valid: true}
		}
		_, err = tx.Exec(`
			INSERT INTO installed_items (item_type, item_key, item_name, repo_owner, repo_name, repo_branch, repo_path,
				installed_at, last_commit_sha, last_commit_date, last_commit_message, cache_refreshed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, string(kind), key, name, origin.Owner, origin.Repo, origin.Branch, origin.Path, now, sha, date, msg, refreshed)
		if err != nil {
			return fmt.Errorf("insert installation: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup installation: %w", err)
	default:
		_, err = tx.Exec(`
			UPDATE installed_items
			SET item_name = ?, repo_owner = ?, repo_name = ?, repo_branch = ?, repo_path = ?
			WHERE id = ?
		`, name, origin.Owner, origin.Repo, origin.Branch, origin.Path, id)
		if err != nil {
			return fmt.Errorf("update installation: %w", err)
		}
		if commit != nil {
			if err := setCommit(tx, id, commit, now); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func setCommit(tx *sql.Tx, id int64, commit *models.CommitInfo, refreshedAt string) error {
	_, err := tx.Exec(`
		UPDATE installed_items
		SET last_commit_sha = ?, last_commit_date = ?, last_commit_message = ?, cache_refreshed_at = ?
		WHERE id = ?
	`, commit.SHA, nullTimestamp(commit.Date), commit.Message, refreshedAt, id)
	if err != nil {
		return fmt.Errorf("update commit info: %w", err)
	}
	return nil
}

// GetInstallation returns the record for (kind, key). Returns (nil, nil) if not found.
func (s *Store) GetInstallation(kind models.ItemKind, key string) (*models.InstalledRecord, error) {
	row := s.db.QueryRow(`SELECT `+installedColumns+` FROM installed_items WHERE item_type = ? AND item_key = ?`, string(kind), key)
	rec, err := scanInstalled(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get installation: %w", err)
	}
	return rec, nil
}

// ListInstallations returns records of one kind, newest first. An empty kind lists
// every record grouped by kind.
func (s *Store) ListInstallations(kind models.ItemKind) ([]*models.InstalledRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = s.db.Query(`SELECT ` + installedColumns + ` FROM installed_items ORDER BY item_type, installed_at DESC, id DESC`)
	} else {
		rows, err = s.db.Query(`SELECT `+installedColumns+` FROM installed_items WHERE item_type = ? ORDER BY installed_at DESC, id DESC`, string(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	return collectInstalled(rows)
}

// ListInstallationsByRepository returns every record installed from owner/repo.
func (s *Store) ListInstallationsByRepository(owner, repo string) ([]*models.InstalledRecord, error) {
	rows, err := s.db.Query(`SELECT `+installedColumns+` FROM installed_items
		WHERE repo_owner = ? AND repo_name = ? ORDER BY item_type, item_key`, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	return collectInstalled(rows)
}

// DeleteInstallation removes the record for (kind, key). Deleting a missing record
// is not an error.
func (s *Store) DeleteInstallation(kind models.ItemKind, key string) error {
	if _, err := s.db.Exec(`DELETE FROM installed_items WHERE item_type = ? AND item_key = ?`, string(kind), key); err != nil {
		return fmt.Errorf("delete installation: %w", err)
	}
	return nil
}

// CheckForUpdate compares the stored commit with the newest remote commit. An update
// is available only when a sha was stored and it differs from the remote one.
func (s *Store) CheckForUpdate(ctx context.Context, kind models.ItemKind, key string, src CommitSource) (*models.UpdateCheck, error) {
	rec, err := s.GetInstallation(kind, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &models.UpdateCheck{}, nil
	}

	latest := src.LastCommit(ctx, rec.RepoOwner, rec.RepoName, rec.RepoPath, rec.RepoBranch)
	if latest == nil {
		return &models.UpdateCheck{Current: rec.LastCommit()}, nil
	}

	return &models.UpdateCheck{
		Available: rec.LastCommitSHA != "" && rec.LastCommitSHA != latest.SHA,
		Current:   rec.LastCommit(),
		New:       latest,
	}, nil
}

// RefreshInstallation re-reads the remote commit for a record and stores it.
// Returns false when the record is missing or the commit could not be determined.
func (s *Store) RefreshInstallation(ctx context.Context, kind models.ItemKind, key string, src CommitSource) (bool, error) {
	rec, err := s.GetInstallation(kind, key)
	if err != nil || rec == nil {
		return false, err
	}

	latest := src.LastCommit(ctx, rec.RepoOwner, rec.RepoName, rec.RepoPath, rec.RepoBranch)
	if latest == nil {
		return false, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := setCommit(tx, rec.ID, latest, formatTimestamp(s.now())); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit refresh: %w", err)
	}
	return true, nil
}

// IsInstallationFresh reports whether the record's commit info was refreshed
// within lifetime.
func (s *Store) IsInstallationFresh(kind models.ItemKind, key string, lifetime time.Duration) (bool, error) {
	rec, err := s.GetInstallation(kind, key)
	if err != nil || rec == nil {
		return false, err
	}
	if rec.CacheRefreshedAt.IsZero() {
		return false, nil
	}
	return s.now().Sub(rec.CacheRefreshedAt) < lifetime, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstalled(row rowScanner) (*models.InstalledRecord, error) {
	var (
		rec                           models.InstalledRecord
		kind, installedAt             string
		sha, date, message, refreshed sql.NullString
	)
	err := row.Scan(&rec.ID, &kind, &rec.Key, &rec.Name, &rec.RepoOwner, &rec.RepoName, &rec.RepoBranch, &rec.RepoPath,
		&installedAt, &sha, &date, &message, &refreshed)
	if err != nil {
		return nil, err
	}

	rec.Kind = models.ItemKind(kind)
	rec.InstalledAt = parseTimestamp(installedAt)
	rec.LastCommitSHA = sha.String
	rec.LastCommitMessage = message.String
	if date.Valid {
		rec.LastCommitDate = parseTimestamp(date.String)
	}
	if refreshed.Valid {
		rec.CacheRefreshedAt = parseTimestamp(refreshed.String)
	}
	return &rec, nil
}

func collectInstalled(rows *sql.Rows) ([]*models.InstalledRecord, error) {
	defer rows.Close()

	var records []*models.InstalledRecord
	for rows.Next() {
		rec, err := scanInstalled(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
