package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kilupskalvis/blocksync/internal/models"
	bolt "go.etcd.io/bbolt"
)

const defaultRepositoryKey = "default_repository"

// AddRepository stores a new repository. Returns an error if one with the same key exists.
func (s *RepoStore) AddRepository(repo *models.Repository) error {
	key := []byte(repo.Key())
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRepositories)
		if bucket == nil {
			return fmt.Errorf("repositories bucket not found")
		}

		if bucket.Get(key) != nil {
			return fmt.Errorf("repository '%s' already exists", repo.Key())
		}

		data, err := json.Marshal(repo)
		if err != nil {
			return fmt.Errorf("marshal repository: %w", err)
		}

		return bucket.Put(key, data)
	})
}

// GetRepository retrieves a repository by "owner/repo". Returns (nil, nil) if not found.
func (s *RepoStore) GetRepository(key string) (*models.Repository, error) {
	var repo *models.Repository

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRepositories)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}

		repo = &models.Repository{}
		return json.Unmarshal(data, repo)
	})

	return repo, err
}

// ListRepositories returns all repositories sorted by key.
func (s *RepoStore) ListRepositories() ([]*models.Repository, error) {
	var repos []*models.Repository

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRepositories)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var r models.Repository
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal repository: %w", err)
			}
			repos = append(repos, &r)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(repos, func(i, j int) bool {
		return repos[i].Key() < repos[j].Key()
	})

	return repos, nil
}

// UpdateRepository changes the display name and branch of an existing repository.
func (s *RepoStore) UpdateRepository(key, displayName, branch string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRepositories)
		if bucket == nil {
			return fmt.Errorf("repositories bucket not found")
		}

		data := bucket.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("repository '%s' does not exist", key)
		}

		var repo models.Repository
		if err := json.Unmarshal(data, &repo); err != nil {
			return fmt.Errorf("unmarshal repository: %w", err)
		}

		repo.DisplayName = displayName
		repo.Branch = branch

		updated, err := json.Marshal(&repo)
		if err != nil {
			return fmt.Errorf("marshal repository: %w", err)
		}

		return bucket.Put([]byte(key), updated)
	})
}

// RemoveRepository deletes a repository. The default-repository pointer is cleared
// when it referenced the removed entry.
func (s *RepoStore) RemoveRepository(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRepositories)
		if bucket == nil {
			return fmt.Errorf("repositories bucket not found")
		}

		if bucket.Get([]byte(key)) == nil {
			return fmt.Errorf("repository '%s' does not exist", key)
		}

		if err := bucket.Delete([]byte(key)); err != nil {
			return fmt.Errorf("delete repository: %w", err)
		}

		if kv := tx.Bucket(bucketKV); kv != nil {
			if string(kv.Get([]byte(defaultRepositoryKey))) == key {
				if err := kv.Delete([]byte(defaultRepositoryKey)); err != nil {
					return fmt.Errorf("clear default repository: %w", err)
				}
			}
		}

		return nil
	})
}

// SetDefaultRepository records the repository used when a command names none.
func (s *RepoStore) SetDefaultRepository(key string) error {
	return s.SetValue(defaultRepositoryKey, key)
}

// DefaultRepository returns the default repository key, or "" if none is set.
func (s *RepoStore) DefaultRepository() (string, error) {
	return s.GetValue(defaultRepositoryKey)
}
