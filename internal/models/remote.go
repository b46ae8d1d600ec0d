package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBranch is used when a repository is added without an explicit branch.
const DefaultBranch = "main"

// Repository represents a configured remote GitHub repository.
type Repository struct {
	Owner       string    `json:"owner"`
	Repo        string    `json:"repo"`
	DisplayName string    `json:"display_name"`
	Branch      string    `json:"branch"`
	AddedAt     time.Time `json:"added_at"`
}

// Key returns the registry key "owner/repo".
func (r *Repository) Key() string {
	return RepositoryKey(r.Owner, r.Repo)
}

// RepositoryKey builds the registry key for an owner and repository name.
func RepositoryKey(owner, repo string) string {
	return owner + "/" + repo
}

// ParseRepositoryKey splits "owner/repo" into its parts.
func ParseRepositoryKey(key string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(key, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository key %q (expected owner/repo)", key)
	}
	return owner, repo, nil
}

// CommitInfo describes the most recent commit touching a remote path.
type CommitInfo struct {
	SHA     string    `json:"sha"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
}

// CommitResult is returned after a file has been written to the remote.
type CommitResult struct {
	Path       string
	ContentSHA string
	CommitSHA  string
	Created    bool
}
