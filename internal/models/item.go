package models

import "time"

// ItemKind identifies the kind of building block handled by the sync engine.
type ItemKind string

const (
	KindModule   ItemKind = "module"
	KindTemplate ItemKind = "template"
	KindClass    ItemKind = "class"
)

// Folder returns the top-level repository folder holding items of this kind.
func (k ItemKind) Folder() string {
	switch k {
	case KindClass:
		return "classes"
	case KindModule, KindTemplate:
		return string(k) + "s"
	}
	return string(k)
}

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	switch k {
	case KindModule, KindTemplate, KindClass:
		return true
	}
	return false
}

// ParseItemKind converts user input such as "modules" or "template" to an ItemKind.
func ParseItemKind(s string) (ItemKind, bool) {
	switch s {
	case "module", "modules":
		return KindModule, true
	case "template", "templates":
		return KindTemplate, true
	case "class", "classes":
		return KindClass, true
	}
	return "", false
}

// Metadata is the descriptive record shared by every remote item.
type Metadata struct {
	Kind        ItemKind
	Name        string // slug, the folder name in the repository
	Title       string
	Description string
	Version     string
	Author      string
	Key         string
	HasAssets   bool
	ReadmeURL   string
}

// Path returns the repository path of the item directory.
func (m *Metadata) Path() string {
	return m.Kind.Folder() + "/" + m.Name
}

// ModuleMetadata describes a module directory (input.php / output.php).
type ModuleMetadata struct {
	Metadata
}

// TemplateMetadata describes a template directory (template.php).
type TemplateMetadata struct {
	Metadata
}

// ClassMetadata describes a PHP class directory.
type ClassMetadata struct {
	Metadata
	Filename  string
	Namespace string
}

// Item is implemented by the kind-specific metadata records.
type Item interface {
	Base() *Metadata
}

func (m *ModuleMetadata) Base() *Metadata   { return &m.Metadata }
func (m *TemplateMetadata) Base() *Metadata { return &m.Metadata }
func (m *ClassMetadata) Base() *Metadata    { return &m.Metadata }

// Status is the sync state of a remote item relative to the local installation.
type Status int

const (
	StatusNew Status = iota
	StatusInstalled
	StatusUpdateAvailable
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusInstalled:
		return "installed"
	case StatusUpdateAvailable:
		return "update available"
	}
	return "unknown"
}

// MatchedBy records which predicate located an existing local entity.
type MatchedBy int

const (
	MatchedByNone MatchedBy = iota
	MatchedByKey
	MatchedByName
)

func (m MatchedBy) String() string {
	switch m {
	case MatchedByKey:
		return "key"
	case MatchedByName:
		return "name"
	}
	return "none"
}

// InstalledRecord is the registry row for an installed item.
type InstalledRecord struct {
	ID                int64
	Kind              ItemKind
	Key               string
	Name              string
	RepoOwner         string
	RepoName          string
	RepoBranch        string
	RepoPath          string
	InstalledAt       time.Time
	LastCommitSHA     string
	LastCommitDate    time.Time
	LastCommitMessage string
	CacheRefreshedAt  time.Time
}

// LastCommit returns the stored commit info, or nil when none was recorded.
func (r *InstalledRecord) LastCommit() *CommitInfo {
	if r.LastCommitSHA == "" {
		return nil
	}
	return &CommitInfo{SHA: r.LastCommitSHA, Date: r.LastCommitDate, Message: r.LastCommitMessage}
}

// UpdateCheck is the outcome of comparing a stored commit with the remote head.
type UpdateCheck struct {
	Available bool
	Current   *CommitInfo
	New       *CommitInfo
}
