package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"path"
	"strings"

	"github.com/kilupskalvis/blocksync/internal/metadata"
	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/kilupskalvis/blocksync/internal/remote"
	"gopkg.in/yaml.v3"
)

const (
	backupTimeFormat  = "2006-01-02_15-04-05"
	installedAtFormat = "2006-01-02 15:04:05"
	classConfigHeader = "# Class Configuration\n"
	backupMarker      = ".backup."
)

// classConfig is the config.yml written next to an installed class.
type classConfig struct {
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version,omitempty"`
	Author      string `yaml:"author,omitempty"`
	Filename    string `yaml:"filename,omitempty"`
	Namespace   string `yaml:"namespace,omitempty"`
	InstalledAt string `yaml:"installed_at,omitempty"`
	SourcePath  string `yaml:"source_path,omitempty"`
}

func marshalClassConfig(cfg classConfig) ([]byte, error) {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return append([]byte(classConfigHeader), body...), nil
}

// ListClasses returns the status of every class in a repository.
func (e *Engine) ListClasses(ctx context.Context, repoKey string) ([]*ItemStatus, error) {
	repo, err := e.repository(repoKey)
	if err != nil {
		return nil, err
	}
	names, err := e.itemNames(ctx, repo, models.KindClass)
	if err != nil {
		return nil, err
	}

	statuses := make([]*ItemStatus, 0, len(names))
	for _, name := range names {
		st, err := e.classStatusFor(ctx, e.resolver.ResolveClass(ctx, repo, name))
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (e *Engine) classStatus(ctx context.Context, repo *models.Repository, name string) (*ItemStatus, error) {
	cm, err := e.findClass(ctx, repo, name)
	if err != nil {
		return nil, err
	}
	return e.classStatusFor(ctx, cm)
}

func (e *Engine) classStatusFor(ctx context.Context, cm *models.ClassMetadata) (*ItemStatus, error) {
	st := &ItemStatus{Item: cm, Status: models.StatusNew}
	if !e.classes.Exists(e.classes.Path(cm.Name, cm.Filename)) {
		return st, nil
	}
	st.Status = models.StatusInstalled
	if err := e.attachUpdateCheck(ctx, st, models.KindClass, cm.Name); err != nil {
		return nil, err
	}
	return st, nil
}

func (e *Engine) findClass(ctx context.Context, repo *models.Repository, name string) (*models.ClassMetadata, error) {
	names, err := e.itemNames(ctx, repo, models.KindClass)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if n == name {
			return e.resolver.ResolveClass(ctx, repo, name), nil
		}
	}
	return nil, &ItemNotFoundError{Kind: models.KindClass, Name: name, Repo: repo.Key()}
}

// InstallClass writes a class directory from a repository into the class tree.
func (e *Engine) InstallClass(ctx context.Context, repoKey, name string) (*InstallResult, error) {
	repo, err := e.repository(repoKey)
	if err != nil {
		return nil, err
	}
	cm, err := e.findClass(ctx, repo, name)
	if err != nil {
		return nil, err
	}

	target := e.classes.Path(name, cm.Filename)
	if e.classes.Exists(target) {
		return nil, &AlreadyExistsError{Kind: models.KindClass, Name: name}
	}

	content, err := e.remote.GetFile(ctx, repo.Owner, repo.Repo, cm.Path()+"/"+cm.Filename, repo.Branch)
	if err != nil {
		return nil, fmt.Errorf("fetch class file: %w", err)
	}
	if err := e.classes.WriteFile(name, cm.Filename, content); err != nil {
		return nil, &LocalIOError{Op: "write", Path: target, Err: err}
	}

	e.installClassSiblings(ctx, repo, cm)
	e.writeClassConfig(cm)

	return e.recordClass(ctx, repo, cm), nil
}

// UpdateClass replaces an installed class file. The previous file is backed up
// first and put back if the new content cannot be written and verified.
func (e *Engine) UpdateClass(ctx context.Context, repoKey, name string) (*InstallResult, error) {
	repo, err := e.repository(repoKey)
	if err != nil {
		return nil, err
	}
	cm, err := e.findClass(ctx, repo, name)
	if err != nil {
		return nil, err
	}

	target := e.classes.Path(name, cm.Filename)
	if !e.classes.Exists(target) {
		return nil, &NotInstalledError{Kind: models.KindClass, Name: name}
	}

	content, err := e.remote.GetFile(ctx, repo.Owner, repo.Repo, cm.Path()+"/"+cm.Filename, repo.Branch)
	if err != nil {
		return nil, fmt.Errorf("fetch class file: %w", err)
	}

	if err := e.replaceWithBackup(name, cm.Filename, content); err != nil {
		return nil, err
	}

	e.installClassSiblings(ctx, repo, cm)
	e.writeClassConfig(cm)

	res := e.recordClass(ctx, repo, cm)
	res.MatchedBy = models.MatchedByName
	return res, nil
}

// replaceWithBackup writes content over an existing class file. The backup is
// removed only after the written bytes verify.
func (e *Engine) replaceWithBackup(name, file string, content []byte) error {
	target := e.classes.Path(name, file)
	backupFile := file + backupMarker + e.now().Format(backupTimeFormat)
	backupPath := e.classes.Path(name, backupFile)

	previous, err := e.classes.ReadFile(name, file)
	if err != nil {
		return &LocalIOError{Op: "read", Path: target, Err: err}
	}
	if err := e.classes.WriteFile(name, backupFile, previous); err != nil {
		return &LocalIOError{Op: "backup", Path: backupPath, Err: err}
	}

	writeErr := e.classes.WriteFile(name, file, content)
	if writeErr == nil {
		writeErr = e.verifyClassFile(name, file, content)
	}
	if writeErr != nil {
		restored := e.restoreBackup(name, file, backupFile)
		return &LocalIOError{Op: "write", Path: target, Restored: restored, Err: writeErr}
	}

	if err := e.classes.Fs().Remove(backupPath); err != nil {
		e.logger.Warn("could not remove class backup", "path", backupPath, "error", err)
	}
	return nil
}

func (e *Engine) verifyClassFile(name, file string, want []byte) error {
	got, err := e.classes.ReadFile(name, file)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if sha256.Sum256(got) != sha256.Sum256(want) {
		return fmt.Errorf("verify: checksum mismatch")
	}
	return nil
}

func (e *Engine) restoreBackup(name, file, backupFile string) bool {
	backup, err := e.classes.ReadFile(name, backupFile)
	if err != nil {
		e.logger.Error("could not read class backup", "file", backupFile, "error", err)
		return false
	}
	if err := e.classes.WriteFile(name, file, backup); err != nil {
		e.logger.Error("could not restore class backup", "file", backupFile, "error", err)
		return false
	}
	got, err := e.classes.ReadFile(name, file)
	if err != nil || !bytes.Equal(got, backup) {
		e.logger.Error("restored class file does not match backup", "file", file)
		return false
	}
	if err := e.classes.Fs().Remove(e.classes.Path(name, backupFile)); err != nil {
		e.logger.Warn("could not remove class backup", "file", backupFile, "error", err)
	}
	return true
}

// installClassSiblings copies the other files of a class directory. Failures are
// logged and skipped.
func (e *Engine) installClassSiblings(ctx context.Context, repo *models.Repository, cm *models.ClassMetadata) {
	entries, err := e.remote.ListDirectory(ctx, repo.Owner, repo.Repo, cm.Path(), repo.Branch)
	if err != nil {
		if !remote.IsNotFound(err) {
			e.logger.Warn("could not list class files", "class", cm.Name, "error", err)
		}
		return
	}

	for _, entry := range entries {
		if entry.Type != remote.EntryFile || entry.Name == cm.Filename || entry.Name == cm.Name+".php" {
			continue
		}
		data, err := e.remote.GetFile(ctx, repo.Owner, repo.Repo, path.Join(cm.Path(), entry.Name), repo.Branch)
		if err != nil {
			e.logger.Warn("could not fetch class file", "class", cm.Name, "file", entry.Name, "error", err)
			continue
		}
		if err := e.classes.WriteFile(cm.Name, entry.Name, data); err != nil {
			e.logger.Warn("could not write class file", "class", cm.Name, "file", entry.Name, "error", err)
		}
	}
}

func (e *Engine) writeClassConfig(cm *models.ClassMetadata) {
	data, err := marshalClassConfig(classConfig{
		Title:       cm.Title,
		Description: cm.Description,
		Version:     cm.Version,
		Author:      cm.Author,
		Filename:    cm.Filename,
		Namespace:   cm.Namespace,
		InstalledAt: e.now().Format(installedAtFormat),
		SourcePath:  cm.Path(),
	})
	if err == nil {
		err = e.classes.WriteFile(cm.Name, metadata.ConfigFile, data)
	}
	if err != nil {
		e.logger.Warn("could not write class config", "class", cm.Name, "error", err)
	}
}

func (e *Engine) recordClass(ctx context.Context, repo *models.Repository, cm *models.ClassMetadata) *InstallResult {
	res := &InstallResult{Kind: models.KindClass, Name: cm.Name, Title: cm.Title, Key: cm.Name}
	res.Commit = e.remote.LastCommit(ctx, repo.Owner, repo.Repo, cm.Path(), repo.Branch)
	if err := e.registry.SaveInstallation(models.KindClass, cm.Name, cm.Title, origin(repo, cm.Path()), res.Commit); err != nil {
		e.logger.Warn("could not record class installation", "class", cm.Name, "error", err)
	}
	e.logger.Info("installed class", "class", cm.Name, "repo", repo.Key())
	return res
}

// LocalClass describes a class directory found in the class tree.
type LocalClass struct {
	Name        string
	Title       string
	Description string
	Version     string
	Author      string
	Filename    string
	Namespace   string
	InstalledAt string
	SourcePath  string
	HasConfig   bool
	Files       []string
}

// LocalClasses analyses every directory of the class tree. Directories without a
// readable PHP file are skipped.
func (e *Engine) LocalClasses() ([]*LocalClass, error) {
	names, err := e.classes.Classes()
	if err != nil {
		return nil, err
	}

	var out []*LocalClass
	for _, name := range names {
		lc, err := e.localClass(name)
		if err != nil {
			return nil, err
		}
		if lc != nil {
			out = append(out, lc)
		}
	}
	return out, nil
}

func (e *Engine) localClass(name string) (*LocalClass, error) {
	files, err := e.classes.Files(name)
	if err != nil {
		return nil, err
	}

	lc := &LocalClass{Name: name, Title: name, Version: metadata.DefaultVersion, Files: files}
	var doc *metadata.Document
	if data, err := e.classes.ReadFile(name, metadata.ConfigFile); err == nil {
		doc = metadata.ParseSimpleYAML(string(data))
		lc.HasConfig = true
	}

	main := mainClassFile(name, files, doc)
	if main == "" {
		return nil, nil
	}
	content, err := e.classes.ReadFile(name, main)
	if err != nil || len(content) == 0 {
		return nil, nil
	}
	lc.Filename = path.Base(main)

	cd := metadata.ParseClassDoc(string(content))
	lc.Description, lc.Author, lc.Namespace = cd.Description, cd.Author, cd.Namespace
	if cd.Version != "" {
		lc.Version = cd.Version
	}
	if doc != nil {
		overrideNonEmpty(&lc.Title, doc.String("title"))
		overrideNonEmpty(&lc.Description, doc.String("description"))
		overrideNonEmpty(&lc.Version, doc.String("version"))
		overrideNonEmpty(&lc.Author, doc.String("author"))
		overrideNonEmpty(&lc.Namespace, doc.String("namespace"))
		lc.InstalledAt = doc.String("installed_at")
		lc.SourcePath = doc.String("source_path")
	}
	return lc, nil
}

// mainClassFile picks the primary file of a local class: the configured filename,
// else {Name}.php, else the first top-level PHP file.
func mainClassFile(name string, files []string, doc *metadata.Document) string {
	has := func(f string) bool {
		for _, x := range files {
			if x == f {
				return true
			}
		}
		return false
	}
	if doc != nil {
		if f := doc.String("filename"); f != "" {
			if has(f) {
				return f
			}
			return ""
		}
	}
	if has(name + ".php") {
		return name + ".php"
	}
	for _, f := range files {
		if !strings.Contains(f, "/") && strings.HasSuffix(f, ".php") {
			return f
		}
	}
	return ""
}

func overrideNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
