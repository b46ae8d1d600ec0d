// Package metadata derives descriptive information for items stored in a remote
// repository by probing a fixed sequence of files.
package metadata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/kilupskalvis/blocksync/internal/remote"
)

// DefaultVersion is reported when no source declares a version.
const DefaultVersion = "1.0.0"

// Item file names probed inside an item directory.
const (
	ConfigFile   = "config.yml"
	PackageFile  = "package.yml"
	ReadmeFile   = "README.md"
	AssetsDir    = "assets"
	InputFile    = "input.php"
	OutputFile   = "output.php"
	TemplateFile = "template.php"
)

// Source is the subset of the remote client used for probing.
type Source interface {
	GetFile(ctx context.Context, owner, repo, path, branch string) ([]byte, error)
	PathExists(ctx context.Context, owner, repo, path, branch string) (bool, error)
}

// Resolver builds metadata records for remote items. Failures to read any single
// source are logged and the next source is tried; resolution itself never fails.
type Resolver struct {
	src    Source
	logger *slog.Logger
}

// NewResolver creates a resolver reading from src.
func NewResolver(src Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{src: src, logger: logger}
}

// PrimaryFile returns the source file whose doc comment describes an item of kind.
func PrimaryFile(kind models.ItemKind, name string) string {
	switch kind {
	case models.KindTemplate:
		return TemplateFile
	case models.KindClass:
		return name + ".php"
	}
	return InputFile
}

// Resolve returns the metadata for a module or template directory.
func (r *Resolver) Resolve(ctx context.Context, repo *models.Repository, kind models.ItemKind, name string) models.Item {
	switch kind {
	case models.KindTemplate:
		return &models.TemplateMetadata{Metadata: r.resolveBase(ctx, repo, kind, name)}
	case models.KindClass:
		return r.ResolveClass(ctx, repo, name)
	}
	return &models.ModuleMetadata{Metadata: r.resolveBase(ctx, repo, models.KindModule, name)}
}

func (r *Resolver) resolveBase(ctx context.Context, repo *models.Repository, kind models.ItemKind, name string) models.Metadata {
	md := models.Metadata{
		Kind:    kind,
		Name:    name,
		Title:   name,
		Version: DefaultVersion,
	}
	dir := md.Path()

	if doc, ok := r.readConfig(ctx, repo, dir+"/"+ConfigFile); ok {
		applyDocument(&md, doc)
	}

	if md.Description == "" {
		if doc, ok := r.readConfig(ctx, repo, dir+"/"+PackageFile); ok {
			applyDocument(&md, doc)
		}
	}

	readmeChecked, readmeExists := false, false
	if md.Description == "" {
		if data, ok := r.fetch(ctx, repo, dir+"/"+ReadmeFile); ok {
			md.Description = DescriptionFromReadme(string(data))
			readmeExists = true
		}
		readmeChecked = true
	}

	if md.Description == "" {
		if data, ok := r.fetch(ctx, repo, dir+"/"+PrimaryFile(kind, name)); ok {
			md.Description = DescriptionFromPHP(string(data))
		}
	}

	// Config-supplied titles are discarded; the slug always wins.
	md.Title = Beautify(name)

	md.HasAssets = r.exists(ctx, repo, dir+"/"+AssetsDir)

	if !readmeChecked {
		readmeExists = r.exists(ctx, repo, dir+"/"+ReadmeFile)
	}
	if readmeExists {
		md.ReadmeURL = ReadmeURL(repo, dir)
	}

	return md
}

// ResolveClass returns the metadata for a class directory "classes/{name}".
// config.yml seeds the record; doc tags in the class file fill what it leaves empty.
func (r *Resolver) ResolveClass(ctx context.Context, repo *models.Repository, name string) *models.ClassMetadata {
	cm := &models.ClassMetadata{
		Metadata: models.Metadata{
			Kind:    models.KindClass,
			Name:    name,
			Title:   name,
			Version: DefaultVersion,
		},
		Filename: name + ".php",
	}
	dir := cm.Path()

	versionSet := false
	if doc, ok := r.readConfig(ctx, repo, dir+"/"+ConfigFile); ok {
		if v := doc.String("title"); v != "" {
			cm.Title = v
		}
		if v := doc.String("version"); v != "" {
			cm.Version = v
			versionSet = true
		}
		if v := doc.String("filename"); v != "" {
			if isPlainFilename(v) {
				cm.Filename = v
			} else {
				r.logger.Warn("ignoring class filename outside the class directory", "class", name, "filename", v)
			}
		}
		cm.Description = doc.String("description")
		cm.Author = doc.String("author")
		cm.Namespace = doc.String("namespace")
		cm.Key = doc.String("key")
	}

	if data, ok := r.fetch(ctx, repo, dir+"/"+cm.Filename); ok {
		cd := ParseClassDoc(string(data))
		if cm.Description == "" {
			cm.Description = cd.Description
		}
		if !versionSet && cd.Version != "" {
			cm.Version = cd.Version
		}
		if cm.Author == "" {
			cm.Author = cd.Author
		}
		if cm.Namespace == "" {
			cm.Namespace = cd.Namespace
		}
	}

	cm.HasAssets = r.exists(ctx, repo, dir+"/"+AssetsDir)
	if r.exists(ctx, repo, dir+"/"+ReadmeFile) {
		cm.ReadmeURL = ReadmeURL(repo, dir)
	}
	return cm
}

// ReadmeURL builds the web URL of an item README.
func ReadmeURL(repo *models.Repository, dir string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s/%s", repo.Owner, repo.Repo, repo.Branch, dir, ReadmeFile)
}

func applyDocument(md *models.Metadata, doc *Document) {
	if v := doc.String("title"); v != "" {
		md.Title = v
	}
	if v := doc.String("description"); v != "" {
		md.Description = v
	}
	if v := doc.String("version"); v != "" {
		md.Version = v
	}
	if v := doc.String("author"); v != "" {
		md.Author = v
	}
	if v := doc.String("key"); v != "" {
		md.Key = v
	}
}

func (r *Resolver) readConfig(ctx context.Context, repo *models.Repository, path string) (*Document, bool) {
	data, ok := r.fetch(ctx, repo, path)
	if !ok {
		return nil, false
	}
	return ParseSimpleYAML(string(data)), true
}

func (r *Resolver) fetch(ctx context.Context, repo *models.Repository, path string) ([]byte, bool) {
	data, err := r.src.GetFile(ctx, repo.Owner, repo.Repo, path, repo.Branch)
	if err != nil {
		if !remote.IsNotFound(err) {
			r.logger.Debug("metadata source unavailable", "repo", repo.Key(), "path", path, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (r *Resolver) exists(ctx context.Context, repo *models.Repository, path string) bool {
	ok, err := r.src.PathExists(ctx, repo.Owner, repo.Repo, path, repo.Branch)
	if err != nil {
		r.logger.Debug("existence probe failed", "repo", repo.Key(), "path", path, "error", err)
		return false
	}
	return ok
}

// isPlainFilename reports whether name is a single path element.
func isPlainFilename(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
