package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kilupskalvis/blocksync/internal/cms"
	"github.com/kilupskalvis/blocksync/internal/metadata"
	"github.com/kilupskalvis/blocksync/internal/models"
	"gopkg.in/yaml.v3"
)

// folderReadmes are written to the top-level folders of a repository that has none.
var folderReadmes = []struct {
	folder  string
	content string
}{
	{"modules", "# Modules\n\nThis folder contains CMS modules.\n\nEach module has its own folder with:\n- `input.php` - input form\n- `output.php` - output template\n- `config.yml` - module configuration\n"},
	{"templates", "# Templates\n\nThis folder contains CMS templates.\n\nEach template has its own folder with:\n- `template.php` - template code\n- `config.yml` - template configuration\n"},
	{"classes", "# Classes\n\nThis folder contains PHP classes.\n\nEach class has its own folder named after the class.\n"},
}

// itemConfig is the config.yml generated for an uploaded module or template.
type itemConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Author      string `yaml:"author"`
	Created     string `yaml:"created"`
	Type        string `yaml:"type"`
	Key         string `yaml:"key"`
}

// UploadResult describes a completed upload.
type UploadResult struct {
	Repository string
	Path       string
	Uploaded   []string
	Failed     []string
}

// uploadTarget resolves where an upload goes. An empty key selects the configured
// upload target, then the default repository.
func (e *Engine) uploadTarget(repoKey string) (*models.Repository, error) {
	if repoKey == "" && e.upload.Owner != "" && e.upload.Repo != "" {
		branch := e.upload.Branch
		if branch == "" {
			branch = models.DefaultBranch
		}
		return &models.Repository{Owner: e.upload.Owner, Repo: e.upload.Repo, Branch: branch}, nil
	}
	return e.repository(repoKey)
}

// Upload writes a local module, template or class to a repository. ref is an id,
// key or name for modules and templates, and the class name for classes.
func (e *Engine) Upload(ctx context.Context, repoKey string, kind models.ItemKind, ref, message string) (*UploadResult, error) {
	repo, err := e.uploadTarget(repoKey)
	if err != nil {
		return nil, err
	}

	if kind == models.KindClass {
		return e.uploadClass(ctx, repo, ref, message)
	}

	ent, err := e.lookupEntity(ctx, kind, ref)
	if err != nil {
		return nil, err
	}

	e.ensureRepositoryStructure(ctx, repo)

	key := ent.UploadKey()
	dir := kind.Folder() + "/" + key
	if message == "" {
		message = fmt.Sprintf("Update %s %s", kind, key)
	}
	res := &UploadResult{Repository: repo.Key(), Path: dir}

	readme := dir + "/" + metadata.ReadmeFile
	exists, err := e.remote.FileExists(ctx, repo.Owner, repo.Repo, readme, repo.Branch)
	if err != nil {
		return nil, fmt.Errorf("check readme: %w", err)
	}
	if !exists {
		if err := e.put(ctx, repo, res, readme, []byte(readmeFor(ent)), message); err != nil {
			return nil, err
		}
	}

	for _, f := range contentFiles(ent) {
		if f.content == "" {
			continue
		}
		if err := e.put(ctx, repo, res, dir+"/"+f.name, []byte(f.content), message); err != nil {
			return nil, err
		}
	}

	cfg, err := yaml.Marshal(itemConfig{
		Name:        ent.Name,
		Description: metadata.Beautify(string(kind)) + " exported from the CMS",
		Version:     metadata.DefaultVersion,
		Author:      e.upload.Author,
		Created:     e.now().Format(installedAtFormat),
		Type:        string(kind),
		Key:         key,
	})
	if err != nil {
		return nil, fmt.Errorf("generate config: %w", err)
	}
	if err := e.put(ctx, repo, res, dir+"/"+metadata.ConfigFile, cfg, message); err != nil {
		return nil, err
	}

	e.uploadAssets(ctx, repo, res, kind, key, message)

	e.logger.Info("uploaded", "kind", kind, "key", key, "repo", repo.Key(), "files", len(res.Uploaded))
	return res, nil
}

// lookupEntity resolves ref as an id, then a key, then a name.
func (e *Engine) lookupEntity(ctx context.Context, kind models.ItemKind, ref string) (*cms.Entity, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		ent, err := e.entities.Get(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		if ent != nil {
			return ent, nil
		}
	}
	m, err := e.match(ctx, kind, ref, ref)
	if err != nil {
		return nil, err
	}
	if !m.Found() {
		return nil, &ItemNotFoundError{Kind: kind, Name: ref}
	}
	return m.Entity, nil
}

type contentFile struct {
	name    string
	content string
}

func contentFiles(ent *cms.Entity) []contentFile {
	if ent.Kind == models.KindTemplate {
		return []contentFile{{metadata.TemplateFile, ent.Content}}
	}
	return []contentFile{{metadata.InputFile, ent.Input}, {metadata.OutputFile, ent.Output}}
}

func readmeFor(ent *cms.Entity) string {
	label := "Module"
	if ent.Kind == models.KindTemplate {
		label = "Template"
	}
	return fmt.Sprintf("# %s: %s\n\n%s", label, ent.Name, ent.Name)
}

func (e *Engine) put(ctx context.Context, repo *models.Repository, res *UploadResult, p string, content []byte, message string) error {
	if _, err := e.remote.PutFile(ctx, repo.Owner, repo.Repo, p, content, message, repo.Branch); err != nil {
		return fmt.Errorf("upload %s: %w", p, err)
	}
	res.Uploaded = append(res.Uploaded, p)
	return nil
}

// uploadAssets pushes the local asset files of an item one at a time. Failures
// are logged and recorded in the result.
func (e *Engine) uploadAssets(ctx context.Context, repo *models.Repository, res *UploadResult, kind models.ItemKind, key, message string) {
	if e.assets == nil {
		return
	}
	files, err := e.assets.Files(kind, key)
	if err != nil {
		e.logger.Warn("could not list local assets", "kind", kind, "key", key, "error", err)
		return
	}
	for _, rel := range files {
		p := fmt.Sprintf("%s/%s/%s/%s", kind.Folder(), key, metadata.AssetsDir, rel)
		data, err := e.assets.ReadFile(kind, key, rel)
		if err == nil {
			err = e.put(ctx, repo, res, p, data, message)
		}
		if err != nil {
			e.logger.Warn("could not upload asset", "path", p, "error", err)
			res.Failed = append(res.Failed, p)
		}
	}
}

// ensureRepositoryStructure creates the README of each top-level folder that has
// none. Failures are ignored.
func (e *Engine) ensureRepositoryStructure(ctx context.Context, repo *models.Repository) {
	for _, f := range folderReadmes {
		p := f.folder + "/" + metadata.ReadmeFile
		exists, err := e.remote.FileExists(ctx, repo.Owner, repo.Repo, p, repo.Branch)
		if err != nil || exists {
			continue
		}
		msg := fmt.Sprintf("Repository structure: create %s folder", f.folder)
		if _, err := e.remote.PutFile(ctx, repo.Owner, repo.Repo, p, []byte(f.content), msg, repo.Branch); err != nil {
			e.logger.Debug("could not create folder readme", "path", p, "error", err)
		}
	}
}

// uploadClass pushes every file of a local class directory. The local config.yml
// is replaced by one generated from the analysed class, and an existing remote
// README is never overwritten.
func (e *Engine) uploadClass(ctx context.Context, repo *models.Repository, name, message string) (*UploadResult, error) {
	lc, err := e.localClass(name)
	if err != nil {
		return nil, err
	}
	if lc == nil {
		return nil, &ItemNotFoundError{Kind: models.KindClass, Name: name}
	}

	e.ensureRepositoryStructure(ctx, repo)

	dir := models.KindClass.Folder() + "/" + name
	if message == "" {
		message = fmt.Sprintf("Update class %s", name)
	}
	res := &UploadResult{Repository: repo.Key(), Path: dir}

	for _, rel := range lc.Files {
		if rel == metadata.ConfigFile || strings.Contains(rel, backupMarker) {
			continue
		}
		p := dir + "/" + rel
		if rel == metadata.ReadmeFile {
			exists, err := e.remote.FileExists(ctx, repo.Owner, repo.Repo, p, repo.Branch)
			if err != nil {
				return nil, fmt.Errorf("check readme: %w", err)
			}
			if exists {
				continue
			}
		}
		data, err := e.classes.ReadFile(name, rel)
		if err != nil {
			return nil, &LocalIOError{Op: "read", Path: e.classes.Path(name, rel), Err: err}
		}
		if err := e.put(ctx, repo, res, p, data, message); err != nil {
			return nil, err
		}
	}

	cfg, err := marshalClassConfig(classConfig{
		Title:       lc.Title,
		Description: lc.Description,
		Version:     lc.Version,
		Author:      lc.Author,
		Filename:    lc.Filename,
		Namespace:   lc.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("generate config: %w", err)
	}
	if err := e.put(ctx, repo, res, dir+"/"+metadata.ConfigFile, cfg, message); err != nil {
		return nil, err
	}

	e.logger.Info("uploaded class", "class", name, "repo", repo.Key(), "files", len(res.Uploaded))
	return res, nil
}
