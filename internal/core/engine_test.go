package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilupskalvis/blocksync/internal/cms"
	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== Install Tests ====================

func TestEngine_Install_HeroModule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.seedHero()

	res, err := env.engine.Install(ctx, models.KindModule, "acme/blocks", "hero", "hero_block")
	require.NoError(t, err)
	assert.Equal(t, "hero_block", res.Key)
	assert.Equal(t, "Hero", res.Title)

	ent, err := env.entities.FindByKey(ctx, models.KindModule, "hero_block")
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Equal(t, "Hero", ent.Name)
	assert.NotEmpty(t, ent.Input)
	assert.NotEmpty(t, ent.Output)

	all, err := env.entities.List(ctx, models.KindModule)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	rec, err := env.registry.GetInstallation(models.KindModule, "hero_block")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "modules/hero", rec.RepoPath)
	assert.Equal(t, "acme", rec.RepoOwner)
	assert.Equal(t, "main", rec.RepoBranch)
	assert.Equal(t, 1, env.render.calls)

	_, err = env.engine.Install(ctx, models.KindModule, "acme/blocks", "hero", "hero_block")
	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, models.MatchedByKey, exists.MatchedBy)

	all, err = env.entities.List(ctx, models.KindModule)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed install must not add a row")
}

func TestEngine_Install_ErrorOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.engine.Install(ctx, models.KindModule, "", "hero", "")
	var repoErr *RepositoryNotFoundError
	require.ErrorAs(t, err, &repoErr)
	assert.Empty(t, repoErr.Key)

	env.addRepo(t)
	env.seedHero()

	_, err = env.engine.Install(ctx, models.KindModule, "acme/other", "hero", "")
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, "acme/other", repoErr.Key)

	_, err = env.engine.Install(ctx, models.KindModule, "acme/blocks", "missing", "")
	var itemErr *ItemNotFoundError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, "missing", itemErr.Name)

	// An existing row with the same name blocks the install even without a key.
	_, err = env.entities.Insert(ctx, &cms.Entity{Kind: models.KindModule, Name: "Hero"})
	require.NoError(t, err)
	_, err = env.engine.Install(ctx, models.KindModule, "", "hero", "")
	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, models.MatchedByName, exists.MatchedBy)
	assert.Equal(t, 0, env.render.calls)
}

func TestEngine_Install_OptionalModuleFiles(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.remote.setFile("acme", "blocks", "modules/text-block/output.php", "<p>text</p>")

	res, err := env.engine.Install(ctx, models.KindModule, "", "text-block", "")
	require.NoError(t, err)
	assert.Equal(t, "Text Block", res.Title)

	ent, err := env.entities.Get(ctx, models.KindModule, res.EntityID)
	require.NoError(t, err)
	assert.Empty(t, ent.Input)
	assert.Equal(t, "<p>text</p>", ent.Output)

	// Without a key the item is tracked under its slug.
	rec, err := env.registry.GetInstallation(models.KindModule, "text-block")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestEngine_Install_TemplateRequiresBody(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.remote.setFile("acme", "blocks", "templates/base/config.yml", "key: base_tpl\n")

	_, err := env.engine.Install(ctx, models.KindTemplate, "", "base", "")
	require.Error(t, err)

	list, err := env.entities.List(ctx, models.KindTemplate)
	require.NoError(t, err)
	assert.Empty(t, list)

	env.remote.setFile("acme", "blocks", "templates/base/template.php", "<html>REX_ARTICLE[]</html>")
	res, err := env.engine.Install(ctx, models.KindTemplate, "", "base", "")
	require.NoError(t, err)
	assert.Equal(t, "base_tpl", res.Key)

	ent, err := env.entities.FindByKey(ctx, models.KindTemplate, "base_tpl")
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Equal(t, "<html>REX_ARTICLE[]</html>", ent.Content)
}

func TestEngine_Install_Assets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.seedHero()
	env.remote.setFile("acme", "blocks", "modules/hero/assets/css/hero.css", "body{}")
	env.remote.setFile("acme", "blocks", "modules/hero/assets/logo.svg", "<svg/>")

	res, err := env.engine.Install(ctx, models.KindModule, "", "hero", "hero_block")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Assets)

	files, err := env.assets.Files(models.KindModule, "hero_block")
	require.NoError(t, err)
	assert.Equal(t, []string{"css/hero.css", "logo.svg"}, files)
}

func TestEngine_Install_AssetFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.seedHero()
	env.remote.setFile("acme", "blocks", "modules/hero/assets/a.css", "a")
	env.remote.setFile("acme", "blocks", "modules/hero/assets/b.css", "b")
	env.remote.getErr["modules/hero/assets/a.css"] = errors.New("boom")

	res, err := env.engine.Install(ctx, models.KindModule, "", "hero", "hero_block")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Assets)
}

func TestEngine_Install_LegacySchemaMatchesByName(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, withCapabilities(cms.Capabilities{}))
	env.addRepo(t)
	env.seedHero()

	_, err := env.engine.Install(ctx, models.KindModule, "", "hero", "hero_block")
	require.NoError(t, err)

	_, err = env.engine.Install(ctx, models.KindModule, "", "hero", "hero_block")
	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, models.MatchedByName, exists.MatchedBy)
}

// ==================== Status Tests ====================

func TestEngine_StatusLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.seedHero()
	env.remote.setCommit("acme", "blocks", "modules/hero", "c1")

	list, err := env.engine.ListItems(ctx, models.KindModule, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusNew, list[0].Status)
	assert.Nil(t, list[0].Entity)

	_, err = env.engine.Install(ctx, models.KindModule, "", "hero", "hero_block")
	require.NoError(t, err)

	list, err = env.engine.ListItems(ctx, models.KindModule, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInstalled, list[0].Status)
	require.NotNil(t, list[0].Record)
	assert.Equal(t, "c1", list[0].Record.LastCommitSHA)

	env.remote.setCommit("acme", "blocks", "modules/hero", "c2")
	list, err = env.engine.ListItems(ctx, models.KindModule, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpdateAvailable, list[0].Status)
	assert.Equal(t, "c2", list[0].Update.New.SHA)

	env.remote.setFile("acme", "blocks", "modules/hero/output.php", "<section>hero v2</section>")
	res, err := env.engine.Update(ctx, models.KindModule, "", "hero", "")
	require.NoError(t, err)
	assert.Equal(t, "hero_block", res.Key)

	list, err = env.engine.ListItems(ctx, models.KindModule, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInstalled, list[0].Status)

	ent, err := env.entities.FindByKey(ctx, models.KindModule, "hero_block")
	require.NoError(t, err)
	assert.Equal(t, "<section>hero v2</section>", ent.Output)
}

func TestEngine_ListItems_NoFolder(t *testing.T) {
	env := newTestEnv(t)
	env.addRepo(t)

	list, err := env.engine.ListItems(context.Background(), models.KindTemplate, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_ZeroCommitPath(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.seedHero()

	_, err := env.engine.Install(ctx, models.KindModule, "", "hero", "hero_block")
	require.NoError(t, err)

	rec, err := env.registry.GetInstallation(models.KindModule, "hero_block")
	require.NoError(t, err)
	assert.Empty(t, rec.LastCommitSHA)

	reports, err := env.engine.CheckUpdates(ctx, "")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Check.Available)
	assert.Nil(t, reports[0].Check.New)

	// Once the path has a commit the stored sha is still empty: not an update.
	env.remote.setCommit("acme", "blocks", "modules/hero", "c1")
	reports, err = env.engine.CheckUpdates(ctx, models.KindModule)
	require.NoError(t, err)
	assert.False(t, reports[0].Check.Available)
}

// ==================== Update Tests ====================

func TestEngine_Update_NotInstalled(t *testing.T) {
	env := newTestEnv(t)
	env.addRepo(t)
	env.seedHero()

	_, err := env.engine.Update(context.Background(), models.KindModule, "", "hero", "hero_block")
	var notInstalled *NotInstalledError
	require.ErrorAs(t, err, &notInstalled)
	assert.Equal(t, 0, env.render.calls)
}

func TestEngine_Update_ByNameAssignsKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.seedHero()

	id, err := env.entities.Insert(ctx, &cms.Entity{Kind: models.KindModule, Name: "Hero", Input: "old"})
	require.NoError(t, err)

	res, err := env.engine.Update(ctx, models.KindModule, "", "hero", "hero_block")
	require.NoError(t, err)
	assert.Equal(t, models.MatchedByName, res.MatchedBy)
	assert.Equal(t, id, res.EntityID)

	ent, err := env.entities.FindByKey(ctx, models.KindModule, "hero_block")
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Equal(t, id, ent.ID)
	assert.Equal(t, "<?php /** Hero input */ ?>", ent.Input)
	assert.Equal(t, 1, env.render.calls)

	// Pre-existing rows without a record get one on update.
	rec, err := env.registry.GetInstallation(models.KindModule, "hero_block")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestEngine_Update_ByKeyKeepsRowIdentity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.seedHero()

	// The user renamed the row; the key still finds it.
	id, err := env.entities.Insert(ctx, &cms.Entity{Kind: models.KindModule, Name: "My Hero", Key: "hero_block"})
	require.NoError(t, err)

	res, err := env.engine.Update(ctx, models.KindModule, "", "hero", "hero_block")
	require.NoError(t, err)
	assert.Equal(t, models.MatchedByKey, res.MatchedBy)

	list, err := env.entities.List(ctx, models.KindModule)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "hero_block", list[0].Key)
	assert.Equal(t, "<section>hero</section>", list[0].Output)
}

// ==================== Registry Tests ====================

func TestEngine_RefreshAndForget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)
	env.seedHero()
	env.remote.setCommit("acme", "blocks", "modules/hero", "c1")

	_, err := env.engine.Install(ctx, models.KindModule, "", "hero", "hero_block")
	require.NoError(t, err)

	env.remote.setCommit("acme", "blocks", "modules/hero", "c2")
	n, err := env.engine.Refresh(ctx, models.KindModule, "", time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "fresh records are skipped")

	n, err = env.engine.Refresh(ctx, models.KindModule, "hero_block", time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := env.registry.GetInstallation(models.KindModule, "hero_block")
	require.NoError(t, err)
	assert.Equal(t, "c2", rec.LastCommitSHA)

	_, err = env.engine.Refresh(ctx, models.KindModule, "ghost", time.Hour, true)
	assert.True(t, IsNotInstalled(err))

	require.NoError(t, env.engine.Forget(models.KindModule, "hero_block"))
	assert.True(t, IsNotInstalled(env.engine.Forget(models.KindModule, "hero_block")))

	// The local row stays.
	ent, err := env.entities.FindByKey(ctx, models.KindModule, "hero_block")
	require.NoError(t, err)
	assert.NotNil(t, ent)
}

// ==================== Repository Tests ====================

func TestEngine_AddRepository(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	repo, err := env.engine.AddRepository(ctx, "acme", "blocks", "", "")
	require.NoError(t, err)
	assert.Equal(t, "blocks", repo.DisplayName)
	assert.Equal(t, "main", repo.Branch)
	assert.True(t, env.now.Equal(repo.AddedAt))

	def, err := env.engine.DefaultRepository()
	require.NoError(t, err)
	assert.Equal(t, "acme/blocks", def)

	_, err = env.engine.AddRepository(ctx, "acme", "blocks", "", "")
	assert.ErrorContains(t, err, "already exists")

	_, err = env.engine.AddRepository(ctx, "acme", "more", "More", "develop")
	require.NoError(t, err)
	def, err = env.engine.DefaultRepository()
	require.NoError(t, err)
	assert.Equal(t, "acme/blocks", def, "default is kept")

	env.remote.unreachable = true
	_, err = env.engine.AddRepository(ctx, "acme", "private", "", "")
	assert.ErrorContains(t, err, "cannot reach")

	repos, err := env.engine.ListRepositories()
	require.NoError(t, err)
	assert.Len(t, repos, 2)
}

func TestEngine_UpdateAndRemoveRepository(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addRepo(t)

	repo, err := env.engine.UpdateRepository(ctx, "acme/blocks", "", "develop")
	require.NoError(t, err)
	assert.Equal(t, "blocks", repo.DisplayName)
	assert.Equal(t, "develop", repo.Branch)

	_, err = env.engine.UpdateRepository(ctx, "acme/none", "x", "")
	var repoErr *RepositoryNotFoundError
	assert.ErrorAs(t, err, &repoErr)

	ok, err := env.engine.TestRepository(ctx, "acme/blocks")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, env.engine.RemoveRepository("acme/blocks"))
	assert.Equal(t, []string{"acme/blocks"}, env.remote.clearedRepos)

	def, err := env.engine.DefaultRepository()
	require.NoError(t, err)
	assert.Empty(t, def)

	assert.ErrorAs(t, env.engine.RemoveRepository("acme/blocks"), &repoErr)
	assert.ErrorAs(t, env.engine.SetDefaultRepository("acme/blocks"), &repoErr)
}
