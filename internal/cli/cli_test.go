package cli

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "(not set)", maskToken(""))
	assert.Equal(t, "****", maskToken("abcd"))
	assert.Equal(t, "********wxyz", maskToken("ghp_1234567890wxyz"))
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()

	l := newLogger("debug", "json")
	assert.True(t, l.Enabled(ctx, slog.LevelDebug))

	l = newLogger("", "text")
	assert.False(t, l.Enabled(ctx, slog.LevelInfo))
	assert.True(t, l.Enabled(ctx, slog.LevelWarn))

	l = newLogger("error", "text")
	assert.False(t, l.Enabled(ctx, slog.LevelWarn))
}

func TestItemCommands(t *testing.T) {
	for _, g := range []itemGroup{itemModules, itemTemplates, itemClasses} {
		cmd := newItemCmd(g)
		assert.Equal(t, g.kind.Folder(), cmd.Name())
		assert.NotNil(t, cmd.PersistentFlags().Lookup("repo"))

		for _, sub := range []string{"status", "install", "update", "upload"} {
			c, _, err := cmd.Find([]string{sub})
			require.NoError(t, err)
			assert.Equal(t, sub, c.Name())
			if sub != "upload" {
				assert.Equal(t, g.keyed, c.Flags().Lookup("key") != nil, "%s %s --key", g.kind, sub)
			}
		}

		up, _, err := cmd.Find([]string{"upload"})
		require.NoError(t, err)
		assert.NotNil(t, up.Flags().Lookup("message"))
	}
}

func TestRootCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"init"},
		{"config", "set"},
		{"config", "set-token"},
		{"repo", "add"},
		{"repo", "use"},
		{"modules", "install"},
		{"templates", "upload"},
		{"classes", "update"},
		{"installed"},
		{"check-updates"},
		{"refresh"},
		{"forget"},
		{"cache", "clear"},
		{"local", "classes"},
		{"completion"},
	} {
		c, _, err := rootCmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], c.Name())
	}
}
