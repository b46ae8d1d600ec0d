package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/blocksync/internal/config"
	"github.com/kilupskalvis/blocksync/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new blocksync project",
	Long: `Initialize a new blocksync project in the current directory.
This creates a .blocksync directory holding the configuration, the CMS
database, the repository registry and the response cache.`,
	Run: runInit,
}

var (
	initToken  string
	initAPIURL string
)

func init() {
	initCmd.Flags().StringVar(&initToken, "token", "", "GitHub token to store in the configuration")
	initCmd.Flags().StringVar(&initAPIURL, "api-url", config.DefaultAPIURL, "GitHub API base URL")
}

func runInit(cmd *cobra.Command, args []string) {
	if _, err := config.FindRoot(); err == nil {
		exitError("blocksync project already exists")
	}

	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Initialize(cwd)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	if initToken != "" || initAPIURL != config.DefaultAPIURL {
		cfg.GitHubToken = initToken
		cfg.APIURL = initAPIURL
		if err := cfg.Save(); err != nil {
			exitError("failed to save config: %v", err)
		}
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(context.Background()); err != nil {
		exitError("failed to initialize database: %v", err)
	}

	repos, err := store.NewRepoStore(cfg.ReposPath())
	if err != nil {
		exitError("failed to create repository registry: %v", err)
	}
	defer repos.Close()

	if err := repos.Initialize(); err != nil {
		exitError("failed to initialize repository registry: %v", err)
	}

	color.New(color.FgGreen).Printf("Initialized blocksync project in %s/\n", config.Dir)
	fmt.Println("\nRun 'blocksync repo add <owner> <repo>' to register a repository.")
}
