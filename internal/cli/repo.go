package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage source repositories",
	Long: `Manage the GitHub repositories items are installed from.

Without a subcommand, lists all configured repositories. The default
repository is marked with '*'.

Examples:
  blocksync repo                              List all repositories
  blocksync repo add acme blocks              Add acme/blocks on branch main
  blocksync repo add acme blocks -b develop   Add a repository on another branch
  blocksync repo use acme/blocks              Make a repository the default
  blocksync repo remove acme/blocks           Remove a repository`,
	Run: runRepoList,
}

var (
	repoName      string
	repoBranch    string
	repoNewName   string
	repoNewBranch string
)

var repoAddCmd = &cobra.Command{
	Use:   "add <owner> <repo>",
	Short: "Add a repository",
	Long: `Add a GitHub repository after checking that its branch can be reached.
The first repository added becomes the default.`,
	Args: cobra.ExactArgs(2),
	Run:  runRepoAdd,
}

var repoUpdateCmd = &cobra.Command{
	Use:   "update <owner/repo>",
	Short: "Change a repository's display name or branch",
	Args:  cobra.ExactArgs(1),
	Run:   runRepoUpdate,
}

var repoRemoveCmd = &cobra.Command{
	Use:     "remove <owner/repo>",
	Aliases: []string{"rm"},
	Short:   "Remove a repository",
	Long: `Remove a repository and purge its cached API responses.
Installed items keep their installation records.`,
	Args: cobra.ExactArgs(1),
	Run:  runRepoRemove,
}

var repoTestCmd = &cobra.Command{
	Use:   "test [owner/repo]",
	Short: "Check that a repository can be reached",
	Args:  cobra.MaximumNArgs(1),
	Run:   runRepoTest,
}

var repoUseCmd = &cobra.Command{
	Use:   "use <owner/repo>",
	Short: "Set the default repository",
	Args:  cobra.ExactArgs(1),
	Run:   runRepoUse,
}

func init() {
	repoAddCmd.Flags().StringVarP(&repoName, "name", "n", "", "Display name (defaults to the repository name)")
	repoAddCmd.Flags().StringVarP(&repoBranch, "branch", "b", models.DefaultBranch, "Branch to read from")
	repoUpdateCmd.Flags().StringVarP(&repoNewName, "name", "n", "", "New display name")
	repoUpdateCmd.Flags().StringVarP(&repoNewBranch, "branch", "b", "", "New branch")

	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoUpdateCmd)
	repoCmd.AddCommand(repoRemoveCmd)
	repoCmd.AddCommand(repoTestCmd)
	repoCmd.AddCommand(repoUseCmd)
}

func runRepoList(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	repos, err := c.Engine.ListRepositories()
	if err != nil {
		exitError("%v", err)
	}
	if len(repos) == 0 {
		fmt.Println("No repositories configured")
		return
	}

	def, _ := c.Engine.DefaultRepository()
	green := color.New(color.FgGreen)
	for _, r := range repos {
		marker := " "
		if r.Key() == def {
			marker = "*"
		}
		line := fmt.Sprintf("%s %-30s %-12s %s (added %s)", marker, r.Key(), r.Branch, r.DisplayName, humanize.Time(r.AddedAt))
		if marker == "*" {
			green.Println(line)
		} else {
			fmt.Println(line)
		}
	}
}

func runRepoAdd(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	r, err := c.Engine.AddRepository(context.Background(), args[0], args[1], repoName, repoBranch)
	if err != nil {
		exitError("%v", err)
	}

	color.New(color.FgGreen).Printf("Added repository '%s' (branch %s)\n", r.Key(), r.Branch)
}

func runRepoUpdate(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	r, err := c.Engine.UpdateRepository(context.Background(), args[0], repoNewName, repoNewBranch)
	if err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Updated repository '%s': %s, branch %s\n", r.Key(), r.DisplayName, r.Branch)
}

func runRepoRemove(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	if err := c.Engine.RemoveRepository(args[0]); err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Removed repository '%s'\n", args[0])
}

func runRepoTest(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	key := ""
	if len(args) == 1 {
		key = args[0]
	}

	r, err := c.Engine.Repository(key)
	if err != nil {
		exitError("%v", err)
	}
	ok, err := c.Engine.TestRepository(context.Background(), r.Key())
	if err != nil {
		exitError("%v", err)
	}
	if !ok {
		exitError("cannot reach repository '%s' (branch %s)", r.Key(), r.Branch)
	}

	color.New(color.FgGreen).Printf("Repository '%s' is reachable (branch %s)\n", r.Key(), r.Branch)
}

func runRepoUse(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	if err := c.Engine.SetDefaultRepository(args[0]); err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Default repository is now '%s'\n", args[0])
}
