package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/blocksync/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
	Long: `Show or change the settings in .blocksync/config.toml.

Without a subcommand, shows every setting.

Examples:
  blocksync config                             Show all settings
  blocksync config set cache_lifetime 7200     Change a setting
  blocksync config set upload.owner acme       Set the default upload owner
  blocksync config set-token                   Store a GitHub token`,
	Run: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	Run:   runConfigSet,
}

var configSetTokenCmd = &cobra.Command{
	Use:   "set-token",
	Short: "Store the GitHub token",
	Long: `Store or replace the GitHub token used for API requests.
The token is read from stdin for security (not passed as an argument).
BLOCKSYNC_TOKEN in the environment or a .env file overrides the stored token.

Examples:
  blocksync config set-token                     # prompts for token
  echo "ghp_..." | blocksync config set-token    # pipe token from stdin`,
	Args: cobra.NoArgs,
	Run:  runConfigSetToken,
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetTokenCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	c := initContext()
	cfg := c.Config

	for _, key := range config.Keys() {
		v, _ := cfg.Get(key)
		if key == "github_token" {
			v = maskToken(cfg.Token())
			if cfg.TokenFromEnv() {
				v += " (from " + config.TokenEnv + ")"
			}
		}
		fmt.Printf("%-18s %s\n", key, v)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) {
	c := initContext()

	if args[0] == "github_token" {
		exitError("use 'blocksync config set-token' to store a token")
	}
	if err := c.Config.Set(args[0], args[1]); err != nil {
		exitError("%v", err)
	}
	if err := c.Config.Save(); err != nil {
		exitError("%v", err)
	}

	v, _ := c.Config.Get(args[0])
	fmt.Printf("%s = %s\n", args[0], v)
}

func runConfigSetToken(cmd *cobra.Command, args []string) {
	c := initContext()

	fmt.Fprint(os.Stderr, "Enter GitHub token: ")

	reader := bufio.NewReader(os.Stdin)
	token, err := reader.ReadString('\n')
	if err != nil && token == "" {
		exitError("failed to read token: %v", err)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		exitError("token cannot be empty")
	}

	c.Config.GitHubToken = token
	if err := c.Config.Save(); err != nil {
		exitError("%v", err)
	}

	color.New(color.FgGreen).Println("Token stored")
	if c.Config.TokenFromEnv() {
		color.New(color.FgYellow).Printf("Note: %s is set and takes precedence\n", config.TokenEnv)
	}
}

// maskToken hides all but the last four characters of a token.
func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}
