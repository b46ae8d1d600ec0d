package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/spf13/cobra"
)

var installedCmd = &cobra.Command{
	Use:   "installed [modules|templates|classes]",
	Short: "List installed items",
	Long: `List the installation records: which repository, path and commit each
installed item came from.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInstalled,
}

var checkUpdatesCmd = &cobra.Command{
	Use:   "check-updates [modules|templates|classes]",
	Short: "Check installed items for remote changes",
	Args:  cobra.MaximumNArgs(1),
	Run:   runCheckUpdates,
}

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh <modules|templates|classes> [key]",
	Short: "Refresh the stored commit of installed items",
	Long: `Re-read the latest remote commit of installed items and store it.
Records refreshed within the cache lifetime are skipped unless --force is given.`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runRefresh,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <modules|templates|classes> <key>",
	Short: "Remove an installation record",
	Long:  `Remove an installation record. The local item itself is left in place.`,
	Args:  cobra.ExactArgs(2),
	Run:   runForget,
}

func init() {
	refreshCmd.Flags().BoolVarP(&refreshForce, "force", "f", false, "Refresh records that are still fresh")
}

// kindArg parses an optional kind argument. A missing argument selects every kind.
func kindArg(args []string, i int) models.ItemKind {
	if len(args) <= i {
		return ""
	}
	kind, ok := models.ParseItemKind(args[i])
	if !ok {
		exitError("unknown item kind %q (expected modules, templates or classes)", args[i])
	}
	return kind
}

func runInstalled(cmd *cobra.Command, args []string) {
	kind := kindArg(args, 0)
	c := initFullContext()
	defer c.Close()

	records, err := c.Engine.Installed(kind)
	if err != nil {
		exitError("%v", err)
	}
	if len(records) == 0 {
		fmt.Println("Nothing installed")
		return
	}

	for _, rec := range records {
		sha := "-"
		if rec.LastCommitSHA != "" {
			sha = shortSHA(rec.LastCommitSHA)
		}
		fmt.Printf("%-9s %-24s %-8s %s/%s@%s:%s  %s\n", rec.Kind, rec.Key, sha,
			rec.RepoOwner, rec.RepoName, rec.RepoBranch, rec.RepoPath, humanize.Time(rec.InstalledAt))
	}
}

func runCheckUpdates(cmd *cobra.Command, args []string) {
	kind := kindArg(args, 0)
	c := initFullContext()
	defer c.Close()

	reports, err := c.Engine.CheckUpdates(context.Background(), kind)
	if err != nil {
		exitError("%v", err)
	}

	yellow := color.New(color.FgYellow)
	available := 0
	for _, r := range reports {
		if !r.Check.Available {
			continue
		}
		available++
		yellow.Printf("%-9s %s", r.Record.Kind, r.Record.Key)
		fmt.Printf("  %s -> %s %s\n", shortSHA(r.Check.Current.SHA), shortSHA(r.Check.New.SHA), r.Check.New.Message)
	}

	if available == 0 {
		color.New(color.FgGreen).Printf("All %d installed item(s) are up to date\n", len(reports))
		return
	}
	fmt.Printf("\n%d of %d installed item(s) have updates\n", available, len(reports))
}

func runRefresh(cmd *cobra.Command, args []string) {
	kind := kindArg(args, 0)
	key := ""
	if len(args) == 2 {
		key = args[1]
	}
	c := initFullContext()
	defer c.Close()

	n, err := c.Engine.Refresh(context.Background(), kind, key, c.Config.CacheTTL(), refreshForce)
	if err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Refreshed %d record(s)\n", n)
}

func runForget(cmd *cobra.Command, args []string) {
	kind := kindArg(args, 0)
	c := initFullContext()
	defer c.Close()

	if err := c.Engine.Forget(kind, args[1]); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Forgot %s '%s'\n", kind, args[1])
}
