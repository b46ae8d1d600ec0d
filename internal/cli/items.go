package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/kilupskalvis/blocksync/internal/core"
	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/spf13/cobra"
)

// itemGroup describes one "modules" / "templates" / "classes" command group.
type itemGroup struct {
	kind     models.ItemKind
	singular string
	keyed    bool // accepts --key
}

var (
	itemModules   = itemGroup{kind: models.KindModule, singular: "module", keyed: true}
	itemTemplates = itemGroup{kind: models.KindTemplate, singular: "template", keyed: true}
	itemClasses   = itemGroup{kind: models.KindClass, singular: "class"}
)

// itemFlags are the flags shared by the subcommands of one group.
type itemFlags struct {
	repo    string
	key     string
	message string
}

func newItemCmd(g itemGroup) *cobra.Command {
	flags := &itemFlags{}
	plural := g.kind.Folder()

	cmd := &cobra.Command{
		Use:   plural,
		Short: fmt.Sprintf("List, install, update and upload %s", plural),
		Long: fmt.Sprintf(`Work with the %[1]s of a repository.

Without a subcommand, lists the %[1]s of the repository and whether each
is new, installed or has an update available.

Examples:
  blocksync %[1]s                         List %[1]s of the default repository
  blocksync %[1]s -r acme/blocks          List %[1]s of another repository
  blocksync %[1]s install <name>          Install a %[2]s
  blocksync %[1]s update <name>           Update an installed %[2]s
  blocksync %[1]s upload <ref>            Upload a local %[2]s`, plural, g.singular),
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runItemList(g, flags)
		},
	}
	cmd.PersistentFlags().StringVarP(&flags.repo, "repo", "r", "", "Repository (owner/repo); defaults to the default repository")

	status := &cobra.Command{
		Use:   "status <name>",
		Short: fmt.Sprintf("Show the status of one %s", g.singular),
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runItemStatus(g, flags, args[0])
		},
	}

	install := &cobra.Command{
		Use:   "install <name>",
		Short: fmt.Sprintf("Install a %s", g.singular),
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runItemInstall(g, flags, args[0], false)
		},
	}

	update := &cobra.Command{
		Use:   "update <name>",
		Short: fmt.Sprintf("Update an installed %s", g.singular),
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runItemInstall(g, flags, args[0], true)
		},
	}

	upload := &cobra.Command{
		Use:   "upload <ref>",
		Short: fmt.Sprintf("Upload a local %s", g.singular),
		Long: fmt.Sprintf(`Upload a local %[1]s to a repository.

For modules and templates ref is an id, key or name. For classes it is the
class directory name. Without --repo the upload goes to the [upload] target
from the configuration, else to the default repository. An existing README
in the repository is never overwritten.`, g.singular),
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runItemUpload(g, flags, args[0])
		},
	}
	upload.Flags().StringVarP(&flags.message, "message", "m", "", "Commit message")

	if g.keyed {
		for _, c := range []*cobra.Command{status, install, update} {
			c.Flags().StringVarP(&flags.key, "key", "k", "", "Stable key overriding the one in config.yml")
		}
	}

	cmd.AddCommand(status, install, update, upload)
	return cmd
}

func runItemList(g itemGroup, flags *itemFlags) {
	c := initFullContext()
	defer c.Close()

	items, err := c.Engine.ListItems(context.Background(), g.kind, flags.repo)
	if err != nil {
		exitError("%v", err)
	}
	if len(items) == 0 {
		fmt.Printf("No %s found\n", g.kind.Folder())
		return
	}

	for _, st := range items {
		md := st.Item.Base()
		fmt.Printf("%s %-28s %-8s %s\n", statusLabel(st.Status), md.Name, md.Version, md.Description)
	}
}

func runItemStatus(g itemGroup, flags *itemFlags, name string) {
	c := initFullContext()
	defer c.Close()

	st, err := c.Engine.Status(context.Background(), g.kind, flags.repo, name, flags.key)
	if err != nil {
		exitError("%v", err)
	}

	md := st.Item.Base()
	fmt.Printf("%s %s\n", md.Title, statusLabel(st.Status))
	fmt.Printf("  Path:        %s\n", md.Path())
	fmt.Printf("  Version:     %s\n", md.Version)
	if md.Author != "" {
		fmt.Printf("  Author:      %s\n", md.Author)
	}
	if md.Key != "" {
		fmt.Printf("  Key:         %s\n", md.Key)
	}
	if md.Description != "" {
		fmt.Printf("  Description: %s\n", md.Description)
	}
	if md.ReadmeURL != "" {
		fmt.Printf("  README:      %s\n", md.ReadmeURL)
	}
	if st.Entity != nil {
		fmt.Printf("  Local:       #%d %s (matched by %s)\n", st.Entity.ID, st.Entity.Name, st.MatchedBy)
	}
	if st.Record != nil {
		fmt.Printf("  Installed:   %s\n", humanize.Time(st.Record.InstalledAt))
		printCommit("  Commit:      ", st.Record.LastCommit())
	}
	if st.Update != nil && st.Update.Available {
		printCommit("  Latest:      ", st.Update.New)
	}
}

func runItemInstall(g itemGroup, flags *itemFlags, name string, update bool) {
	c := initFullContext()
	defer c.Close()

	var (
		res *core.InstallResult
		err error
	)
	if update {
		res, err = c.Engine.Update(context.Background(), g.kind, flags.repo, name, flags.key)
	} else {
		res, err = c.Engine.Install(context.Background(), g.kind, flags.repo, name, flags.key)
	}
	if err != nil {
		switch {
		case core.IsAlreadyExists(err):
			exitError("%v (use 'blocksync %s update %s')", err, g.kind.Folder(), name)
		case core.IsNotInstalled(err):
			exitError("%v (use 'blocksync %s install %s')", err, g.kind.Folder(), name)
		}
		var ioErr *core.LocalIOError
		if errors.As(err, &ioErr) && ioErr.Restored {
			exitError("%v (previous version restored)", err)
		}
		exitError("%v", err)
	}

	verb := "Installed"
	if update {
		verb = "Updated"
	}
	green := color.New(color.FgGreen)
	green.Printf("%s %s '%s'", verb, g.singular, res.Title)
	if res.Key != "" && res.Key != res.Name {
		green.Printf(" [%s]", res.Key)
	}
	fmt.Println()
	if res.EntityID != 0 {
		fmt.Printf("  Local id: %d\n", res.EntityID)
	}
	if res.Assets > 0 {
		fmt.Printf("  Assets:   %d file(s)\n", res.Assets)
	}
	printCommit("  Commit:   ", res.Commit)
}

func runItemUpload(g itemGroup, flags *itemFlags, ref string) {
	c := initFullContext()
	defer c.Close()

	res, err := c.Engine.Upload(context.Background(), flags.repo, g.kind, ref, flags.message)
	if err != nil {
		exitError("%v", err)
	}

	color.New(color.FgGreen).Printf("Uploaded %s to %s/%s\n", g.singular, res.Repository, res.Path)
	for _, p := range res.Uploaded {
		fmt.Printf("  + %s\n", p)
	}
	if len(res.Failed) > 0 {
		red := color.New(color.FgRed)
		for _, p := range res.Failed {
			red.Printf("  ! %s\n", p)
		}
		color.New(color.FgYellow).Printf("%d asset(s) could not be uploaded\n", len(res.Failed))
	}
}

func statusLabel(s models.Status) string {
	switch s {
	case models.StatusInstalled:
		return color.GreenString("%-16s", s)
	case models.StatusUpdateAvailable:
		return color.YellowString("%-16s", s)
	}
	return color.CyanString("%-16s", s)
}

func printCommit(prefix string, ci *models.CommitInfo) {
	if ci == nil {
		return
	}
	fmt.Printf("%s%s %s (%s)\n", prefix, shortSHA(ci.SHA), ci.Message, humanize.Time(ci.Date))
}
