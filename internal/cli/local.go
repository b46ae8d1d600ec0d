package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Inspect local items",
}

var localClassesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List the classes in the local class directory",
	Long: `Analyse every directory of the local class directory: its main PHP file,
doc comment tags and config.yml. Directories without a PHP file are skipped.`,
	Args: cobra.NoArgs,
	Run:  runLocalClasses,
}

func init() {
	localCmd.AddCommand(localClassesCmd)
}

func runLocalClasses(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	classes, err := c.Engine.LocalClasses()
	if err != nil {
		exitError("%v", err)
	}
	if len(classes) == 0 {
		fmt.Printf("No classes in %s\n", c.Config.ClassPath())
		return
	}

	cyan := color.New(color.FgCyan)
	for _, lc := range classes {
		cyan.Printf("%s", lc.Name)
		fmt.Printf(" %s (%s)\n", lc.Version, lc.Filename)
		if lc.Title != lc.Name {
			fmt.Printf("  Title:       %s\n", lc.Title)
		}
		if lc.Description != "" {
			fmt.Printf("  Description: %s\n", lc.Description)
		}
		if lc.Namespace != "" {
			fmt.Printf("  Namespace:   %s\n", lc.Namespace)
		}
		if lc.Author != "" {
			fmt.Printf("  Author:      %s\n", lc.Author)
		}
		if lc.InstalledAt != "" {
			fmt.Printf("  Installed:   %s from %s\n", lc.InstalledAt, lc.SourcePath)
		}
		fmt.Printf("  Files:       %d\n", len(lc.Files))
	}
}
