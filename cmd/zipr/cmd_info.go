package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyline93/zipr"
)

var cmdInfo = &cobra.Command{
	Use:   "info [flags] ARCHIVE",
	Short: "Print summary information about an archive",
	Long: `
The "info" command prints the entry count, the archive comment and
whether the file carries a prepended stub.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	Args:              cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(args[0])
	},
}

func init() {
	cmdRoot.AddCommand(cmdInfo)
}

func runInfo(path string) error {
	a, err := zipr.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("entries:        %d\n", a.Count())
	fmt.Printf("prepended stub: %v\n", !a.StartsWithLocalHeader())
	if c := a.Comment(); c != "" {
		fmt.Printf("comment:        %s\n", c)
	}
	if meta := a.MetaNames(); len(meta) > 0 {
		fmt.Printf("meta entries:   %d\n", len(meta))
		for _, name := range meta {
			fmt.Printf("  %s\n", name)
		}
	}
	return nil
}
