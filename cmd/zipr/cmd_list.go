package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyline93/zipr"
)

var cmdList = &cobra.Command{
	Use:   "list [flags] ARCHIVE",
	Short: "List the entries of an archive",
	Long: `
The "list" command prints the entries of an archive in central directory
order.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	Args:              cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(args[0])
	},
}

// ListOptions bundles all options for the list command.
type ListOptions struct {
	Long bool
}

var listOptions ListOptions

func init() {
	cmdRoot.AddCommand(cmdList)

	f := cmdList.Flags()
	f.BoolVarP(&listOptions.Long, "long", "l", false, "print size, method and modification time")
}

func runList(path string) error {
	a, err := zipr.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	if !listOptions.Long {
		for name := range a.Names() {
			fmt.Println(name)
		}
		return nil
	}

	for e := range a.Entries() {
		method := "stored"
		if e.Method == zipr.Deflated {
			method = "deflated"
		}
		fmt.Printf("%10d  %-8s  %s  %s\n",
			e.UncompressedSize, method, e.ModTime.Format("2006-01-02 15:04"), e.Name)
	}
	return nil
}
