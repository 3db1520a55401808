package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/skyline93/zipr"
)

var cmdCat = &cobra.Command{
	Use:   "cat [flags] ARCHIVE ENTRY...",
	Short: "Print entry contents to stdout",
	Long: `
The "cat" command decompresses the named entries and writes their
contents to standard output, in the order given.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	Args:              cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCat(args[0], args[1:])
	},
}

func init() {
	cmdRoot.AddCommand(cmdCat)
}

func runCat(path string, names []string) error {
	a, err := zipr.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range names {
		e, err := a.Entry(name)
		if err != nil {
			return err
		}
		rc, err := a.Open(e)
		if err != nil {
			return err
		}
		_, err = io.Copy(os.Stdout, rc)
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}
