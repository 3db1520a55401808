package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skyline93/zipr"
)

var cmdExtract = &cobra.Command{
	Use:   "extract [flags] ARCHIVE",
	Short: "Extract all entries of an archive",
	Long: `
The "extract" command writes every entry of the archive below the target
directory, extracting entries concurrently. Entry names that would escape
the target directory are rejected.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	Args:              cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(args[0])
	},
}

// ExtractOptions bundles all options for the extract command.
type ExtractOptions struct {
	Target  string
	Workers int
}

var extractOptions ExtractOptions

func init() {
	cmdRoot.AddCommand(cmdExtract)

	f := cmdExtract.Flags()
	f.StringVarP(&extractOptions.Target, "target", "t", ".", "directory to extract into")
	f.IntVarP(&extractOptions.Workers, "workers", "w", 4, "number of concurrent extractions")
}

func runExtract(path string) error {
	a, err := zipr.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	var wg errgroup.Group
	wg.SetLimit(extractOptions.Workers)

	count := 0
	for e := range a.Entries() {
		rel := filepath.FromSlash(strings.TrimSuffix(e.Name, "/"))
		if rel == "" || !filepath.IsLocal(rel) {
			return errors.Errorf("entry %q escapes the target directory", e.Name)
		}
		dest := filepath.Join(extractOptions.Target, rel)

		if e.IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
			continue
		}

		count++
		wg.Go(func() error {
			return extractEntry(a, e, dest)
		})
	}

	if err := wg.Wait(); err != nil {
		return err
	}
	log.Infof("extracted %d entries to %s", count, extractOptions.Target)
	return nil
}

func extractEntry(a *zipr.Archive, e *zipr.Entry, dest string) error {
	log.Debugf("extracting %s (%d bytes)", e.Name, e.UncompressedSize)

	rc, err := a.Open(e)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}

	_, err = io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "extract %v", e.Name)
}
