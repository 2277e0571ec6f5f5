package cli

import (
	_ "embed"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/gatechain/internal/app"
	infraConfig "github.com/YoshitsuguKoike/gatechain/internal/infra/config"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/fs"
)

//go:embed templates/prompts.yaml
var promptsTmpl []byte

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the gatechain home with default settings and a starter prompt catalog",
		Long: "Create the gatechain home directory structure. Existing settings.yaml and\n" +
			"prompts.yaml files are left untouched.",
		RunE: func(c *cobra.Command, _ []string) error {
			paths := app.PathsFor(globalConfig.Home())

			for _, d := range []string{paths.Var, paths.RuntimeState} {
				if err := osFs.MkdirAll(d, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", d, err)
				}
			}

			written := []string{}
			files := []struct {
				path string
				data []byte
			}{
				{paths.Settings, infraConfig.CreateDefaultSettings()},
				{paths.Catalog, promptsTmpl},
			}
			for _, f := range files {
				ok, err := writeIfNotExists(osFs, f.path, f.data)
				if err != nil {
					return err
				}
				if ok {
					written = append(written, f.path)
				}
			}

			out := c.OutOrStdout()
			fmt.Fprintf(out, "Initialized %s\n", paths.Home)
			for _, p := range written {
				fmt.Fprintf(out, "  %s\n", filepath.ToSlash(p))
			}
			return nil
		},
	}
}

// writeIfNotExists reports whether the file was written
func writeIfNotExists(fsys afero.Fs, path string, data []byte) (bool, error) {
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := fs.WriteFileAtomic(fsys, path, data); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return true, nil
}
