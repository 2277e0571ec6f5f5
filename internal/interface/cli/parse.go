package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/gatechain/internal/application/parser"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/catalog"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

func newParseCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "parse <command>",
		Short: "Parse a command and print its execution plan",
		Long: "Parse a command against the prompt catalog and print the detected\n" +
			"operators and execution plan without running anything.",
		Example: `  gatechain parse '>>analyze code="x" --> >>summarize :: "concise"'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			logger := logging.GetLogger()
			cat := catalog.New(osFs, globalConfig.Catalog(), logger)
			if err := cat.Reload(); err != nil {
				return err
			}

			res, err := parser.NewResolver(cat, logger).Resolve(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return writeOutput(c.OutOrStdout(), format, res)
		},
	}
	cmd.Flags().StringVar(&format, "format", FormatJSON, "output format (json|yaml)")
	return cmd
}
