package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/gatechain/internal/app"
	"github.com/YoshitsuguKoike/gatechain/internal/application/verify"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

func newVerifyHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-hook",
		Short: "Run the pending loop-mode verification from a host stop hook",
		Long: "Read the stop-hook payload from stdin, run the verification command\n" +
			"recorded in the wait-state file and print the hook decision as JSON.\n" +
			"The host may stop when no decision is returned.",
		RunE: func(c *cobra.Command, _ []string) error {
			in, err := readHookInput(c.InOrStdin())
			if err != nil {
				return err
			}

			paths := app.PathsFor(globalConfig.Home())
			hook := &verify.Hook{
				Wait:   verify.NewWaitStateFile(osFs, paths.WaitState),
				Runner: verify.NewExecRunner(),
				Logger: logging.GetLogger(),
			}
			decision, err := hook.Run(c.Context(), in)
			if err != nil {
				return err
			}
			return json.NewEncoder(c.OutOrStdout()).Encode(decision)
		},
	}
}

// readHookInput decodes the payload. Empty input means a first stop attempt.
func readHookInput(r io.Reader) (verify.HookInput, error) {
	var in verify.HookInput
	if err := json.NewDecoder(r).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return in, fmt.Errorf("decode hook input: %w", err)
	}
	return in, nil
}
