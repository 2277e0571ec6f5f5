package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/gatechain/internal/application/pipeline"
)

// errRequestFailed marks a handled request whose response is an error
var errRequestFailed = errors.New("request failed")

type execFlags struct {
	request      string
	command      string
	chainID      string
	response     string
	verdict      string
	action       string
	gateMode     string
	forceRestart bool
	noGates      bool
	format       string
}

func newExecCmd() *cobra.Command {
	f := &execFlags{}
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Handle one request and print the response",
		Long: "Handle a single request against the persisted sessions. The request is\n" +
			"either a JSON document (--request, '-' for stdin) or built from flags.",
		Example: `  gatechain exec --command '>>analyze input="main.go" :: "no TODOs"'
  gatechain exec --chain-id chain-analyze --response "..."
  echo '{"chain_id":"chain-analyze","gate_verdict":"GATE_REVIEW: PASS - ok"}' | gatechain exec --request -`,
		RunE: func(c *cobra.Command, _ []string) error {
			req, err := f.build(c.InOrStdin())
			if err != nil {
				return err
			}

			container, err := newContainer(c.Context(), false)
			if err != nil {
				return err
			}
			defer container.Close()

			resp := container.Engine().Handle(c.Context(), req)
			if err := writeOutput(c.OutOrStdout(), f.format, resp); err != nil {
				return err
			}
			if resp.Status == pipeline.StatusError {
				return errRequestFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.request, "request", "", "request JSON, or - to read it from stdin")
	cmd.Flags().StringVar(&f.command, "command", "", "command to start")
	cmd.Flags().StringVar(&f.chainID, "chain-id", "", "run or base chain ID to continue")
	cmd.Flags().StringVar(&f.response, "response", "", "response to the current step")
	cmd.Flags().StringVar(&f.verdict, "verdict", "", "gate verdict, e.g. 'GATE_REVIEW: PASS - reason'")
	cmd.Flags().StringVar(&f.action, "action", "", "gate action after exhausted retries (retry|skip|abort)")
	cmd.Flags().StringVar(&f.gateMode, "gate-mode", "", "enforcement mode for this request (blocking|advisory|informational)")
	cmd.Flags().BoolVar(&f.forceRestart, "force-restart", false, "discard the chain's sessions and start over")
	cmd.Flags().BoolVar(&f.noGates, "no-gates", false, "disable gates for this request")
	cmd.Flags().StringVar(&f.format, "format", FormatJSON, "output format (json|yaml)")
	return cmd
}

// build assembles the request from --request or from the individual flags
func (f *execFlags) build(stdin io.Reader) (pipeline.Request, error) {
	var req pipeline.Request
	if f.request != "" {
		data := []byte(f.request)
		if f.request == "-" {
			var err error
			if data, err = io.ReadAll(stdin); err != nil {
				return req, fmt.Errorf("read request: %w", err)
			}
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("decode request: %w", err)
		}
		return req, nil
	}

	req = pipeline.Request{
		Command:      f.command,
		ChainID:      f.chainID,
		UserResponse: f.response,
		GateVerdict:  f.verdict,
		GateAction:   f.action,
		ForceRestart: f.forceRestart,
	}
	if f.gateMode != "" || f.noGates {
		req.Options = map[string]interface{}{}
		if f.gateMode != "" {
			req.Options[pipeline.OptionGateMode] = f.gateMode
		}
		if f.noGates {
			req.Options[pipeline.OptionGatesDisabled] = true
		}
	}
	return req, nil
}
