package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/di"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

const formatText = "text"

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and clear persisted chain sessions",
	}
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionClearCmd())
	cmd.AddCommand(newSessionHistoryCmd())
	return cmd
}

// withContainer runs fn against a freshly wired container and closes it
func withContainer(c *cobra.Command, fn func(*di.Container) error) error {
	container, err := newContainer(c.Context(), false)
	if err != nil {
		return err
	}
	defer container.Close()
	return fn(container)
}

// sessionsFor returns the sessions of a run ID, or of every run under a base ID
func sessionsFor(container *di.Container, chainID string) []*chain.Session {
	var out []*chain.Session
	for _, s := range container.Store().ListSessions() {
		if s.ChainID == chainID || chain.BaseChainID(s.ChainID) == chainID {
			out = append(out, s)
		}
	}
	return out
}

func newSessionListCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, including those waiting to be resumed",
		RunE: func(c *cobra.Command, _ []string) error {
			return withContainer(c, func(container *di.Container) error {
				sessions := container.Store().ListSessions()
				if format != formatText {
					return writeOutput(c.OutOrStdout(), format, sessions)
				}
				writeSessionTable(c.OutOrStdout(), sessions)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", formatText, "output format (text|json|yaml)")
	return cmd
}

func writeSessionTable(w io.Writer, sessions []*chain.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tSESSION\tSTEP\tLIFECYCLE\tPENDING\tLAST ACTIVE")
	for _, s := range sessions {
		pending := "-"
		switch {
		case s.PendingGateReview != nil:
			pending = "gate review"
		case s.PendingShellVerify != nil:
			pending = "verification"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			s.ChainID, s.SessionID, s.State.CurrentStep, s.State.TotalSteps,
			s.Lifecycle, pending, s.LastActivity.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func newSessionShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <chain-id>",
		Short: "Show the sessions of a run or base chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withContainer(c, func(container *di.Container) error {
				sessions := sessionsFor(container, args[0])
				if len(sessions) == 0 {
					return chain.ErrSessionNotFound.WithDetails(map[string]interface{}{"chainId": args[0]})
				}
				return writeOutput(c.OutOrStdout(), format, sessions)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", FormatJSON, "output format (json|yaml)")
	return cmd
}

func newSessionClearCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [chain-id]",
		Short: "Clear the sessions of a run or base chain",
		Long: "Clear the sessions of a run or base chain together with their stored step\n" +
			"results and argument history. Run numbers are not reused afterwards.",
		Args: func(c *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("--all takes no chain id")
			}
			if !all && len(args) != 1 {
				return fmt.Errorf("requires a chain id or --all")
			}
			return nil
		},
		RunE: func(c *cobra.Command, args []string) error {
			return withContainer(c, func(container *di.Container) error {
				store := container.Store()
				targets := args
				if all {
					seen := map[string]bool{}
					for _, s := range store.ListSessions() {
						if !seen[s.ChainID] {
							seen[s.ChainID] = true
							targets = append(targets, s.ChainID)
						}
					}
				}
				for _, id := range targets {
					n := len(sessionsFor(container, id))
					if err := store.ClearSessionsForChain(c.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(c.OutOrStdout(), "Cleared %s (%d sessions)\n", id, n)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every session")
	return cmd
}

// chainHistory is the history view of one chain
type chainHistory struct {
	ChainID    string                   `json:"chainId"`
	Runs       []string                 `json:"runs"`
	Executions []output.ExecutionRecord `json:"executions"`
}

func newSessionHistoryCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "history <chain-id>",
		Short: "Show run history and tracked executions of a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withContainer(c, func(container *di.Container) error {
				h := chainHistory{
					ChainID:    args[0],
					Runs:       append([]string{}, container.Store().GetRunHistory(args[0])...),
					Executions: []output.ExecutionRecord{},
				}
				for _, s := range sessionsFor(container, args[0]) {
					records, err := container.History().Records(c.Context(), s.SessionID)
					if err != nil {
						return err
					}
					h.Executions = append(h.Executions, records...)
				}
				return writeOutput(c.OutOrStdout(), format, h)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", FormatJSON, "output format (json|yaml)")
	return cmd
}
