package cli

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/gatechain/internal/app"
	"github.com/YoshitsuguKoike/gatechain/internal/di"
)

// DoctorReport is the JSON output of the doctor command
type DoctorReport struct {
	Home           string      `json:"home"`
	ConfigSource   string      `json:"config_source"`
	ResultsBackend string      `json:"results_backend"`
	Prompts        int         `json:"prompts"`
	Sessions       int         `json:"sessions"`
	Health         *app.Health `json:"health,omitempty"`
	Warnings       []string    `json:"warnings"`
	Errors         []string    `json:"errors"`
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the home directory, catalog and session store",
		RunE: func(c *cobra.Command, _ []string) error {
			report := runDoctor(c)
			if jsonOutput {
				return writeOutput(c.OutOrStdout(), FormatJSON, report)
			}
			printDoctor(c.OutOrStdout(), report)
			if len(report.Errors) > 0 {
				return fmt.Errorf("doctor found %d problem(s)", len(report.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func runDoctor(c *cobra.Command) DoctorReport {
	report := DoctorReport{
		Home:           globalConfig.Home(),
		ConfigSource:   globalConfig.ConfigSource(),
		ResultsBackend: globalConfig.ResultsBackend(),
		Warnings:       []string{},
		Errors:         []string{},
	}
	if report.ResultsBackend == "" {
		report.ResultsBackend = "file"
	}

	if ok, _ := afero.DirExists(osFs, report.Home); !ok {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s does not exist, run 'gatechain init'", report.Home))
	}
	if report.ConfigSource != "yaml" {
		report.Warnings = append(report.Warnings, "settings.yaml not found, using defaults")
	}

	container, err := newContainer(c.Context(), false)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	defer container.Close()

	report.Prompts = len(container.Catalog().List())
	if report.Prompts == 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("no prompts in %s", container.Catalog().Path()))
	}
	report.Sessions = len(container.Store().ListSessions())
	report.Health = lastHealth(container, &report)
	return report
}

func lastHealth(container *di.Container, report *DoctorReport) *app.Health {
	h, found, err := app.ReadHealth(container.Fs(), container.Paths().Health)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("unreadable health snapshot: %v", err))
		return nil
	}
	if !found {
		return nil
	}
	if !h.OK {
		report.Warnings = append(report.Warnings, fmt.Sprintf("last served request failed: %s", h.Error))
	}
	return &h
}

func printDoctor(w io.Writer, r DoctorReport) {
	fmt.Fprintln(w, "Home:", r.Home)
	fmt.Fprintln(w, "Config:", r.ConfigSource)
	fmt.Fprintln(w, "Results backend:", r.ResultsBackend)
	if len(r.Errors) == 0 {
		fmt.Fprintf(w, "OK: %d prompts loaded\n", r.Prompts)
		fmt.Fprintf(w, "OK: %d sessions persisted\n", r.Sessions)
	}
	if r.Health != nil {
		fmt.Fprintf(w, "INFO: last serve at %s handled %d requests (last %s)\n", r.Health.TS, r.Health.Requests, r.Health.LastStatus)
	}
	for _, msg := range r.Warnings {
		fmt.Fprintln(w, "WARN:", msg)
	}
	for _, msg := range r.Errors {
		fmt.Fprintln(w, "ERROR:", msg)
	}
}
