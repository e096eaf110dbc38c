package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vre-tools/exrun/internal/config"
	"github.com/vre-tools/exrun/internal/discovery"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	ConfigPath string
}

// ListResult holds the discovery result for output.
type ListResult struct {
	Cases    []string `json:"cases"`
	Sentinel string   `json:"sentinel"`
	Finalize string   `json:"finalize"`
	Total    int      `json:"total"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list [examples-dir]",
		Short: "List discovered example cases",
		Long: `List the example cases that a run would execute, in execution
order. The order is deterministic: the same directory contents always
produce the same sequence. The finalization case is not part of the
discovered set and is shown separately.

Examples:
  exrun list
  exrun list ./ExampleScripts --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return listCases(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to harness config (default <examples-dir>/"+config.FileName+")")

	return cmd
}

func listCases(opts *ListOptions, examplesDir string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.ConfigPath, examplesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	cases, err := discovery.Cases(examplesDir, cfg.Extension, cfg.Finalize)
	if err != nil {
		if opts.Format == "json" {
			writeJSONError(cmd.OutOrStdout(), "E_DISCOVERY", err.Error())
		}
		return WrapExitError(ExitCommandError, "discovery failed", err)
	}

	result := ListResult{
		Cases:    make([]string, 0, len(cases)),
		Sentinel: cfg.Sentinel,
		Finalize: cfg.Finalize,
		Total:    len(cases),
	}
	for _, c := range cases {
		result.Cases = append(result.Cases, c.Name)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}

	w := cmd.OutOrStdout()
	if len(cases) == 0 {
		fmt.Fprintln(w, "No cases found.")
		return nil
	}
	for _, c := range cases {
		if c.Name == cfg.Sentinel {
			fmt.Fprintf(w, "%s (unverified)\n", c.Name)
		} else {
			fmt.Fprintln(w, c.Name)
		}
	}
	fmt.Fprintf(w, "finalize: %s\n", cfg.Finalize)
	return nil
}
