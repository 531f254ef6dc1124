package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"satchel/internal/ipc"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run queue database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Health()
				if err != nil {
					return fmt.Errorf("fetch queue health: %w", err)
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				printHealth(cmd, resp)
				if !healthOK(resp) {
					return fmt.Errorf("queue database diagnostics reported problems")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit diagnostics as JSON")
	return cmd
}

func healthOK(resp *ipc.HealthResponse) bool {
	return resp.DatabaseExists && resp.DatabaseReadable && resp.TableExists && resp.IntegrityCheck && resp.Error == ""
}

func printHealth(cmd *cobra.Command, resp *ipc.HealthResponse) {
	out := cmd.OutOrStdout()
	colorize := isTerminal(out)

	for _, line := range renderSectionHeader("Queue database", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Path", statusInfo, resp.DBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Exists", boolKind(resp.DatabaseExists), yesNo(resp.DatabaseExists), colorize))
	fmt.Fprintln(out, renderStatusLine("Readable", boolKind(resp.DatabaseReadable), yesNo(resp.DatabaseReadable), colorize))
	fmt.Fprintln(out, renderStatusLine("Schema", boolKind(resp.TableExists), yesNo(resp.TableExists), colorize))
	fmt.Fprintln(out, renderStatusLine("Integrity", boolKind(resp.IntegrityCheck), yesNo(resp.IntegrityCheck), colorize))
	fmt.Fprintln(out, renderStatusLine("Entries", statusInfo, fmt.Sprintf("%d", resp.TotalEntries), colorize))
	if resp.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, resp.Error, colorize))
	}
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}
