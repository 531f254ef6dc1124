package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"satchel/internal/ipc"
	"satchel/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return fmt.Errorf("fetch status: %w", err)
				}
				summary, err := client.Summary()
				if err != nil {
					return fmt.Errorf("fetch summary: %w", err)
				}
				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"status":  status,
						"summary": summary.Summary,
					})
				}
				printStatus(cmd, status, summary)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, status *ipc.StatusResponse, summary *ipc.SummaryResponse) {
	out := cmd.OutOrStdout()
	colorize := isTerminal(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	runningKind := statusError
	if status.Running {
		runningKind = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Running", runningKind, fmt.Sprintf("pid %d", status.PID), colorize))
	onlineKind := statusWarn
	onlineMsg := "remote store unreachable"
	if status.Online {
		onlineKind = statusOK
		onlineMsg = "remote store reachable"
	}
	fmt.Fprintln(out, renderStatusLine("Connectivity", onlineKind, onlineMsg, colorize))
	fmt.Fprintln(out, renderStatusLine("Queue DB", statusInfo, status.QueueDBPath, colorize))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	pendingKind := statusInfo
	if summary.Summary.PendingCount > 0 {
		pendingKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Pending", pendingKind, fmt.Sprintf("%d", summary.Summary.PendingCount), colorize))
	failedKind := statusOK
	if summary.Summary.FailedCount > 0 {
		failedKind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", summary.Summary.FailedCount), colorize))
	if count, ok := status.QueueStats[string(queue.StatusDelivering)]; ok && count > 0 {
		fmt.Fprintln(out, renderStatusLine("Delivering", statusInfo, fmt.Sprintf("%d", count), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("In flight", statusInfo, fmt.Sprintf("%d", status.Inflight), colorize))
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return fmt.Errorf("stop daemon: %w", err)
				}
				if resp.Stopping {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon is shutting down")
				}
				return nil
			})
		},
	}
}
