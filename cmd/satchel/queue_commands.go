package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"satchel/internal/api"
	"satchel/internal/ipc"
)

const listPreviewRunes = 60

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueShowCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))
	cmd.AddCommand(newQueueDiscardCommand(ctx))
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(statusFilter...)
				if err != nil {
					return fmt.Errorf("list queue: %w", err)
				}
				if jsonOutput {
					return writeJSON(cmd, map[string]any{"entries": resp.Entries})
				}
				printQueueList(cmd, resp.Entries)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Filter by status (pending, delivering, failed)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit entries as JSON")
	return cmd
}

func printQueueList(cmd *cobra.Command, entries []api.EntryView) {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.ID,
			entry.Status,
			fmt.Sprintf("%d", entry.RetryCount),
			entry.SourceDomain,
			previewText(entry.Text),
		})
	}
	writeTable(out,
		[]string{"ID", "Status", "Retries", "Source", "Text"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func previewText(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(collapsed) <= listPreviewRunes {
		return collapsed
	}
	runes := []rune(collapsed)
	return string(runes[:listPreviewRunes]) + "…"
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a queued capture in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList()
				if err != nil {
					return fmt.Errorf("list queue: %w", err)
				}
				for _, entry := range resp.Entries {
					if entry.ID != id {
						continue
					}
					if jsonOutput {
						return writeJSON(cmd, entry)
					}
					printEntry(cmd, entry)
					return nil
				}
				return fmt.Errorf("queue entry %s not found", id)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the entry as JSON")
	return cmd
}

func printEntry(cmd *cobra.Command, entry api.EntryView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", entry.ID)
	fmt.Fprintf(out, "Status:      %s\n", entry.Status)
	fmt.Fprintf(out, "Retries:     %d\n", entry.RetryCount)
	if entry.LastError != "" {
		fmt.Fprintf(out, "Last error:  %s\n", entry.LastError)
	}
	if entry.SourceURL != "" {
		fmt.Fprintf(out, "Source URL:  %s\n", entry.SourceURL)
	}
	if entry.SourceTitle != "" {
		fmt.Fprintf(out, "Source:      %s\n", entry.SourceTitle)
	}
	fmt.Fprintf(out, "Created:     %s\n", entry.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Updated:     %s\n", entry.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, entry.Text)
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Retry failed captures immediately",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					id := strings.TrimSpace(arg)
					resp, err := client.Retry(id)
					if err != nil {
						return fmt.Errorf("retry %s: %w", id, err)
					}
					if resp.Retrying {
						fmt.Fprintf(out, "Entry %s queued for delivery\n", id)
					} else {
						fmt.Fprintf(out, "Entry %s is not in a retryable state (only failed entries can be retried)\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>...",
		Short: "Remove captures from the queue without delivering them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					id := strings.TrimSpace(arg)
					resp, err := client.Discard(id)
					if err != nil {
						return fmt.Errorf("discard %s: %w", id, err)
					}
					if resp.Discarded {
						fmt.Fprintf(out, "Entry %s discarded\n", id)
					} else {
						fmt.Fprintf(out, "Entry %s not found\n", id)
					}
				}
				return nil
			})
		},
	}
}
