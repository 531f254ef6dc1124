package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"satchel/internal/api"
	"satchel/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var sourceURL string
	var sourceTitle string
	var captureContext string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submit [text]",
		Short: "Submit a capture to the queue",
		Long:  "Submit a capture to the queue. Text is read from the argument, or from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := captureText(cmd, args)
			if err != nil {
				return err
			}

			req := ipc.SubmitRequest{Capture: api.SubmitRequest{
				Text:        text,
				SourceURL:   sourceURL,
				SourceTitle: sourceTitle,
				Context:     captureContext,
			}}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(req)
				if err != nil {
					return fmt.Errorf("submit capture: %w", err)
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Result)
				}
				out := cmd.OutOrStdout()
				if resp.Result.Accepted {
					fmt.Fprintf(out, "Capture accepted as %s\n", resp.Result.QueueID)
					return nil
				}
				return fmt.Errorf("capture rejected: %s", resp.Result.Reason)
			})
		},
	}

	cmd.Flags().StringVar(&sourceURL, "url", "", "Source page URL")
	cmd.Flags().StringVar(&sourceTitle, "title", "", "Source page title")
	cmd.Flags().StringVar(&captureContext, "context", "", "Free-form note stored with the capture")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the verdict as JSON")
	return cmd
}

func captureText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read capture text from stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("capture text is required (argument or stdin)")
	}
	return text, nil
}
