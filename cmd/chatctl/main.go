// Package main provides chatctl, a terminal client for the streaming chat
// server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		server   string
		speakTo  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "chatctl",
		Short: "Chat with the guitar store assistant",
		Long: `chatctl streams assistant replies from a running chat server.

Type a message and press enter. Commands:
  /retry              resend the last message
  /transcribe <file>  send the transcript of an audio file
  /quit               exit

Ctrl+C stops the reply being streamed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := newApp(server, speakTo, parseLevel(logLevel))
			return app.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "http://localhost:8090", "Chat server base URL")
	cmd.Flags().StringVar(&speakTo, "speak", "", "Directory to write spoken replies to (mp3)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	return cmd
}
