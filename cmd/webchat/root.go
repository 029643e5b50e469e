package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "webchat",
		Short: "Chat with an OpenAI-compatible model from the browser or terminal",
		Long: `webchat serves a chat page that forwards your messages to an
OpenAI-compatible chat-completions API and streams the answer back.

The API key is read from OPENAI_API_KEY (or llm.api_key in the config file).
Environment variables override the config file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newCheckCmd(opts),
		newEncryptCmd(),
	)
	return cmd
}
