package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"webchat/internal/adapter/terminal"
	"webchat/internal/usecase"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Long: `Start an interactive chat in the terminal. Replies stream as they
arrive. Type /help for commands and /exit to quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, opts.configPath)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			defaults := a.defaults()
			if model != "" {
				defaults.Model = model
			}
			sessions := usecase.NewSessionManager(defaults, 1)
			session, err := sessions.Create()
			if err != nil {
				return err
			}
			defer sessions.Delete(session.ID)

			var in terminal.LineReader
			if terminal.IsInteractive() {
				in = terminal.NewHistoryReader(historyPath())
			} else {
				in = terminal.NewScanReader(os.Stdin, os.Stdout)
			}
			defer func() {
				if err := in.Close(); err != nil {
					a.logger.Debug("chat history not saved", "error", err)
				}
			}()

			ctrl := usecase.NewController(a.client, a.logger)
			repl := terminal.NewREPL(ctrl, session, in, os.Stdout, !color.NoColor)
			return repl.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model for this chat (overrides llm.model)")
	return cmd
}

// historyPath is where typed lines are remembered between chats. An empty
// result keeps history in memory.
func historyPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "webchat", "chat_history")
}
