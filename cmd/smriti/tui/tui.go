// Package tuicmder provides the tui command, a full screen chat client: a
// list of chats beside the open transcript, with replies streaming in live.
package tuicmder

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/localmind/smriti/cmd/smriti/bootstrap"
	"github.com/localmind/smriti/pkg/config"
	"github.com/localmind/smriti/pkg/transcript"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

// updateBuffer is deep enough that a watcher keeps up with a fast stream
// while the program is busy rendering.
const updateBuffer = 512

const tuiLongDesc string = `Browse and continue chats full screen.

Chats are listed on the left, the open transcript on the right. Replies
stream into the transcript as they arrive; a dropped connection is retried
and the reply picks up where it left off.

Keys:
  enter      send the message (input) or open the chat (list)
  tab        switch between the input and the chat list
  ctrl+n     start a new chat
  esc        stop the reply streaming into the open chat
  ctrl+r     refresh chats from the backend
  d          delete the chat under the cursor (list)
  ctrl+c     quit

Examples:
  smriti tui
  smriti tui --chat 65f1c2
  smriti tui --offline`

const tuiShortDesc string = "Full screen chat client"

type tuiCommander struct {
	chatID  string
	offline bool
}

func NewTUICmd() *cobra.Command {
	cmder := &tuiCommander{}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: tuiShortDesc,
		Long:  tuiLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddClientFlags(cmd)
	cmd.Flags().StringVarP(&cmder.chatID, "chat", "c", "", "Open this chat")
	cmd.Flags().BoolVar(&cmder.offline, "offline", false, "Start from the local cache without contacting the backend")

	return cmd
}

func (c *tuiCommander) run(cmd *cobra.Command) error {
	env, err := bootstrap.Open(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	if !c.offline {
		if err := env.Manager.Refresh(ctx); err != nil {
			env.Logger.Warn("could not refresh chats", "error", err)
		}
	}

	if c.chatID != "" {
		if _, ok := env.Manager.Store().Get(c.chatID); !ok {
			return fmt.Errorf("chat %q: %w", c.chatID, transcript.ErrUnknownChat)
		}
	}

	updates, stop := env.Manager.Store().Watch(updateBuffer)
	defer stop()

	model := newTUIModel(ctx, env.Manager, updates, c.chatID)
	model.modelName = env.Config.Client.Model

	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, err = program.Run()
	return err
}
