package chatscmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localmind/smriti/cmd/smriti/bootstrap"
	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/cliui"
	"github.com/localmind/smriti/pkg/config"
	"github.com/localmind/smriti/pkg/transcript"
)

const showLongDesc string = `Show every message of a chat.

Examples:
  smriti chats show c42
  smriti chats show c42 --offline`

const showShortDesc string = "Show a chat"

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offline, _ := cmd.Flags().GetBool("offline")
			return runShow(cmd, args[0], offline)
		},
	}

	config.AddClientFlags(cmd)
	cmd.Flags().Bool("offline", false, "Read the local cache without contacting the backend")

	return cmd
}

func runShow(cmd *cobra.Command, id string, offline bool) error {
	env, err := bootstrap.Open(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if !offline {
		if err := env.Manager.Refresh(cmd.Context()); err != nil {
			return err
		}
	}

	c, ok := env.Manager.Store().Get(id)
	if !ok {
		return fmt.Errorf("chat %q: %w", id, transcript.ErrUnknownChat)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n  %s %s\n\n", cliui.HeaderStyle.Render(c.Title), cliui.HashStyle.Render(c.ID))
	for _, m := range c.Messages {
		fmt.Fprintf(out, "  %s %s\n", cliui.RoleStyle(string(m.Role)), cliui.DimStyle.Render(m.Timestamp.Local().Format("15:04")))
		fmt.Fprintf(out, "%s\n\n", indent(m))
	}
	return nil
}

func indent(m chat.Message) string {
	return "    " + strings.ReplaceAll(m.Content, "\n", "\n    ")
}
