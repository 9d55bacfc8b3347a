package chatscmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/localmind/smriti/cmd/smriti/bootstrap"
	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/cliui"
	"github.com/localmind/smriti/pkg/config"
	"github.com/localmind/smriti/pkg/transcript"
	"github.com/localmind/smriti/pkg/utils"
)

const previewLen = 48

const listLongDesc string = `List chats, newest last.

Examples:
  smriti chats list
  smriti chats list --offline`

const listShortDesc string = "List chats"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			offline, _ := cmd.Flags().GetBool("offline")
			return runList(cmd, offline)
		},
	}

	config.AddClientFlags(cmd)
	cmd.Flags().Bool("offline", false, "Read the local cache without contacting the backend")

	return cmd
}

func runList(cmd *cobra.Command, offline bool) error {
	env, err := bootstrap.Open(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	out := cmd.OutOrStdout()
	if !offline {
		err := cliui.Step(cmd.ErrOrStderr(), "Refreshing chats", func() error {
			return env.Manager.Refresh(cmd.Context())
		})
		if err != nil {
			return err
		}
	}

	entries := env.Manager.Store().List()
	if len(entries) == 0 {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No chats yet. Start one with: smriti chat"))
		return nil
	}

	fmt.Fprintln(out)
	for _, e := range entries {
		printEntry(out, e)
	}
	fmt.Fprintln(out)
	return nil
}

func printEntry(out io.Writer, e transcript.Entry) {
	preview := ""
	if opening, ok := e.Chat.Opening(); ok {
		preview = utils.Truncate(utils.FirstLine(opening.Content), previewLen)
	}

	fmt.Fprintf(out, "  %s  %s %s  %s\n",
		cliui.HashStyle.Render(fmt.Sprintf("%-8s", e.Key)),
		cliui.NameStyle.Render(e.Chat.Title),
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages, %s)", len(e.Chat.Messages), updated(e.Chat))),
		cliui.PreviewStyle.Render(preview),
	)
}

func updated(c chat.Chat) string {
	if c.UpdatedAt.IsZero() {
		return "never"
	}
	return c.UpdatedAt.Local().Format("2006-01-02 15:04")
}
