// Package chatscmder provides the chats command for listing, showing and
// deleting chats.
package chatscmder

import (
	"github.com/spf13/cobra"

	"github.com/localmind/smriti/pkg/config"
)

const chatsLongDesc string = `List, show and delete chats.

Without a subcommand the chats are listed. Listing and showing refresh from
the backend first; with --offline only the local cache is read.

Examples:
  smriti chats
  smriti chats show c42
  smriti chats delete c42
  smriti chats delete --all --yes`

const chatsShortDesc string = "List, show and delete chats"

func NewChatsCmd() *cobra.Command {
	list := newListCmd()

	cmd := &cobra.Command{
		Use:   "chats",
		Short: chatsShortDesc,
		Long:  chatsLongDesc,
		Args:  cobra.NoArgs,
		RunE:  list.RunE,
	}
	config.AddClientFlags(cmd)
	cmd.Flags().Bool("offline", false, "Read the local cache without contacting the backend")

	cmd.AddCommand(list)
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}
