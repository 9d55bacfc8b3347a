// Package smriticmder
package smriticmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/localmind/smriti/cmd/smriti/chat"
	chatscmder "github.com/localmind/smriti/cmd/smriti/chats"
	configcmder "github.com/localmind/smriti/cmd/smriti/config"
	initcmder "github.com/localmind/smriti/cmd/smriti/init"
	profilecmder "github.com/localmind/smriti/cmd/smriti/profile"
	tuicmder "github.com/localmind/smriti/cmd/smriti/tui"
	versioncmder "github.com/localmind/smriti/cmd/version"
)

const smritiLongDesc string = `Smriti is a terminal client for a LocalMind chat backend.

Replies stream in live and survive dropped connections. Chats are cached
locally so they can be read offline.

Get started using:
  smriti init          Create a local .smriti/ directory
  smriti chat          Start chatting
  smriti tui           Browse and continue chats full screen
  smriti chats         List and delete chats
  smriti profile       Show or edit your profile`

const smritiShortDesc string = "Smriti - LocalMind chat client"

func NewSmritiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "smriti",
		Short:         smritiShortDesc,
		Long:          smritiLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging to stderr")
	cmd.PersistentFlags().String("config-dir", "", "Override the .smriti/ directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(chatscmder.NewChatsCmd())
	cmd.AddCommand(profilecmder.NewProfileCmd())
	cmd.AddCommand(tuicmder.NewTUICmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
