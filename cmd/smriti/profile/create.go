package profilecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localmind/smriti/cmd/smriti/bootstrap"
	"github.com/localmind/smriti/pkg/backend"
	"github.com/localmind/smriti/pkg/cliui"
)

const createLongDesc string = `Create a profile.

Usernames are unique on the backend. Set client.username to the new name
to make it the default for other commands:
  smriti config set client.username <username>

Examples:
  smriti profile create ada --about "Mathematician"`

const createShortDesc string = "Create a profile"

func newCreateCmd() *cobra.Command {
	var about string

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: createShortDesc,
		Long:  createLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, args[0], about)
		},
	}

	cmd.Flags().StringVar(&about, "about", "", "Free text about you")
	addFlags(cmd)

	return cmd
}

func runCreate(cmd *cobra.Command, username, about string) error {
	env, err := bootstrap.OpenClient(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	id, err := env.Client.CreateProfile(cmd.Context(), username, about)
	if err != nil {
		if backend.IsConflict(err) {
			return fmt.Errorf("username %q is taken", username)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Created profile %s %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(username),
		cliui.HashStyle.Render(id),
	)
	return nil
}
