package profilecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localmind/smriti/cmd/smriti/bootstrap"
	"github.com/localmind/smriti/pkg/backend"
)

const getLongDesc string = `Show a profile.

Without an argument the configured client.username is shown.

Examples:
  smriti profile get
  smriti profile get ada`

const getShortDesc string = "Show a profile"

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [username]",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := ""
			if len(args) == 1 {
				username = args[0]
			}
			return runGet(cmd, username)
		},
	}

	addFlags(cmd)
	return cmd
}

func runGet(cmd *cobra.Command, username string) error {
	env, err := bootstrap.OpenClient(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	p, err := env.Client.GetProfile(cmd.Context(), username)
	if err != nil {
		if backend.IsNotFound(err) {
			if username == "" {
				username = env.Config.Client.Username
			}
			return fmt.Errorf("no profile for %q, create one with: smriti profile create %s", username, username)
		}
		return err
	}

	printProfile(cmd.OutOrStdout(), p)
	return nil
}
