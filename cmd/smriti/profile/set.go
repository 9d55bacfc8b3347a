package profilecmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localmind/smriti/cmd/smriti/bootstrap"
	"github.com/localmind/smriti/pkg/backend"
	"github.com/localmind/smriti/pkg/cliui"
)

const setLongDesc string = `Update your profile.

The backend replaces every field on update, so fields that are not given
keep the value currently stored.

Examples:
  smriti profile set --about "Backend developer in Pune"
  smriti profile set --preferences "short answers, metric units"
  smriti profile set --about "" --username ada`

const setShortDesc string = "Update your profile"

type setCommander struct {
	about       string
	preferences string
}

func newSetCmd() *cobra.Command {
	cmder := &setCommander{}

	cmd := &cobra.Command{
		Use:   "set",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	addFlags(cmd)
	cmd.Flags().StringVar(&cmder.about, "about", "", "Free text about you")
	cmd.Flags().StringVar(&cmder.preferences, "preferences", "", "How replies should be shaped")

	return cmd
}

func (c *setCommander) run(cmd *cobra.Command) error {
	aboutSet := cmd.Flags().Changed("about")
	prefsSet := cmd.Flags().Changed("preferences")
	if !aboutSet && !prefsSet {
		return errors.New("nothing to update, pass --about and/or --preferences")
	}

	env, err := bootstrap.OpenClient(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	username := env.Config.Client.Username
	update := backend.ProfileUpdate{Username: username}

	current, err := env.Client.GetProfile(cmd.Context(), username)
	switch {
	case err == nil:
		update.AboutMe = current.AboutMe
		update.Preferences = current.Preferences
	case backend.IsNotFound(err):
		env.Logger.Debug("no stored profile, starting empty", "username", username)
	default:
		return err
	}

	if aboutSet {
		update.AboutMe = c.about
	}
	if prefsSet {
		update.Preferences = c.preferences
	}

	if err := env.Client.UpdateProfile(cmd.Context(), update); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Updated profile %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(username))
	return nil
}
