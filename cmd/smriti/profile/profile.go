// Package profilecmder provides the profile command for reading and editing
// the personalization record the backend keeps for each user.
package profilecmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/localmind/smriti/pkg/backend"
	"github.com/localmind/smriti/pkg/cliui"
	"github.com/localmind/smriti/pkg/config"
)

const profileLongDesc string = `Show or edit your LocalMind profile.

The backend uses the "about me" text and the preferences of a profile to
personalize replies. Profiles are keyed by username; commands default to
client.username from the configuration.

Examples:
  smriti profile get
  smriti profile set --about "Backend developer in Pune" --preferences "short answers"
  smriti profile create ada --about "Mathematician"`

const profileShortDesc string = "Show or edit your profile"

func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: profileShortDesc,
		Long:  profileLongDesc,
	}

	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newCreateCmd())

	return cmd
}

func addFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagBaseURL, new(string))
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagUsername, new(string))
}

func printProfile(out io.Writer, p *backend.Profile) {
	fmt.Fprintf(out, "\n  %s %s\n\n", cliui.HeaderStyle.Render(p.Username), cliui.HashStyle.Render(p.ID))
	printField(out, "About me:", p.AboutMe)
	printField(out, "Preferences:", p.Preferences)
	if !p.UpdatedAt.IsZero() {
		printField(out, "Updated:", p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(out)
}

func printField(out io.Writer, key, value string) {
	if value == "" {
		fmt.Fprintf(out, "  %-13s %s\n", cliui.KeyStyle.Render(key), cliui.DimStyle.Render("<not set>"))
		return
	}
	fmt.Fprintf(out, "  %-13s %s\n", cliui.KeyStyle.Render(key), cliui.ValueStyle.Render(value))
}
