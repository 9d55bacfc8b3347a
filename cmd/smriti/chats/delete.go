package chatscmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localmind/smriti/cmd/smriti/bootstrap"
	"github.com/localmind/smriti/pkg/cliui"
	"github.com/localmind/smriti/pkg/config"
	"github.com/localmind/smriti/pkg/dotdir"
	"github.com/localmind/smriti/pkg/transcript"
)

const deleteLongDesc string = `Delete a chat, or every chat with --all.

Deleting every chat also clears the local cache. The backend then starts
over with a greeting chat.

Examples:
  smriti chats delete c42
  smriti chats delete --all --yes`

const deleteShortDesc string = "Delete chats"

func newDeleteCmd() *cobra.Command {
	var all, yes bool

	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: deleteShortDesc,
		Long:  deleteLongDesc,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				if !yes {
					return errors.New("refusing to delete every chat without --yes")
				}
				return runDeleteAll(cmd)
			}
			return runDelete(cmd, args[0])
		},
	}

	config.AddClientFlags(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "Delete every chat")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deleting every chat")

	return cmd
}

func runDelete(cmd *cobra.Command, id string) error {
	env, err := bootstrap.Open(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Manager.Refresh(cmd.Context()); err != nil {
		return err
	}

	if err := env.Manager.Delete(cmd.Context(), id); err != nil {
		if errors.Is(err, transcript.ErrUnknownChat) {
			return fmt.Errorf("chat %q: %w", id, err)
		}
		return err
	}

	forgetResume(env, id)
	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Deleted %s\n\n", cliui.SuccessMark, cliui.HashStyle.Render(id))
	return nil
}

func runDeleteAll(cmd *cobra.Command) error {
	env, err := bootstrap.Open(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Manager.DeleteAll(cmd.Context()); err != nil {
		return err
	}

	if err := dotdir.NewManager().ClearResumeState(env.Dir); err != nil {
		env.Logger.Warn("could not clear resume state", "error", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Deleted every chat\n\n", cliui.SuccessMark)
	return nil
}

// forgetResume drops the resume state when it points at the deleted chat.
func forgetResume(env *bootstrap.Env, id string) {
	ddm := dotdir.NewManager()
	state, err := ddm.LoadResumeState(env.Dir)
	if err != nil || state == nil || state.ChatID != id {
		return
	}
	if err := ddm.ClearResumeState(env.Dir); err != nil {
		env.Logger.Warn("could not clear resume state", "error", err)
	}
}
