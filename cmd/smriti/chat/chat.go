// Package chatcmder provides the chat command: streaming conversations with
// the LocalMind backend.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/localmind/smriti/cmd/smriti/bootstrap"
	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/cliui"
	"github.com/localmind/smriti/pkg/config"
	"github.com/localmind/smriti/pkg/dotdir"
	"github.com/localmind/smriti/pkg/stream"
	"github.com/localmind/smriti/pkg/transcript"
)

const historyPreview = 6

type chatCommander struct {
	chatID      string
	resume      bool
	interactive bool
	dump        string

	env *bootstrap.Env
	in  io.Reader
	out io.Writer
	key string
}

const chatLongDesc string = `Chat with the LocalMind backend.

Replies stream in as the backend produces them. A dropped stream is retried
with exponential backoff (stream.max_attempts, stream.base_delay).

With a message argument, or with piped input, one message is sent and the
reply is printed. Otherwise an interactive session starts: type a message and
press Enter. /new starts a new chat, /exit or Ctrl+D quits, Ctrl+C cancels
the reply that is streaming.

Examples:
  smriti chat
  smriti chat "What is a monad?"
  smriti chat --continue
  echo "Summarize this" | smriti chat --chat c42
  smriti chat --dump stream.log`

const chatShortDesc string = "Chat with the LocalMind backend"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd, args)
		},
	}

	config.AddClientFlags(cmd)
	cmd.Flags().StringVarP(&cmder.chatID, "chat", "c", "", "Continue the chat with this id")
	cmd.Flags().BoolVarP(&cmder.resume, "continue", "C", false, "Continue the chat of the last session")
	cmd.Flags().BoolVarP(&cmder.interactive, "interactive", "i", false, "Read messages line by line even when input is not a terminal")
	cmd.Flags().StringVar(&cmder.dump, "dump", "", "Append the raw event stream to this file")
	cmd.MarkFlagsMutuallyExclusive("chat", "continue")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command, args []string) error {
	var extra []stream.SupervisorOption
	if c.dump != "" {
		f, err := os.OpenFile(c.dump, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening dump file: %w", err)
		}
		defer f.Close()
		extra = append(extra, stream.WithSessionOptions(stream.WithTee(f)))
	}

	env, err := bootstrap.Open(cmd, extra...)
	if err != nil {
		return err
	}
	defer env.Close()
	c.env = env

	ctx := cmd.Context()
	if err := c.selectChat(ctx); err != nil {
		return err
	}

	if len(args) > 0 {
		return c.oneShot(ctx, strings.Join(args, " "))
	}

	if !c.interactive && !isTerminal(c.in) {
		data, err := io.ReadAll(c.in)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		return c.oneShot(ctx, string(data))
	}

	return c.loop(ctx)
}

// selectChat resolves --chat / --continue against the backend's chat list,
// falling back to the cache when the backend is unreachable.
func (c *chatCommander) selectChat(ctx context.Context) error {
	id := c.chatID
	if c.resume {
		state, err := dotdir.NewManager().LoadResumeState(c.env.Dir)
		if err != nil {
			return err
		}
		if state == nil {
			return errors.New("no previous chat to continue")
		}
		id = state.ChatID
	}
	if id == "" {
		return nil
	}

	if err := c.env.Manager.Refresh(ctx); err != nil {
		c.env.Logger.Warn("could not refresh chats, using cache", "error", err)
	}

	if _, ok := c.env.Manager.Store().Get(id); !ok {
		return fmt.Errorf("chat %q: %w", id, transcript.ErrUnknownChat)
	}
	c.key = id
	return nil
}

func (c *chatCommander) oneShot(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return transcript.ErrEmptyMessage
	}

	err := c.exchange(ctx, message)
	fmt.Fprintln(c.out)
	c.saveResume()
	return err
}

func (c *chatCommander) loop(ctx context.Context) error {
	fmt.Fprintln(c.out)
	if current, ok := c.env.Manager.Store().Get(c.key); ok && c.key != "" {
		fmt.Fprintf(c.out, "  %s Continuing %s %s\n",
			cliui.SuccessMark,
			cliui.HashStyle.Render(current.ID),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(current.Messages))),
		)
		c.printHistory(current)
	} else {
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(c.env.Client.Model()),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /new for a new chat, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, cliui.UserPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(c.out)
			return nil
		case "/new":
			c.key = ""
			fmt.Fprintf(c.out, "  %s New conversation\n\n", cliui.DimStyle.Render("●"))
			continue
		}

		fmt.Fprint(c.out, cliui.AssistantPrompt)
		if err := c.exchange(ctx, input); err != nil {
			fmt.Fprintf(c.out, "\n  %s %v\n", cliui.FailMark, err)
		}
		c.saveResume()
		fmt.Fprint(c.out, "\n\n")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// exchange sends message and prints the reply as it streams. Ctrl+C cancels
// only this reply.
func (c *chatCommander) exchange(ctx context.Context, message string) error {
	store := c.env.Manager.Store()
	updates, unsubscribe := store.Watch(256)
	defer unsubscribe()

	replyCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	h, err := c.env.Manager.Send(replyCtx, c.key, message)
	if err != nil {
		return err
	}

	key := h.Key()
	snapshot, _ := store.Get(key)
	printer := &replyPrinter{w: c.out, index: len(snapshot.Messages) - 1}

wait:
	for {
		select {
		case u := <-updates:
			if u.Renamed == key {
				key = u.Key
			}
			if u.Key == key && !u.Deleted {
				printer.show(u.Chat)
			}
		case <-h.Done():
			break wait
		}
	}

	c.key = store.Resolve(key)
	if final, ok := store.Get(c.key); ok {
		printer.show(final)
	}

	err = h.Wait()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(c.out, " %s", cliui.DimStyle.Render("(canceled)"))
		return nil
	default:
		return err
	}
}

func (c *chatCommander) printHistory(current chat.Chat) {
	msgs := current.Messages
	if len(msgs) > historyPreview {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("… %d earlier messages", len(msgs)-historyPreview)))
		msgs = msgs[len(msgs)-historyPreview:]
	}
	for _, m := range msgs {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.RoleStyle(string(m.Role)), cliui.DimStyle.Render(m.Content))
	}
}

// saveResume remembers the current chat once it has a backend id.
func (c *chatCommander) saveResume() {
	if c.key == "" || transcript.IsLocalKey(c.key) {
		return
	}

	current, _ := c.env.Manager.Store().Get(c.key)
	err := dotdir.NewManager().SaveResumeState(&dotdir.ResumeState{
		ChatID:  c.key,
		Title:   current.Title,
		Model:   c.env.Client.Model(),
		SavedAt: time.Now(),
	}, c.env.Dir)
	if err != nil {
		c.env.Logger.Warn("could not save resume state", "error", err)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
