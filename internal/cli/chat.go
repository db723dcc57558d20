package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/diveroast/internal/client"
	"github.com/raphaelgruber/diveroast/internal/models"
)

var chatCmd = &cobra.Command{
	Use:   "chat <session-id> [message]",
	Short: "Talk to the safety expert about your dives",
	Long: `Chat with the DAN safety expert about an uploaded log. With a message the
command runs one turn and exits. Without one it starts an interactive
session on a terminal, or reads the whole of stdin as a single message.

Examples:
  diveroast chat 3f9c... "roast my deepest dive"
  diveroast chat 3f9c...
  echo "what went wrong on dive 12?" | diveroast chat 3f9c...`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sessionID := args[0]
	out := cmd.OutOrStdout()
	r := renderer{color: useColor(out)}

	conn, err := apiClient.OpenChat(ctx, sessionID)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("session %s not found (upload the log again)", sessionID)
		}
		return fmt.Errorf("open chat: %w", err)
	}
	defer conn.Close()

	if len(args) == 2 {
		return sendTurn(ctx, conn, args[1], out, r)
	}

	in := cmd.InOrStdin()
	if !isTerminal(in) {
		raw, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		return sendTurn(ctx, conn, string(raw), out, r)
	}
	return chatLoop(ctx, conn, in, out, r)
}

// chatLoop reads one message per line until EOF or "exit".
func chatLoop(ctx context.Context, conn *client.ChatConn, in io.Reader, out io.Writer, r renderer) error {
	fmt.Fprintln(out, r.hint("Type a message, or 'exit' to quit."))
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, r.title("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		err := sendTurn(ctx, conn, line, out, r)
		var turnErr *client.TurnError
		switch {
		case errors.As(err, &turnErr):
			// The session survives a failed turn.
			fmt.Fprintln(out, r.zone(models.ZoneDanger, "error: "+turnErr.Error()))
		case err != nil:
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// sendTurn streams one reply to out, with tool activity dimmed on its own lines.
func sendTurn(ctx context.Context, conn *client.ChatConn, message string, out io.Writer, r renderer) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return errors.New("empty message")
	}

	midLine := false
	err := conn.Send(ctx, message, func(ev client.Event) error {
		switch ev.Type {
		case "delta":
			fmt.Fprint(out, ev.Content)
			midLine = !strings.HasSuffix(ev.Content, "\n")
		case "tool":
			if midLine {
				fmt.Fprintln(out)
				midLine = false
			}
			fmt.Fprintln(out, r.hint(fmt.Sprintf("  [%s: %s]", ev.Name, ev.Status)))
		}
		return nil
	})
	if midLine {
		fmt.Fprintln(out)
	}
	return err
}
