package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reviewly/reviewly/internal/chat"
)

var chatUserID int64

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().Int64Var(&chatUserID, "user", 1, "Account id to chat as")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	fmt.Println("Reviewly. Ask about products and reviews; /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := runSlashCommand(a.Sessions, line); done {
				return nil
			}
			continue
		}

		sess, err := a.Sessions.GetOrCreate(ctx, chatUserID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if err := a.Orchestrator.Ask(ctx, sess, chat.AskRequest{Prompt: line}, renderEvent); err != nil {
			// The error event already reached the terminal via renderEvent.
			continue
		}
		fmt.Println()
	}
}

// runSlashCommand handles REPL commands. Returns true when the loop should
// exit.
func runSlashCommand(sessions sessionRemover, line string) bool {
	switch line {
	case "/exit", "/quit":
		return true
	case "/clear":
		sessions.Remove(chatUserID)
		fmt.Println("conversation cleared")
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /clear         Forget the current conversation")
		fmt.Println("  /exit, /quit   Leave")
	default:
		fmt.Printf("unknown command %q; try /help\n", line)
	}
	return false
}

type sessionRemover interface {
	Remove(userID int64)
}
