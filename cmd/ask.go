package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reviewly/reviewly/internal/chat"
)

var (
	askUserID    int64
	askProductID int64
	askShowData  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Int64Var(&askUserID, "user", 1, "Account id to ask as")
	askCmd.Flags().Int64Var(&askProductID, "product", 0, "Bind the question to this product id")
	askCmd.Flags().BoolVar(&askShowData, "data", false, "Print tool payloads as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sess, err := a.Sessions.GetOrCreate(ctx, askUserID)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}

	req := chat.AskRequest{Prompt: strings.Join(args, " ")}
	if askProductID != 0 {
		req.ProductID = &askProductID
	}

	if err := a.Orchestrator.Ask(ctx, sess, req, renderEvent); err != nil {
		return err
	}
	fmt.Println()
	return nil
}

// renderEvent writes one turn event to the terminal: deltas to stdout as
// they arrive, everything else to stderr so piped output stays clean.
func renderEvent(ev chat.Event) error {
	switch ev.Type {
	case chat.EventDelta:
		fmt.Print(ev.Text)
	case chat.EventStatus:
		fmt.Fprintf(os.Stderr, "… %s\n", ev.Text)
	case chat.EventAdditionalData:
		if askShowData {
			b, err := json.Marshal(ev.Data)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, string(b))
		}
	case chat.EventError:
		fmt.Fprintf(os.Stderr, "error: %s\n", ev.Text)
	}
	return nil
}
