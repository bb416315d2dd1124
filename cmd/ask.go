package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/panelbase/panelbase/internal/app"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Find the comics that best answer a question",
	Long: `Searches the knowledge base for the comics most relevant to a
natural-language question and explains why each one matches.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("question is empty")
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			return runAsk(ctx, a, question)
		})(cmd, nil)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, a *app.App, question string) error {
	selections, err := a.Pipeline.Answer(ctx, question)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}
	if len(selections) == 0 {
		fmt.Println("no matching comics found")
		return nil
	}

	for i, sel := range selections {
		fmt.Printf("%d. #%d %s\n   %s\n", i+1, sel.ComicID, sel.Title, sel.Rationale)
	}
	return nil
}
