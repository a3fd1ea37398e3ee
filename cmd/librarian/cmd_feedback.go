package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nateschmiedehaus/librarian/internal/librarian"
)

var (
	feedbackPackIDs    []string
	feedbackRelevant   []bool
	feedbackUsefulness []float64
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback [feedbackToken]",
	Short: "Submit relevance ratings for a prior query's packs",
	Long: `Resolves a feedback token back to the packs it named and applies
each --pack/--relevant/--usefulness rating through the Feedback Loop.

Example:
  librarian feedback 3c1f... --pack p1 --relevant --usefulness 0.8 \
                             --pack p2 --relevant=false`,
	Args: cobra.ExactArgs(1),
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().StringSliceVar(&feedbackPackIDs, "pack", nil, "Pack id being rated (repeatable)")
	feedbackCmd.Flags().BoolSliceVar(&feedbackRelevant, "relevant", nil, "Whether the corresponding --pack was relevant (repeatable)")
	feedbackCmd.Flags().Float64SliceVar(&feedbackUsefulness, "usefulness", nil, "Usefulness 0-1 for the corresponding --pack, default 1.0 (repeatable)")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	token := args[0]
	if len(feedbackPackIDs) != len(feedbackRelevant) {
		return librarian.ErrInvalidInput
	}
	logger.Info("submitting feedback", zap.String("token", token), zap.Int("ratings", len(feedbackPackIDs)))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	svc, closer, err := bootService(ctx, workspace)
	if err != nil {
		return err
	}
	defer closer()

	ratings := make([]librarian.RelevanceRating, len(feedbackPackIDs))
	for i, pack := range feedbackPackIDs {
		usefulness := 1.0
		if i < len(feedbackUsefulness) {
			usefulness = feedbackUsefulness[i]
		}
		ratings[i] = librarian.RelevanceRating{
			PackID:     pack,
			Relevant:   feedbackRelevant[i],
			Usefulness: usefulness,
		}
	}

	result, err := svc.SubmitFeedback(ctx, librarian.FeedbackRequest{
		QueryID:          token,
		RelevanceRatings: ratings,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Printf("adjustments applied: %d\ngaps logged: %d\n", result.AdjustmentsApplied, result.GapsLogged)
	return nil
}
