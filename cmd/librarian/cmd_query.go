package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nateschmiedehaus/librarian/internal/librarian"
)

var (
	queryDepth          string
	queryIntentType     string
	queryFiles          []string
	queryWorkingFile     string
	queryDisableCache   bool
	queryHydeExpansion  bool
	queryLLMRequirement string
	queryDiversify      bool
	queryDiversityLambda float64
)

var queryCmd = &cobra.Command{
	Use:   "query [intent]",
	Short: "Answer a natural-language question about the codebase",
	Long: `Runs the intent through the Freshness Gate, Query Cache, and
Retrieval Engine, escalating depth automatically if the first pass does
not produce enough confidence, and prints the resulting response
envelope.

Example:
  librarian query "how does auth work" --affected-files auth.go`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryDepth, "depth", "L1", "Retrieval depth: L0, L1, L2, or L3")
	queryCmd.Flags().StringVar(&queryIntentType, "intent-type", "", "Intent type hint: understand, definition, entry_point, document")
	queryCmd.Flags().StringSliceVar(&queryFiles, "affected-files", nil, "Files the query concerns")
	queryCmd.Flags().StringVar(&queryWorkingFile, "working-file", "", "File currently open in the caller's editor")
	queryCmd.Flags().BoolVar(&queryDisableCache, "no-cache", false, "Bypass the query cache")
	queryCmd.Flags().BoolVar(&queryHydeExpansion, "hyde", false, "Enable hypothetical-document-embedding query expansion")
	queryCmd.Flags().StringVar(&queryLLMRequirement, "llm", "optional", "LLM requirement: disabled, optional, or required")
	queryCmd.Flags().BoolVar(&queryDiversify, "diversify", false, "Apply MMR diversification during reranking")
	queryCmd.Flags().Float64Var(&queryDiversityLambda, "diversity-lambda", 0, "MMR lambda override in [0,1] (0 uses the pipeline default)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	intent := strings.Join(args, " ")
	logger.Info("running query", zap.String("intent", intent), zap.String("depth", queryDepth))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	svc, closer, err := bootService(ctx, workspace)
	if err != nil {
		return err
	}
	defer closer()

	env, err := svc.Query(ctx, librarian.QueryRequest{
		Intent:         intent,
		Depth:          queryDepth,
		IntentType:     queryIntentType,
		AffectedFiles:  queryFiles,
		WorkingFile:    queryWorkingFile,
		DisableCache:    queryDisableCache,
		HydeExpansion:   queryHydeExpansion,
		LLMRequirement:  queryLLMRequirement,
		Diversify:       queryDiversify,
		DiversityLambda: queryDiversityLambda,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
	renderEnvelope(os.Stdout, env)
	return nil
}
