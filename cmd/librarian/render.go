package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/nateschmiedehaus/librarian/internal/assembler"
	"github.com/nateschmiedehaus/librarian/internal/escalation"
)

var (
	colorBold   = color.New(color.Bold)
	colorDim    = color.New(color.Faint)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorRed    = color.New(color.FgRed)
	colorCyan   = color.New(color.FgCyan)
)

// renderEnvelope prints a response envelope in the human-readable format
// used when --json is not set.
func renderEnvelope(w io.Writer, env assembler.Envelope) {
	colorBold.Fprintln(w, env.Query)
	fmt.Fprintln(w, strings.Repeat("=", len(env.Query)))

	statusColor := colorGreen
	switch env.RetrievalStatus {
	case escalation.StatusInsufficient:
		statusColor = colorRed
	case escalation.StatusPartial:
		statusColor = colorYellow
	}
	statusColor.Fprintf(w, "status: %s", env.RetrievalStatus)
	fmt.Fprintf(w, "  confidence: %.2f  synthesis: %s  cache: %v  latency: %dms\n",
		env.TotalConfidence, env.SynthesisMode, env.CacheHit, env.LatencyMs)

	if len(env.Packs) == 0 {
		colorDim.Fprintln(w, "no packs returned")
	}
	for i, pack := range env.Packs {
		colorCyan.Fprintf(w, "[%d] %s", i+1, pack.PackID)
		fmt.Fprintf(w, "  confidence=%.2f\n", pack.Confidence)
		if pack.Summary != "" {
			fmt.Fprintf(w, "    %s\n", pack.Summary)
		}
	}

	if len(env.CoverageGaps) > 0 {
		colorYellow.Fprintln(w, "coverage gaps:")
		for _, gap := range env.CoverageGaps {
			fmt.Fprintf(w, "  - %s\n", gap)
		}
	}

	if len(env.Disclosures) > 0 {
		colorDim.Fprintln(w, "disclosures:")
		for _, d := range env.Disclosures {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}

	if len(env.SuggestedClarifyingQuestions) > 0 {
		colorYellow.Fprintln(w, "try clarifying:")
		for _, q := range env.SuggestedClarifyingQuestions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}

	fmt.Fprintf(w, "\ntrace: %s\n", colorDim.Sprint(env.TraceID))
	fmt.Fprintf(w, "feedback token: %s\n", colorDim.Sprint(env.FeedbackToken))
}
