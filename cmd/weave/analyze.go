package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskweave/internal/analyze"
)

var (
	analyzeFile   string
	analyzeOutput string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [prompt...]",
	Short: "Analyze a prompt without slicing it",
	Long: `Report the size, complexity and keyword profile of a prompt, and
whether it would take the large-prompt slicing path.

The prompt is read from the arguments, from --file, or from stdin with '-'.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "Read the prompt from a file")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", formatText, "Output format: text, json or yaml")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args, analyzeFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a := analyze.New(cfg.Analysis).Analyze(prompt)
	out := cmd.OutOrStdout()
	if analyzeOutput != formatText {
		return writeStructured(out, analyzeOutput, a)
	}

	fmt.Fprintln(out, titleStyle.Render("Prompt analysis"))
	fmt.Fprintf(out, "Tokens:      %d (max %d)\n", a.EstimatedTokens, cfg.Analysis.MaxTokens)
	fmt.Fprintf(out, "Sentences:   %d (max %d)\n", a.SentenceCount, cfg.Analysis.MaxSentences)
	fmt.Fprintf(out, "Paragraphs:  %d (max %d)\n", a.ParagraphCount, cfg.Analysis.MaxParagraphs)
	fmt.Fprintf(out, "Complexity:  %.2f (max %.2f)\n", a.Complexity, cfg.Analysis.MaxComplexity)
	fmt.Fprintf(out, "Keywords:    %s\n", keywordFlags(a))
	if len(a.Topics) > 0 {
		fmt.Fprintf(out, "Topics:      %s\n", strings.Join(a.Topics, ", "))
	}
	if len(a.ExplicitSteps) > 0 {
		fmt.Fprintf(out, "Steps:       %d explicit\n", len(a.ExplicitSteps))
	}
	fmt.Fprintf(out, "Suggested:   %d subtasks\n", a.SuggestedSliceCount)
	if a.RequiresLargePromptSlicing {
		fmt.Fprintf(out, "%s %s\n", color.YellowString("Large prompt:"), strings.Join(a.LargePromptReasons, "; "))
	}
	return nil
}

func keywordFlags(a *analyze.PromptAnalysis) string {
	var on []string
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"research", a.HasResearch},
		{"analysis", a.HasAnalysis},
		{"creation", a.HasCreation},
		{"validation", a.HasValidation},
	} {
		if f.set {
			on = append(on, f.name)
		}
	}
	if len(on) == 0 {
		return dimStyle.Render("none")
	}
	return strings.Join(on, ", ")
}
