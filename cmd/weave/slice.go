package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskweave/internal/analyze"
	"github.com/ShayCichocki/taskweave/internal/slicer"
	"github.com/ShayCichocki/taskweave/internal/workflow"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

var (
	sliceFile        string
	sliceOutput      string
	sliceGranularity string
	sliceStrategy    string
	sliceMax         int
	slicePrompts     bool
)

var sliceCmd = &cobra.Command{
	Use:   "slice [prompt...]",
	Short: "Decompose a prompt into subtasks and batch groups",
	Long: `Slice a prompt into atomic subtasks, resolve their dependencies and
group the subtasks that can run concurrently. Nothing is dispatched.

Use --prompts to also print the isolated prompt built for every subtask.`,
	RunE: runSlice,
}

func init() {
	sliceCmd.Flags().StringVarP(&sliceFile, "file", "f", "", "Read the prompt from a file")
	sliceCmd.Flags().StringVarP(&sliceOutput, "output", "o", formatText, "Output format: text, json or yaml")
	sliceCmd.Flags().StringVar(&sliceGranularity, "granularity", "", "Override slicing granularity: coarse, medium or fine")
	sliceCmd.Flags().StringVar(&sliceStrategy, "strategy", "", "Override large-prompt strategy: semantic, structural or balanced")
	sliceCmd.Flags().IntVar(&sliceMax, "max-subtasks", 0, "Override the maximum number of subtasks")
	sliceCmd.Flags().BoolVar(&slicePrompts, "prompts", false, "Print the isolated prompt of every subtask")
}

// slicePlan is the structured output of the slice command.
type slicePlan struct {
	WorkflowID string                   `json:"workflowId"`
	Analysis   *analyze.PromptAnalysis  `json:"analysis"`
	Subtasks   []*models.Subtask        `json:"subtasks"`
	Groups     []*models.BatchGroup     `json:"groups"`
	Large      *slicer.LargeSliceResult `json:"large,omitempty"`
}

func runSlice(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args, sliceFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if sliceGranularity != "" {
		cfg.Slicing.Granularity = sliceGranularity
	}
	if sliceStrategy != "" {
		cfg.Slicing.SlicingStrategy = sliceStrategy
	}
	if sliceMax > 0 {
		cfg.Slicing.MaxSubtasks = sliceMax
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine := workflow.NewEngine(cfg, nil)
	defer engine.Close()

	wfID := uuid.NewString()
	dec, groups, err := engine.Plan(prompt, wfID)
	if err != nil {
		return err
	}
	plan := slicePlan{WorkflowID: wfID, Analysis: dec.Analysis, Subtasks: dec.Subtasks, Groups: groups, Large: dec.Large}

	out := cmd.OutOrStdout()
	if sliceOutput != formatText {
		return writeStructured(out, sliceOutput, plan)
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d subtasks in %d groups", len(dec.Subtasks), len(groups))))
	short := shortIDs(dec.Subtasks)
	var rows [][]string
	for _, g := range groups {
		for _, m := range g.Members {
			st := m.Subtask
			rows = append(rows, []string{
				strconv.Itoa(g.Index),
				short[st.ID],
				string(st.Type),
				string(st.Priority),
				dependencyList(st, short),
				truncateText(st.Title, 60),
			})
		}
	}
	fmt.Fprint(out, renderTable([]string{"GROUP", "ID", "TYPE", "PRIORITY", "DEPENDS ON", "TITLE"}, rows))

	if dec.Large != nil {
		s := dec.Large.Statistics
		fmt.Fprintf(out, "\nLarge prompt: %s strategy, %d chunks, %.0f%% of tokens retained\n",
			s.Strategy, s.ChunkCount, s.CompressionRatio*100)
		for _, seg := range dec.Large.OversizedSegments {
			fmt.Fprintf(out, "%s %d tokens (limit %d): %s\n",
				color.YellowString("oversized"), seg.Tokens, seg.Limit, truncateText(seg.Text, 60))
		}
	}

	if slicePrompts {
		for _, g := range groups {
			for _, m := range g.Members {
				fmt.Fprintf(out, "\n%s\n%s\n", headerStyle.Render("── "+short[m.Subtask.ID]+" ──"), m.InjectedContext)
			}
		}
	}
	return nil
}

// shortIDs maps subtask ids to their first eight characters.
func shortIDs(subtasks []*models.Subtask) map[string]string {
	out := make(map[string]string, len(subtasks))
	for _, st := range subtasks {
		id := st.ID
		if len(id) > 8 {
			id = id[:8]
		}
		out[st.ID] = id
	}
	return out
}

func dependencyList(st *models.Subtask, short map[string]string) string {
	if len(st.Dependencies) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(st.Dependencies))
	for _, d := range st.Dependencies {
		id := short[d.SubtaskID]
		if id == "" {
			id = d.SubtaskID
		}
		if d.Kind != models.DependencyBlocking {
			id += " (" + strings.ToLower(string(d.Kind)) + ")"
		}
		parts = append(parts, id)
	}
	return strings.Join(parts, ", ")
}
