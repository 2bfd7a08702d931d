package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskweave/internal/store"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

var (
	resultsOutput string
	resultsShow   string
)

var resultsCmd = &cobra.Command{
	Use:   "results [workflow-id]",
	Short: "List stored workflows or inspect one workflow's results",
	Long: `Without arguments, list every workflow recorded in the result database.

With a workflow id, print its stored subtask results in execution order
and re-verify each record's checksum. Use --show to print the full output
of a single subtask.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().StringVarP(&resultsOutput, "output", "o", formatText, "Output format: text, json or yaml")
	resultsCmd.Flags().StringVar(&resultsShow, "show", "", "Print the full output of this subtask")
}

// workflowReport is the structured form of 'weave results <id>'.
type workflowReport struct {
	State     *models.ExecutionState        `json:"state,omitempty"`
	Results   []*models.StoredSubtaskResult `json:"results"`
	Integrity store.IntegrityReport         `json:"integrity"`
}

func runResults(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	dbPath := resolveStorePath(cfg, cwd)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no result database at %s: run 'weave run' first", dbPath)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listWorkflows(out, db)
	}
	return showWorkflow(out, db, args[0])
}

func listWorkflows(w io.Writer, db *store.SQLitePersister) error {
	workflows, err := db.ListWorkflows()
	if err != nil {
		return err
	}
	if resultsOutput != formatText {
		return writeStructured(w, resultsOutput, workflows)
	}
	if len(workflows) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No workflows recorded."))
		return nil
	}

	rows := make([][]string, 0, len(workflows))
	for _, wf := range workflows {
		rows = append(rows, []string{
			wf.WorkflowID,
			statusColor(string(wf.Status)),
			strconv.Itoa(wf.Results),
			wf.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	fmt.Fprint(w, renderTable([]string{"WORKFLOW", "STATUS", "RESULTS", "UPDATED"}, rows))
	return nil
}

func showWorkflow(w io.Writer, db *store.SQLitePersister, workflowID string) error {
	results, err := db.LoadWorkflow(workflowID)
	if err != nil {
		return err
	}
	state, err := db.LoadWorkflowState(workflowID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if state == nil && len(results) == 0 {
		return fmt.Errorf("workflow %s: %w", workflowID, store.ErrNotFound)
	}

	var expected []string
	if state != nil {
		for id := range state.SubtaskStates {
			expected = append(expected, id)
		}
		sort.Strings(expected)
	}
	report := workflowReport{
		State:     state,
		Results:   results,
		Integrity: store.VerifyRecords(workflowID, results, expected),
	}

	if resultsShow != "" {
		for _, r := range results {
			if r.SubtaskID == resultsShow {
				if resultsOutput != formatText {
					return writeStructured(w, resultsOutput, r)
				}
				fmt.Fprintln(w, r.Output)
				return nil
			}
		}
		return fmt.Errorf("subtask %s in workflow %s: %w", resultsShow, workflowID, store.ErrNotFound)
	}

	if resultsOutput != formatText {
		return writeStructured(w, resultsOutput, report)
	}

	title := "Workflow " + workflowID
	if state != nil {
		title += "  " + statusColor(string(state.Status))
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	if state != nil && state.HaltReason != "" {
		fmt.Fprintln(w, dimStyle.Render("halt reason: "+state.HaltReason))
	}

	corrupted := make(map[string]bool, len(report.Integrity.Corrupted))
	for _, id := range report.Integrity.Corrupted {
		corrupted[id] = true
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "completed"
		if !r.Success {
			status = "failed"
		}
		check := color.GreenString("ok")
		if corrupted[r.SubtaskID] {
			check = color.RedString("corrupted")
		}
		detail := truncateText(r.Output, 48)
		if !r.Success {
			detail = truncateText(r.Error, 48)
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ExecutionOrder, 10),
			shortID(r.SubtaskID),
			strconv.Itoa(r.ExecutionLevel),
			statusColor(status),
			r.AgentID,
			check,
			detail,
		})
	}
	fmt.Fprint(w, renderTable([]string{"#", "SUBTASK", "LEVEL", "STATUS", "AGENT", "CHECKSUM", "OUTPUT"}, rows))

	fmt.Fprintln(w)
	if report.Integrity.Valid {
		fmt.Fprintf(w, "%s %d records verified\n", color.GreenString("✓"), report.Integrity.Checked)
	} else {
		fmt.Fprintf(w, "%s %d of %d records corrupted\n", color.RedString("✗"),
			len(report.Integrity.Corrupted), report.Integrity.Checked)
	}
	if n := len(report.Integrity.Missing); n > 0 {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d subtasks have no stored result", n)))
	}
	return nil
}
