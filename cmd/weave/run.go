package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/agent"
	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/store"
	"github.com/ShayCichocki/taskweave/internal/workflow"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

var (
	runFile    string
	runOutput  string
	runAgent   string
	runDryRun  bool
	runNoStore bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Slice a prompt and dispatch the subtasks to agents",
	Long: `Run a prompt as a workflow: slice it, batch the subtasks, dispatch
each batch group concurrently and track checklist progress from the
agents' replies.

Results are stored in the project result database (store.path, default
.weave/results.db) unless --no-store is given.

Agents:
  --agent NAME  Default agent: anthropic, openai, gemini or local
  --dry-run     Use the offline local agent; no API keys needed

Halting:
  Ctrl-C halts the workflow (queued subtasks never start); a second
  Ctrl-C cancels in-flight calls. 'weave halt' from another terminal
  halts the workflow running in the same directory.`,
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Read the prompt from a file")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", formatText, "Output format: text, json or yaml")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Default agent for subtasks")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Dispatch to the offline local agent")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Keep results in memory only")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args, runFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	logger := newLogger(cfg, cwd)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := agent.NewRegistryFromConfig(ctx, cfg, runDryRun, agent.WithLogger(logger))
	if err != nil {
		return err
	}
	if runAgent != "" {
		if err := registry.SetDefault(runAgent); err != nil {
			return err
		}
	}

	opts := []workflow.Option{workflow.WithLogger(logger), workflow.WithProjectRoot(cwd)}
	var dbPath string
	if !runNoStore {
		dbPath = resolveStorePath(cfg, cwd)
		db, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open result database: %w", err)
		}
		defer db.Close()
		opts = append(opts, workflow.WithStore(store.New(store.WithPersister(db), store.WithLogger(logger))))
	}
	engine := workflow.NewEngine(cfg, registry, opts...)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		if _, ok := <-sigCh; !ok {
			return
		}
		fmt.Fprintln(os.Stderr, "\nInterrupt received, halting (press Ctrl-C again to cancel running calls)...")
		engine.Halt("interrupted")
		if _, ok := <-sigCh; ok {
			cancel()
		}
	}()

	out := cmd.OutOrStdout()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range engine.Events() {
			if runOutput == formatText {
				printEvent(out, ev)
			}
		}
	}()

	logger.Info("run: starting", zap.String("agent", registry.Default()), zap.Bool("dry_run", runDryRun))
	res, err := engine.Run(ctx, prompt)
	engine.Close()
	<-printed
	if err != nil {
		return err
	}
	if dropped := engine.DroppedEvents(); dropped > 0 {
		logger.Warn("run: events dropped", zap.Uint64("count", dropped))
	}

	if runOutput != formatText {
		if err := writeStructured(out, runOutput, res); err != nil {
			return err
		}
	} else {
		printRunSummary(out, res, dbPath)
	}

	if res.Status != models.WorkflowCompleted {
		return fmt.Errorf("workflow %s %s", res.WorkflowID, res.Status)
	}
	return nil
}

func resolveStorePath(cfg *config.Config, projectRoot string) string {
	path := cfg.Store.Path
	if path == "" {
		return store.ProjectDBPath(projectRoot)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectRoot, path)
	}
	return path
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printEvent(w io.Writer, ev workflow.Event) {
	id := shortID(ev.SubtaskID)
	switch ev.Type {
	case workflow.EventWorkflowStarted:
		fmt.Fprintf(w, "%s %s: %s\n", color.CyanString("▶"), shortID(ev.WorkflowID), ev.Message)
	case workflow.EventBatchStarted:
		fmt.Fprintf(w, "%s\n", headerStyle.Render(fmt.Sprintf("group %d", ev.GroupIndex)))
	case workflow.EventSubtaskStarted:
		fmt.Fprintf(w, "  %s %s started on %s (attempt %d)\n", color.CyanString("→"), id, ev.AgentID, ev.Attempt)
	case workflow.EventSubtaskRetrying:
		fmt.Fprintf(w, "  %s %s retrying on %s: %s\n", color.YellowString("↻"), id, ev.AgentID, ev.Message)
	case workflow.EventSubtaskRecovered:
		fmt.Fprintf(w, "  %s %s recovered: %s\n", color.GreenString("↻"), id, ev.Message)
	case workflow.EventSubtaskCompleted:
		fmt.Fprintf(w, "  %s %s completed\n", color.GreenString("✓"), id)
	case workflow.EventSubtaskFailed:
		msg := ""
		if ev.Result != nil {
			msg = ev.Result.Error
		}
		fmt.Fprintf(w, "  %s %s failed: %s\n", color.RedString("✗"), id, msg)
	case workflow.EventSubtaskSkipped:
		fmt.Fprintf(w, "  %s %s skipped: %s\n", color.YellowString("-"), id, ev.Message)
	case workflow.EventSubtaskHalted:
		fmt.Fprintf(w, "  %s %s halted\n", color.YellowString("■"), id)
	case workflow.EventWorkflowHalted:
		fmt.Fprintf(w, "%s halted: %s\n", color.YellowString("■"), ev.Message)
	case workflow.EventTodoProgress:
		if ev.Progress != nil {
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("    %s %s (%.0f%%)", id, ev.Message, ev.Progress.OverallPercentage)))
		}
	}
}

func printRunSummary(w io.Writer, res *workflow.Result, dbPath string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Workflow %s: %s", res.WorkflowID, res.Status)))

	stored := make(map[string]*models.StoredSubtaskResult, len(res.Stored))
	for _, r := range res.Stored {
		stored[r.SubtaskID] = r
	}
	var rows [][]string
	for _, st := range res.Decomposition.Subtasks {
		state := string(res.Run.State.SubtaskStates[st.ID])
		row := []string{shortID(st.ID), statusColor(strings.ToLower(state)), "-", "-", "-", "-", truncateText(st.Title, 40)}
		if r, ok := stored[st.ID]; ok {
			row[2] = r.AgentID
			row[3] = strconv.Itoa(r.Attempts)
			row[4] = strconv.FormatInt(r.TokensUsed, 10)
			row[5] = (time.Duration(r.DurationMs) * time.Millisecond).String()
		}
		if sum, ok := res.Progress[st.ID]; ok && sum.Total > 0 {
			row[6] = fmt.Sprintf("%d/%d todos  %s", sum.Completed, sum.Total, row[6])
		}
		rows = append(rows, row)
	}
	fmt.Fprint(w, renderTable([]string{"ID", "STATE", "AGENT", "ATTEMPTS", "TOKENS", "DURATION", "TITLE"}, rows))

	if reason := res.Run.State.HaltReason; reason != "" {
		fmt.Fprintf(w, "\nHalt reason: %s\n", reason)
	}
	integrity := statusColor("valid")
	if !res.Integrity.Valid {
		integrity = statusColor("corrupted")
	}
	fmt.Fprintf(w, "\nIntegrity: %s (%d checked)\n", integrity, res.Integrity.Checked)
	if dbPath != "" {
		fmt.Fprintf(w, "Results stored in %s (%d persist errors)\n", dbPath, res.PersistErrors)
	}
}
