package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskweave/internal/progress"
)

var (
	parseSubtask string
	parseFollow  bool
	parseJSON    bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract progress checkpoints from agent output",
	Long: `Parse an agent transcript and print every progress marker found in it.

Recognised markers:
  [CHECKPOINT:todo-1:COMPLETED]   [PROGRESS:todo-1:40]
  [ISSUE:todo-1:reason]           [HELP:todo-1:question]
  ✓ [todo-1] completed            ❌ [todo-1] failed: reason
  ⚠️ [todo-1] 40%                  🔄 [todo-1] in progress

With --follow the file is watched and new markers are printed as the
transcript grows. Without a file the transcript is read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVar(&parseSubtask, "subtask", "", "Subtask id to attach to parsed checkpoints")
	parseCmd.Flags().BoolVar(&parseFollow, "follow", false, "Watch the file and parse appended output")
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Print one JSON object per checkpoint")
}

func runParse(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		if parseFollow {
			return fmt.Errorf("--follow needs a file")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		return printCheckpoints(out, string(data), true)
	}

	if !parseFollow {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		return printCheckpoints(out, string(data), true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return followTranscript(ctx, out, args[0])
}

func printCheckpoints(w io.Writer, text string, reportMalformed bool) error {
	for _, cp := range progress.ParseAgentResponse(parseSubtask, text, time.Now()) {
		if parseJSON {
			data, err := json.Marshal(cp)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(data))
			continue
		}
		fmt.Fprintln(w, formatCheckpoint(cp))
	}
	if reportMalformed && !parseJSON {
		if n := progress.CountMalformed(text); n > 0 {
			fmt.Fprintf(w, "%s %d malformed markers ignored\n", color.YellowString("!"), n)
		}
	}
	return nil
}

func formatCheckpoint(cp progress.ParsedCheckpoint) string {
	switch cp.Action {
	case progress.ActionCompletion:
		return fmt.Sprintf("%s %s completed", color.GreenString("✓"), cp.TodoID)
	case progress.ActionProgress:
		pct := 0
		if cp.Value != nil {
			pct = *cp.Value
		}
		return fmt.Sprintf("%s %s %d%%", color.CyanString("…"), cp.TodoID, pct)
	case progress.ActionError:
		return fmt.Sprintf("%s %s failed: %s", color.RedString("✗"), cp.TodoID, cp.Message)
	case progress.ActionHelp:
		return fmt.Sprintf("%s %s needs help: %s", color.YellowString("?"), cp.TodoID, cp.Message)
	default:
		return cp.RawMatch
	}
}

// followTranscript prints markers from path, then from every complete line
// appended to it, until ctx is done.
func followTranscript(ctx context.Context, w io.Writer, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	var (
		offset  int64
		pending []byte
	)
	drain := func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.Size() < offset {
			// Truncated: start over.
			offset, pending = 0, nil
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		offset += int64(len(data))
		pending = append(pending, data...)
		cut := bytes.LastIndexByte(pending, '\n')
		if cut < 0 {
			return nil
		}
		text := string(pending[:cut+1])
		pending = append([]byte(nil), pending[cut+1:]...)
		return printCheckpoints(w, text, false)
	}

	if err := drain(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			if len(pending) > 0 {
				return printCheckpoints(w, string(pending), false)
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Write != 0 {
				if err := drain(); err != nil {
					return err
				}
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return fmt.Errorf("%s was removed", path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
}
