package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskweave/internal/workflow"
)

var haltCmd = &cobra.Command{
	Use:   "halt [reason...]",
	Short: "Halt the workflow running in this directory",
	Long: `Write a halt signal to .weave/signals/halt. A 'weave run' in the same
directory picks it up, stops dispatching new subtasks and lets running
calls drain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		if err := workflow.SendHalt(cwd, strings.Join(args, " ")); err != nil {
			return fmt.Errorf("send halt signal: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s halt signal sent\n", color.YellowString("■"))
		return nil
	},
}
