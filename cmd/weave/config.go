package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskweave/internal/config"
)

var (
	configOutput  string
	configProject bool
	configForce   bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialise configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		out := cmd.OutOrStdout()

		format := configOutput
		if format == formatText {
			format = formatYAML
		}
		if err := writeStructured(out, format, cfg); err != nil {
			return err
		}
		if configOutput != formatText {
			return nil
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, titleStyle.Render("API keys"))
		fmt.Fprint(out, renderTable([]string{"PROVIDER", "KEY", "SOURCE", "CHECK"}, keyRows(cfg)))

		fmt.Fprintln(out)
		fmt.Fprintln(out, dimStyle.Render("user config:    "+config.GetUserConfigPath()))
		if p := config.GetProjectConfigPath(); p != "" {
			fmt.Fprintln(out, dimStyle.Render("project config: "+p))
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if configProject {
			path = ".weave.yaml"
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		cfg := config.Default()
		// Keys are read from the environment unless set explicitly.
		cfg.Agents.Anthropic.APIKey = "${ANTHROPIC_API_KEY}"
		cfg.Agents.OpenAI.APIKey = "${OPENAI_API_KEY}"
		cfg.Agents.Gemini.APIKey = "${GEMINI_API_KEY}"

		var err error
		if configProject {
			err = config.SaveTo(cfg, path)
		} else {
			err = config.Save(cfg)
		}
		if err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

// keyRows describes each provider's key. Anthropic keys are format-checked
// unless requests go through Bedrock.
func keyRows(cfg *config.Config) [][]string {
	rows := make([][]string, 0, 3)
	for _, p := range []string{config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderGemini} {
		key, _ := config.GetAPIKey(cfg, p)
		check := "-"
		switch {
		case p == config.ProviderAnthropic && cfg.Agents.Anthropic.UseBedrock:
			check = "bedrock"
		case p == config.ProviderAnthropic && key != "":
			check = "ok"
			if err := config.ValidateAPIKey(key); err != nil {
				check = err.Error()
			}
		}
		rows = append(rows, []string{p, config.MaskAPIKey(key), string(config.GetAPIKeySource(cfg, p)), check})
	}
	return rows
}

func init() {
	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", formatText, "Output format: text, json or yaml")
	configInitCmd.Flags().BoolVar(&configProject, "project", false, "Write .weave.yaml in the current directory")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
