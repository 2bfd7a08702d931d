package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/taskweave/internal/config"
)

func TestReadPrompt(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(file, []byte("from file"), 0o644))

	tests := []struct {
		name    string
		args    []string
		file    string
		want    string
		wantErr bool
	}{
		{name: "joined args", args: []string{"write", "a", "poem"}, want: "write a poem"},
		{name: "file wins over args", args: []string{"ignored"}, file: file, want: "from file"},
		{name: "missing file", file: filepath.Join(dir, "nope.txt"), wantErr: true},
		{name: "nothing given", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPrompt(tt.args, tt.file)
			if tt.wantErr {
				if err == nil {
					t.Errorf("readPrompt() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("readPrompt() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("readPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteStructured_YAMLUsesJSONFieldNames(t *testing.T) {
	v := struct {
		WorkflowID string `json:"workflowId"`
		Results    int    `json:"results"`
	}{WorkflowID: "wf-1", Results: 3}

	var buf bytes.Buffer
	require.NoError(t, writeStructured(&buf, formatYAML, v))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "wf-1", got["workflowId"])
	assert.Equal(t, 3, got["results"])
}

func TestWriteStructured_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := writeStructured(&buf, "xml", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "STATUS"}, [][]string{
		{"a", "completed"},
		{"longer-id", "failed"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[1], "completed")

	// Second column starts at the same offset on every row.
	col := strings.Index(lines[2], "failed")
	assert.Equal(t, col, strings.Index(lines[1], "completed"))
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"multi\n  line   text", 20, "multi line text"},
		{"abcdefghij", 5, "abcd…"},
	}
	for _, tt := range tests {
		if got := truncateText(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateText(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestPrintCheckpoints(t *testing.T) {
	parseSubtask, parseJSON = "s1", false
	t.Cleanup(func() { parseSubtask, parseJSON = "", false })

	text := "working\n[CHECKPOINT:todo-1:COMPLETED]\n[PROGRESS:todo-2:40]\n[PROGRESS:todo-3:abc]\n"
	var buf bytes.Buffer
	require.NoError(t, printCheckpoints(&buf, text, true))

	out := buf.String()
	assert.Contains(t, out, "todo-1 completed")
	assert.Contains(t, out, "todo-2 40%")
	assert.Contains(t, out, "malformed")
}

func TestKeyRows_ChecksAnthropicKeyFormat(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	tests := []struct {
		name    string
		key     string
		bedrock bool
		want    string
	}{
		{name: "valid key", key: "sk-ant-REDACTED", want: "ok"},
		{name: "wrong prefix", key: "sk-proj-0123456789abcdef", want: "invalid API key format: expected 'sk-ant-' prefix"},
		{name: "no key", want: "-"},
		{name: "bedrock ignores key", key: "whatever", bedrock: true, want: "bedrock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ANTHROPIC_API_KEY", tt.key)
			cfg := config.Default()
			cfg.Agents.Anthropic.UseBedrock = tt.bedrock

			rows := keyRows(cfg)
			require.Len(t, rows, 3)
			assert.Equal(t, config.ProviderAnthropic, rows[0][0])
			assert.Equal(t, tt.want, rows[0][3])
			assert.Equal(t, "-", rows[1][3])
		})
	}
}
