package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// testCommand returns a bare command with a context set, as Execute
// would do; RunE handlers call cmd.Context() and a nil context panics
// inside database/sql.
func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func setupHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)
	t.Setenv("DAILYLOG_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DAILYLOG_ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("DAILYLOG_GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DAILYLOG_VAULT_DIR", "")
	return tmpDir
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

func TestRunOnboard(t *testing.T) {
	tmpDir := setupHome(t)

	output, err := captureStdout(t, func() error {
		return runOnboard(testCommand(), []string{})
	})
	if err != nil {
		t.Errorf("runOnboard error: %v", err)
	}

	cfgPath := filepath.Join(tmpDir, ".dailylog", "config.json")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if !strings.Contains(output, "Created config") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestRunOnboard_AlreadyExists(t *testing.T) {
	tmpDir := setupHome(t)

	cfgDir := filepath.Join(tmpDir, ".dailylog")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{}"), 0644)

	output, err := captureStdout(t, func() error {
		return runOnboard(testCommand(), []string{})
	})
	if err != nil {
		t.Errorf("runOnboard error: %v", err)
	}
	if !strings.Contains(output, "Config already exists") {
		t.Errorf("expected 'Config already exists', got: %s", output)
	}
}

func TestRunStatus(t *testing.T) {
	setupHome(t)

	output, err := captureStdout(t, func() error {
		return runStatus(testCommand(), []string{})
	})
	if err != nil {
		t.Errorf("runStatus error: %v", err)
	}

	if !strings.Contains(output, "Config:") {
		t.Errorf("missing Config in output: %s", output)
	}
	if !strings.Contains(output, "OpenAI: not set") {
		t.Errorf("missing OpenAI key info in output: %s", output)
	}
	if !strings.Contains(output, "Schedule: 09:00") {
		t.Errorf("missing schedule in output: %s", output)
	}
	if !strings.Contains(output, "Run state: no runs recorded") {
		t.Errorf("missing run state in output: %s", output)
	}
}

func TestRunStatus_WithAPIKey(t *testing.T) {
	setupHome(t)
	t.Setenv("DAILYLOG_ANTHROPIC_API_KEY", "sk-ant-test-key-12345678")

	output, err := captureStdout(t, func() error {
		return runStatus(testCommand(), []string{})
	})
	if err != nil {
		t.Errorf("runStatus error: %v", err)
	}
	if !strings.Contains(output, "Anthropic: sk-a...5678") {
		t.Errorf("API key should be masked in output: %s", output)
	}
}

func TestRunHistory_Empty(t *testing.T) {
	setupHome(t)

	output, err := captureStdout(t, func() error {
		return runHistory(testCommand(), []string{})
	})
	if err != nil {
		t.Errorf("runHistory error: %v", err)
	}
	if !strings.Contains(output, "No archived runs.") {
		t.Errorf("expected empty-archive message, got: %s", output)
	}
}

func TestRunHistory_UnknownDate(t *testing.T) {
	setupHome(t)

	_, err := captureStdout(t, func() error {
		return runHistory(testCommand(), []string{"2024-01-01"})
	})
	if err == nil || !strings.Contains(err.Error(), "no archived run") {
		t.Errorf("expected no-run error, got: %v", err)
	}
}

func TestRunPreview_InvalidConfig(t *testing.T) {
	setupHome(t)

	_, err := captureStdout(t, func() error {
		return runPreview(testCommand(), []string{})
	})
	if err == nil {
		t.Error("expected validation error without provider keys")
	}
	if !strings.Contains(err.Error(), "API key") {
		t.Errorf("error should mention API key: %v", err)
	}
}

func TestKeyDisplay(t *testing.T) {
	if got := keyDisplay(""); got != "not set" {
		t.Errorf("keyDisplay(\"\") = %q", got)
	}
	if got := keyDisplay("short"); got != "set" {
		t.Errorf("keyDisplay(short) = %q", got)
	}
	if got := keyDisplay("sk-ant-test-key-12345678"); got != "sk-a...5678" {
		t.Errorf("keyDisplay(long) = %q", got)
	}
}

func TestInit(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd should not be nil")
	}
	for _, cmd := range []*cobra.Command{previewCmd, generateCmd, daemonCmd, onboardCmd, statusCmd, historyCmd} {
		if cmd == nil {
			t.Fatal("command should not be nil")
		}
		if !rootCmd.HasSubCommands() {
			t.Fatal("rootCmd has no subcommands")
		}
	}
	if historyCmd.Flags().Lookup("limit") == nil {
		t.Error("limit flag should exist")
	}
}
