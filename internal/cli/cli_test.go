package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inconsistentFacts = `{
	"password_minimum_length": [
		{"value": "12", "document_title": "Information Security Policy"},
		{"value": "14", "document_title": "Access Management Policy"}
	],
	"recovery_time_objective": [
		{"value": "4 hours", "document_title": "Disaster Recovery Plan"},
		{"value": "4 hours", "document_title": "Business Continuity Plan"}
	]
}`

// resetFlags restores flag defaults and clears slice flag state between runs
func resetFlags() {
	analyzeCmd.ResetFlags()
	registerAnalyzeFlags()
	batchCmd.ResetFlags()
	registerBatchFlags()
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(bytes.NewBufferString(stdin))
	if !contains(args, "--config") {
		args = append(args, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	}
	rootCmd.SetArgs(append(args, "--log-level", "error"))

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}

func writeFacts(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzeCommand(t *testing.T) {
	facts := writeFacts(t, "policy_facts.json", inconsistentFacts)
	jsonPath := filepath.Join(t.TempDir(), "report.json")

	stdout, _, err := execute(t, "", "analyze", facts, "--fields", "*", "--no-cache", "--json", jsonPath)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Policy Facts")
	assert.Contains(t, stdout, "Consistency: 50.0% (1/2 fields aligned)")
	assert.FileExists(t, jsonPath)
}

func TestAnalyzeCommand_FailOnInconsistent(t *testing.T) {
	facts := writeFacts(t, "facts.json", inconsistentFacts)

	_, _, err := execute(t, "", "analyze", facts, "--fields", "*", "--no-cache", "--fail-on-inconsistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Equal(t, 2, ExitCode(err))
}

func TestAnalyzeCommand_Stdin(t *testing.T) {
	stdout, _, err := execute(t, inconsistentFacts, "analyze", "-", "--fields", "recovery_time_objective", "--no-cache",
		"--document", "Disaster Recovery Plan")
	require.NoError(t, err)

	assert.Contains(t, stdout, "stdin")
	assert.Contains(t, stdout, "Consistency: 100.0% (1/1 fields aligned)")
	assert.Contains(t, stdout, "✓ Recovery Time Objective: 4 hours")
}

func TestAnalyzeCommand_Malformed(t *testing.T) {
	facts := writeFacts(t, "bad.json", `[1, 2, 3]`)

	_, _, err := execute(t, "", "analyze", facts, "--fields", "*", "--no-cache")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestAnalyzeCommand_BadDuplicatePolicy(t *testing.T) {
	facts := writeFacts(t, "facts.json", inconsistentFacts)

	_, _, err := execute(t, "", "analyze", facts, "--no-cache", "--duplicates", "newest")
	assert.Error(t, err)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	first := writeFacts(t, "first.json", inconsistentFacts)
	second := writeFacts(t, "second.json", `{"f": [{"value": "1", "document_title": "A"}]}`)
	list := filepath.Join(dir, "sources.txt")
	require.NoError(t, os.WriteFile(list,
		[]byte(fmt.Sprintf("# sources\n%s\n%s\n%s\n", first, second, filepath.Join(dir, "missing.json"))), 0o644))
	outDir := filepath.Join(dir, "reports")

	_, stderr, err := execute(t, "", "batch", list, "--fields", "*", "--no-cache", "--output-dir", outDir, "--concurrency", "2")
	require.NoError(t, err)

	assert.Contains(t, stderr, "Total:         3 sources")
	assert.Contains(t, stderr, "Failures:      1")
	assert.Contains(t, stderr, "Inconsistent:  1")
	assert.FileExists(t, filepath.Join(outDir, "first.json"))
	assert.FileExists(t, filepath.Join(outDir, "second.md"))
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concord", "config.yaml")

	stdout, _, err := execute(t, "", "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Created default configuration")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "duplicates: last-wins")

	_, _, err = execute(t, "", "config", "init", "--config", path)
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "policy-facts", sanitizeFilename("Policy Facts"))
	assert.Equal(t, "a_b_c", sanitizeFilename("a/b:c"))
	assert.Equal(t, "report", sanitizeFilename(" .. "))

	used := map[string]int{}
	assert.Equal(t, "x", uniqueSlug("x", used))
	assert.Equal(t, "x-2", uniqueSlug("x", used))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(assert.AnError))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrap: %w", ErrInconsistent)))
}
