package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n1dhiparate/admit-assist/internal/assistant"
	"github.com/n1dhiparate/admit-assist/internal/onboarding"
)

const testBrochure = "Fees must be paid by March 1st.\n\nHostel allotment begins in April.\n"

// writeWorkspace creates a brochure and a config using a SQLite store in
// a temp dir and returns the config path. generation is the body of the
// generation section.
func writeWorkspace(t *testing.T, generation string) string {
	t.Helper()
	dir := t.TempDir()

	brochurePath := filepath.Join(dir, "brochure.txt")
	require.NoError(t, os.WriteFile(brochurePath, []byte(testBrochure), 0o644))

	cfg := fmt.Sprintf(`log_level: warn
student_id: s-1
brochure:
  path: %s
generation:
%s
store:
  driver: sqlite
  path: %s
`, brochurePath, generation, filepath.Join(dir, "db", "onboarding.db"))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath
}

// noKeyGeneration selects Gemini without an API key, so no generator
// can be built and every answer falls back.
const noKeyGeneration = "  provider: gemini\n"

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, args)
	return stdout.String(), stderr.String(), err
}

func TestVersion_Text(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version:")
	assert.Contains(t, out, "go_version:")
}

func TestVersion_JSON(t *testing.T) {
	out, _, err := execute(t, "version", "-o", "json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := execute(t, "frobnicate")
	assert.Error(t, err)
}

func TestUnknownOutputFormat(t *testing.T) {
	_, _, err := execute(t, "version", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestMissingExplicitConfig(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestAsk_RequiresQuestion(t *testing.T) {
	_, _, err := execute(t, "--config", writeWorkspace(t, noKeyGeneration), "ask")
	assert.Error(t, err)
}

func TestAsk_NoGeneratorRepliesWithPassage(t *testing.T) {
	cfg := writeWorkspace(t, noKeyGeneration)

	out, stderr, err := execute(t, "--config", cfg, "ask", "when", "is", "the", "fee", "deadline")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Fees must be paid by March 1st.\n"), "stdout = %q", out)
	assert.Contains(t, out, "Source: "+assistant.SourceBrochure)
	assert.Contains(t, stderr, "answer generation unavailable")
}

func TestAsk_NoGeneratorMissRepliesWithNotice(t *testing.T) {
	cfg := writeWorkspace(t, noKeyGeneration)

	out, _, err := execute(t, "--config", cfg, "ask", "xyzzy")
	require.NoError(t, err)
	assert.Equal(t, assistant.NoticeText+"\n", out)
}

func TestAsk_FailingProviderFallsBack(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := writeWorkspace(t, fmt.Sprintf("  provider: ollama\n  model: test\n  base_url: %s\n  timeout_ms: 5000\n", srv.URL))

	out, _, err := execute(t, "--config", cfg, "-o", "json", "ask", "when is the fee deadline")
	require.NoError(t, err)

	var answer assistant.ComposedAnswer
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, "Fees must be paid by March 1st.", answer.Reply)
	assert.Equal(t, assistant.StrategyRetrieved, answer.Strategy)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAsk_GeneratedAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"test","response":"Pay your fees before March 1st.","done":true}`))
	}))
	t.Cleanup(srv.Close)

	cfg := writeWorkspace(t, fmt.Sprintf("  provider: ollama\n  model: test\n  base_url: %s\n", srv.URL))

	out, _, err := execute(t, "--config", cfg, "ask", "when is the fee deadline")
	require.NoError(t, err)
	assert.Contains(t, out, "Pay your fees before March 1st.")
	assert.Contains(t, out, "Source: "+assistant.SourceBrochure)
}

func TestProgressSurvivesAcrossCommands(t *testing.T) {
	cfg := writeWorkspace(t, noKeyGeneration)

	out, _, err := execute(t, "--config", cfg, "ask", "my fee is paid")
	require.NoError(t, err)
	assert.Contains(t, out, "Completed: fee_payment")

	out, _, err = execute(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Onboarding status for s-1:")
	assert.Contains(t, out, "[x] fee_payment")
	assert.Contains(t, out, "[ ] hostel_allocation")

	out, _, err = execute(t, "--config", cfg, "-o", "json", "stats")
	require.NoError(t, err)
	var stats onboarding.AggregateStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.PendingByMilestone[onboarding.FeePayment])
	assert.Equal(t, 1, stats.PendingByMilestone[onboarding.HostelAllocation])

	out, _, err = execute(t, "--config", cfg, "reset", "fee_payment")
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] fee_payment")

	out, _, err = execute(t, "--config", cfg, "-o", "json", "status")
	require.NoError(t, err)
	var status onboarding.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status[onboarding.FeePayment])
}

func TestStudentFlag(t *testing.T) {
	cfg := writeWorkspace(t, noKeyGeneration)

	_, _, err := execute(t, "--config", cfg, "--student", "s-2", "ask", "hostel room allotted")
	require.NoError(t, err)

	out, _, err := execute(t, "--config", cfg, "--student", "s-2", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "[x] hostel_allocation")

	out, _, err = execute(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] hostel_allocation", "other students are unaffected")
}

func TestReset_UnknownMilestone(t *testing.T) {
	cfg := writeWorkspace(t, noKeyGeneration)

	_, _, err := execute(t, "--config", cfg, "reset", "hostel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown milestone")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	out, _, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "config.yaml")
	assert.FileExists(t, filepath.Join(dir, "data", "admission_brochure.txt"))
}
