package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--data-dir", dataDir}
	cmd.SetArgs(append(base, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandLayout(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "ledgerctl", cmd.Use)

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "export", "import", "reconcile", "backup", "reset"} {
		assert.True(t, names[want], "missing %s", want)
	}

	for _, flag := range []string{"config", "data-dir", "format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag))
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	_, err := run(t, t.TempDir(), "--format", "xml", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMigrateReportsSchema(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "--format", "json", "migrate")
	require.NoError(t, err)

	var result struct {
		SchemaVersion int      `json:"schema_version"`
		Stores        []string `json:"stores"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.SchemaVersion)
	assert.Len(t, result.Stores, 7)

	_, err = os.Stat(filepath.Join(dir, "ledger.db"))
	assert.NoError(t, err)
}

func TestImportExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(t.TempDir(), "customers.json")
	require.NoError(t, os.WriteFile(input, []byte(`[{"id": 7, "name": "Ravi"}, {"name": "Meena"}]`), 0o600))

	out, err := run(t, dir, "import", "customers", input)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 customers")

	exported := filepath.Join(t.TempDir(), "out.json")
	_, err = run(t, dir, "export", "customers", "-o", exported)
	require.NoError(t, err)

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	var customers []map[string]any
	require.NoError(t, json.Unmarshal(data, &customers))
	assert.Len(t, customers, 2)

	out, err = run(t, dir, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "orders: 0 checked")
}

func TestResetClearsData(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(t.TempDir(), "customers.json")
	require.NoError(t, os.WriteFile(input, []byte(`[{"name": "Ravi"}]`), 0o600))
	_, err := run(t, dir, "import", "customers", input)
	require.NoError(t, err)

	out, err := run(t, dir, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2")

	out, err = run(t, dir, "export", "customers")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestResetNeedsConfirmation(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader("no\n"))
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--data-dir", t.TempDir(), "reset"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "Type 'yes' to confirm")
}

func TestCommandErrorsCarryExitCodes(t *testing.T) {
	_, err := run(t, t.TempDir(), "export", "ghosts")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, t.TempDir(), "import", "customers", filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, t.TempDir(), "backup")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))

	wrapped := WrapExitError(ExitCommandError, "open storage", errors.New("locked"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "open storage: locked", wrapped.Error())
	assert.Equal(t, "locked", errors.Unwrap(wrapped).Error())
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Result(map[string]int{"n": 1}, nil))
	assert.JSONEq(t, `{"n": 1}`, buf.String())

	buf.Reset()
	f.Format = "text"
	require.NoError(t, f.Result(nil, func(w io.Writer) { w.Write([]byte("plain")) }))
	assert.Equal(t, "plain", buf.String())
}
