package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/expense-ledger/internal/api/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "log:\n  level: error\n" +
		"local:\n  path: " + filepath.Join(dir, "expenses.csv") + "\n" +
		"remote:\n  backend: none\n"
	path := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestLedgerCLI_RecordLifecycle(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, cfgPath, "add", "--json",
		"--date", "2024-05-01", "--category", "meals", "--description", "Team lunch", "--amount", "120")
	require.NoError(t, err)

	var added struct {
		Record handlers.RecordJSON `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &added), out)
	id := added.Record.ID
	require.NotEmpty(t, id)
	assert.Equal(t, "Meals", added.Record.Category)

	_, err = run(t, cfgPath, "add", "--date", "2024-06-02", "--category", "Transportation", "--amount", "30")
	require.NoError(t, err)

	out, err = run(t, cfgPath, "list", "--json", "--month", "2024-05")
	require.NoError(t, err)
	var list struct {
		Records []handlers.RecordJSON `json:"records"`
		Count   int                   `json:"count"`
		Total   int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list), out)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, int64(120), list.Total)

	// Edit keeps the fields it is not given.
	_, err = run(t, cfgPath, "edit", id, "--amount", "150")
	require.NoError(t, err)

	out, err = run(t, cfgPath, "get", id, "--json")
	require.NoError(t, err)
	var got handlers.RecordJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, int64(150), got.Amount)
	assert.Equal(t, "Team lunch", got.Description)
	assert.Equal(t, "2024-05-01", got.Date)

	out, err = run(t, cfgPath, "summary", "--json", "--by", "month")
	require.NoError(t, err)
	var summary struct {
		Groups []struct {
			Key   string `json:"key"`
			Total int64  `json:"total"`
		} `json:"groups"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary), out)
	require.Len(t, summary.Groups, 2)
	assert.Equal(t, "2024-06", summary.Groups[0].Key)
	assert.Equal(t, int64(180), summary.Total)

	out, err = run(t, cfgPath, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)

	_, err = run(t, cfgPath, "get", id)
	assert.Error(t, err)
}

func TestLedgerCLI_TableOutput(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No records found")

	_, err = run(t, cfgPath, "add", "--category", "Meals", "--description", "Coffee", "--vendor", "Cafe", "--amount", "4")
	require.NoError(t, err)

	out, err = run(t, cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Coffee")
	assert.Contains(t, out, "1 records")

	out, err = run(t, cfgPath, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "Meals")

	out, err = run(t, cfgPath, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Records:          1")
}

func TestLedgerCLI_Errors(t *testing.T) {
	cfgPath := writeConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"add without amount", []string{"add", "--category", "Meals"}},
		{"unknown category", []string{"add", "--category", "Yachts", "--amount", "1"}},
		{"bad date", []string{"add", "--date", "tomorrow", "--amount", "1"}},
		{"bad mutator", []string{"sync", "--mutator", "both"}},
		{"bad summary field", []string{"summary", "--by", "weekday"}},
		{"edit unknown id", []string{"edit", "nope", "--amount", "1"}},
		{"mirror not configured", []string{"mirror", "--dry-run"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, cfgPath, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestParseSide(t *testing.T) {
	for _, s := range []string{"", "local", "remote"} {
		_, err := parseSide(s)
		assert.NoError(t, err, s)
	}
	_, err := parseSide("LOCAL")
	assert.Error(t, err)
}
