package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_PrintsTable(t *testing.T) {
	path := writeRules(t, "rules.yaml", `
destinations: [bank1, bank2, bank3]
distribution:
  bank1: {sequence: 1, amount: "1000.00", amount_is_percentage: false}
  bank2: {sequence: 2, amount: 100, amount_is_percentage: true}
`)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-config", path, "-net", "5000.00"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "1000.00")
	assert.Contains(t, out, "4000.00")
	assert.Contains(t, out, "implicit")
	assert.Contains(t, out, "5000.00")
}

func TestRun_DestinationsOverride(t *testing.T) {
	path := writeRules(t, "rules.json", `{"distribution": {"bank1": {"sequence": 1, "amount": 100, "amount_is_percentage": true}}}`)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-config", path, "-destinations", "bank2,bank1", "-net", "10"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "bank2")
}

func TestRun_ErrorKindOnFailure(t *testing.T) {
	path := writeRules(t, "rules.yaml", `
distribution:
  bank1: {sequence: 1, amount: "6000.00", amount_is_percentage: false}
`)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-config", path, "-net", "5000.00"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "over_allocation")
	assert.Empty(t, stdout.String())
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage")
}
