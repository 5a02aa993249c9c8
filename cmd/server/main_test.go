package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablewise-insights/internal/automation"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestValidateCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs([]string{"validate", "--config", writeConfig(t, "server:\n  port: 9000\n")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "configuration is valid")
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	cmd := newRootCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "-c", writeConfig(t, "server:\n  port: 70000\n")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestRulesCommand(t *testing.T) {
	path := writeConfig(t, `
automation:
  rules:
    - category: inventory
      action: place_order
      auto_execute: true
    - category: churn
      action: send_retention_offer
      requires_approval: true
`)
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs([]string{"rules", "--config", path})
	require.NoError(t, cmd.Execute())

	var rules []automation.Rule
	require.NoError(t, json.Unmarshal(out.Bytes(), &rules))
	require.Len(t, rules, 2)
	// ordered by category
	assert.Equal(t, automation.CategoryChurn, rules[0].Category)
	assert.True(t, rules[0].RequiresApproval)
	assert.Equal(t, automation.ActionPlaceOrder, rules[1].Action)
	assert.True(t, rules[1].AutoExecute)
}
