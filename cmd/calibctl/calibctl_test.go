package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/CalibBox/internal/api/authn"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

const testConfig = `
database:
  driver: memory
auth:
  jwt_secret: test-secret
  jwt_issuer: calibbox-test
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSchemaPrintsStatements(t *testing.T) {
	out, err := execute(t, "schema")
	require.NoError(t, err)
	require.Contains(t, out, "CREATE TABLE IF NOT EXISTS equipment")
	require.Contains(t, out, "calibration_results")
}

func TestTokenRoundTrip(t *testing.T) {
	out, err := execute(t, "token", "--account", "42", "--role", "QM", "--ttl", "1h")
	require.NoError(t, err)

	actor, err := authn.New("test-secret", "calibbox-test").Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, models.Actor{AccountID: 42, Role: models.RoleQualityManager}, actor)
}

func TestTokenRejectsBadInput(t *testing.T) {
	_, err := execute(t, "token", "--account", "42", "--role", "JANITOR")
	require.ErrorContains(t, err, "unknown role")

	_, err = execute(t, "token", "--role", "ADMIN")
	require.ErrorContains(t, err, "--account")
}

func TestDueEmptyStore(t *testing.T) {
	out, err := execute(t, "due", "--before", "2025-01-10")
	require.NoError(t, err)
	require.Contains(t, out, "Due on or before 2025-01-10:")
	require.Contains(t, out, "no equipment due")

	_, err = execute(t, "due", "--before", "10/01/2025")
	require.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestMissingConfig(t *testing.T) {
	t.Setenv("configPath", "")
	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--account", "1"})
	require.ErrorContains(t, cmd.Execute(), "config path is required")
}

func TestDueLine(t *testing.T) {
	color.NoColor = true
	today := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	overdue := today.AddDate(0, 0, -3)
	line := dueLine(&models.Equipment{ID: 7, Name: "Caliper", SerialNumber: "SN-7", OwnerID: 3, NextDueDate: &overdue}, today)
	require.Contains(t, line, "2025-01-07")
	require.Contains(t, line, "overdue 3 days")

	upcoming := today.AddDate(0, 0, 5)
	line = dueLine(&models.Equipment{ID: 8, Name: "Gauge", SerialNumber: "SN-8", OwnerID: 3, NextDueDate: &upcoming}, today)
	require.Contains(t, line, "in 5 days")
	require.Contains(t, line, "owner=3")
}
