package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
)

const sampleDataset = `{
  "plans": [{
    "id": "cs-1",
    "name": "Computer Science Year 1",
    "courses": [
      {"id": "algo", "name": "Algorithms", "groupSize": 30,
       "sessions": [{"type": "lecture", "weeklyCount": 1, "duration": 2, "staff": [{"staffId": "lecturer-1"}]}]},
      {"id": "calc", "name": "Calculus", "groupSize": 30,
       "sessions": [{"type": "lecture", "weeklyCount": 2, "duration": 1, "staff": [{"staffId": "lecturer-1"}]}]}
    ]
  }],
  "staff": [{"id": "lecturer-1", "name": "Dr. One"}],
  "facilities": [{"id": "h1", "name": "Main Hall", "type": "hall", "capacity": 40}]
}`

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "timetable.db"))
	return executeWithEnv(t, args...)
}

func executeWithEnv(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return stdout.String(), err
}

func TestGenerateWritesJSON(t *testing.T) {
	out, err := execute(t, "generate", "--input", writeDataset(t, sampleDataset), "--seed", "3")
	require.NoError(t, err)

	var decoded struct {
		RunID    string          `json:"runId"`
		Schedule models.Schedule `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, models.ScheduleFeasible, decoded.Schedule.Status)
	assert.Len(t, decoded.Schedule.Assignments, 3)
}

func TestGenerateWritesCSVFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "timetable.csv")
	_, err := execute(t, "generate", "-i", writeDataset(t, sampleDataset), "--format", "csv", "--out", target)
	require.NoError(t, err)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Day,Time,Plan,Course,Session,Group,Staff,Facility", lines[0])
	assert.Contains(t, string(raw), "Main Hall")
}

func TestGenerateRejectsBadInput(t *testing.T) {
	_, err := execute(t, "generate")
	assert.ErrorContains(t, err, "--input is required")

	_, err = execute(t, "generate", "--input", writeDataset(t, sampleDataset), "--format", "docx")
	assert.Error(t, err)

	_, err = execute(t, "generate", "--input", writeDataset(t, sampleDataset), "--source", "s3")
	assert.ErrorContains(t, err, "unknown source")
}

func TestValidateReportsErrors(t *testing.T) {
	broken := strings.Replace(sampleDataset, `"capacity": 40`, `"capacity": 0`, 1)
	out, err := execute(t, "validate", "--input", writeDataset(t, broken))
	require.Error(t, err)
	assert.Contains(t, out, `"valid": false`)
	assert.Contains(t, out, "capacity")

	out, err = execute(t, "validate", "--input", writeDataset(t, sampleDataset))
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)
}

func TestImportThenGenerateFromDatabase(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "store.db"))

	_, err := executeWithEnv(t, "import", "--input", writeDataset(t, sampleDataset), "--migrate")
	require.NoError(t, err)

	out, err := executeWithEnv(t, "generate", "--source", "db", "--plans", "cs-1", "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "Computer Science Year 1")

	_, err = executeWithEnv(t, "generate", "--source", "db", "--plans", "missing")
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	_, err := execute(t, "migrate")
	assert.NoError(t, err)
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--subject", "planner", "--role", "scheduler")
	require.NoError(t, err)

	tokens := service.NewTokenService(service.TokenConfig{Secret: "dev_secret", Issuer: "timetable-engine"})
	claims, err := tokens.Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, models.RoleScheduler, claims.Role)

	_, err = execute(t, "token", "--subject", "planner", "--role", "root")
	assert.Error(t, err)
}
