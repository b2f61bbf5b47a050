package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-pathway-engine/internal/domain"
)

const womanJSON = `{
  "person": {
    "id": "woman-1",
    "type": "c82_person",
    "date_of_birth": "1998-05-10",
    "sex": "female",
    "marital_status": "married"
  },
  "reports": []
}`

const batchYAML = `requests:
  - person:
      id: woman-1
      type: c82_person
      date_of_birth: "1998-05-10"
      sex: female
      marital_status: married
  - person:
      id: man-1
      type: c82_person
      date_of_birth: "1960-01-01"
      sex: male
      marital_status: single
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeServiceConfig writes a config with a SQLite audit store in dir.
func writeServiceConfig(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "config.yaml", `engine:
  timezone: UTC
audit:
  enabled: true
  driver: sqlite
  sqlite_path: `+filepath.Join(dir, "audit.db")+`
`)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReadFixture(t *testing.T) {
	dir := t.TempDir()

	t.Run("single json request", func(t *testing.T) {
		reqs, err := readFixture(writeFile(t, dir, "woman.json", womanJSON))
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, "woman-1", reqs[0].Person.ID)
		assert.Equal(t, domain.CONTACT_PERSON, reqs[0].Person.Type)
	})

	t.Run("yaml batch", func(t *testing.T) {
		reqs, err := readFixture(writeFile(t, dir, "batch.yaml", batchYAML))
		require.NoError(t, err)
		require.Len(t, reqs, 2)
		assert.Equal(t, "man-1", reqs[1].Person.ID)
		assert.Equal(t, "1960-01-01", reqs[1].Person.DateOfBirth)
	})

	t.Run("no person", func(t *testing.T) {
		_, err := readFixture(writeFile(t, dir, "empty.json", `{}`))
		assert.ErrorContains(t, err, "holds no person")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := readFixture(writeFile(t, dir, "bad.yml", "person: ["))
		assert.ErrorContains(t, err, "failed to decode fixture")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readFixture(filepath.Join(dir, "nope.json"))
		assert.Error(t, err)
	})
}

func TestApplyNow(t *testing.T) {
	reqs := []domain.EvaluationRequest{{}, {}}

	require.NoError(t, applyNow(reqs, ""))
	assert.Nil(t, reqs[0].Now)

	require.NoError(t, applyNow(reqs, "2024-03-01"))
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, req := range reqs {
		require.NotNil(t, req.Now)
		assert.True(t, want.Equal(*req.Now))
	}

	assert.Error(t, applyNow(reqs, "tomorrow"))
}

func TestCatalogCommand(t *testing.T) {
	out, err := run(t, "catalog", "--json")
	require.NoError(t, err)

	var summaries []domain.DefinitionSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	assert.NotEmpty(t, summaries)

	table, err := run(t, "catalog")
	require.NoError(t, err)
	assert.Contains(t, table, "anc_visit")
}

func TestEvaluateCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeServiceConfig(t, dir)
	fixture := writeFile(t, dir, "woman.json", womanJSON)

	out, err := run(t, "--config", cfg, "evaluate", "-f", fixture, "--now", "2024-03-01T10:00:00Z", "--json")
	require.NoError(t, err)

	var evaluation domain.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &evaluation))
	assert.Equal(t, domain.STAGE_REGISTRATION, evaluation.Stage.Stage)

	t.Run("table output", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "evaluate", "-f", fixture, "--now", "2024-03-01T10:00:00Z")
		require.NoError(t, err)
		assert.Contains(t, out, "Stage:     REGISTRATION (no_screening)")
	})

	t.Run("batch fixture", func(t *testing.T) {
		batch := writeFile(t, dir, "batch.yaml", batchYAML)
		out, err := run(t, "--config", cfg, "evaluate", "-f", batch, "--now", "2024-03-01", "--json")
		require.NoError(t, err)

		var result domain.BatchEvaluationResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, 2, result.Succeeded)
		require.Len(t, result.Results, 2)
		assert.Equal(t, domain.STAGE_OUT_OF_PATHWAY, result.Results[1].Evaluation.Stage.Stage)
	})

	t.Run("file is required", func(t *testing.T) {
		_, err := run(t, "--config", cfg, "evaluate")
		assert.ErrorContains(t, err, "--file is required")
	})

	t.Run("bad timezone override", func(t *testing.T) {
		_, err := run(t, "--config", cfg, "--timezone", "Mars/Olympus", "evaluate", "-f", fixture)
		assert.ErrorContains(t, err, "timezone")
	})
}

func TestStageCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeServiceConfig(t, dir)
	batch := writeFile(t, dir, "batch.yaml", batchYAML)

	out, err := run(t, "--config", cfg, "stage", "-f", batch, "--now", "2024-03-01", "--json")
	require.NoError(t, err)

	var stages []stageRow
	require.NoError(t, json.Unmarshal([]byte(out), &stages))
	require.Len(t, stages, 2)
	assert.Equal(t, "woman-1", stages[0].PersonID)
	assert.Equal(t, domain.STAGE_REGISTRATION, stages[0].Stage)
	assert.Equal(t, domain.STAGE_OUT_OF_PATHWAY, stages[1].Stage)
}

func TestAuditCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeServiceConfig(t, dir)
	fixture := writeFile(t, dir, "woman.json", womanJSON)

	_, err := run(t, "--config", cfg, "evaluate", "-f", fixture, "--now", "2024-03-01T10:00:00Z", "--json")
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "audit", "history", "woman-1", "--json")
	require.NoError(t, err)
	var snapshots []domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snapshots))
	require.Len(t, snapshots, 1)
	assert.Equal(t, domain.STAGE_REGISTRATION, snapshots[0].Stage)

	export := filepath.Join(dir, "export.json")
	_, err = run(t, "--config", cfg, "audit", "export", "-o", export)
	require.NoError(t, err)

	out, err = run(t, "--config", cfg, "audit", "import", export, "--json")
	require.NoError(t, err)
	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 0, counts["imported"])
	assert.Equal(t, 1, counts["skipped"], "the digest is already stored")

	t.Run("empty history", func(t *testing.T) {
		out, err := run(t, "--config", cfg, "audit", "history", "nobody")
		require.NoError(t, err)
		assert.Contains(t, out, "No snapshots recorded.")
	})
}
