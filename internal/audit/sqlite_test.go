package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-pathway-engine/internal/domain"
)

var evaluatedAt = time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)

func testEvaluation(personID string, at time.Time) *domain.Evaluation {
	return &domain.Evaluation{
		PersonID:    personID,
		EvaluatedAt: at,
		Stage: domain.StageResult{
			Stage:      domain.STAGE_ANTENATAL_CARE,
			Rule:       "anc_active",
			LifeStatus: domain.LIFE_ACTIVE,
		},
		Context: domain.Context{"anc_active": domain.BoolValue(true)},
		Tasks: []domain.TaskInstance{
			{ID: "anc_visit~anc-1~anc1", Definition: "anc_visit", Status: domain.TASK_READY},
			{ID: "anc_visit~anc-1~anc2", Definition: "anc_visit", Status: domain.TASK_UPCOMING},
			{ID: "pss~pss-1~pss0", Definition: "pss", Status: domain.TASK_RESOLVED, Resolved: true},
		},
	}
}

func testSnapshot(t *testing.T, personID string, at time.Time, digest string) *domain.Snapshot {
	t.Helper()
	snap, err := NewSnapshot(testEvaluation(personID, at), digest)
	require.NoError(t, err)
	return snap
}

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSnapshot(t *testing.T) {
	snap, err := NewSnapshot(testEvaluation("woman-1", evaluatedAt.In(time.FixedZone("EAT", 3*3600))), "digest")
	require.NoError(t, err)

	assert.Equal(t, "woman-1", snap.PersonID)
	assert.Equal(t, evaluatedAt, snap.EvaluatedAt)
	assert.Equal(t, time.UTC, snap.EvaluatedAt.Location())
	assert.Equal(t, domain.STAGE_ANTENATAL_CARE, snap.Stage)
	assert.Equal(t, "Active", snap.LifeStatus)
	assert.Equal(t, 2, snap.OpenTasks)
	assert.JSONEq(t, `{"anc_active": true}`, snap.ContextJSON)
	assert.Equal(t, "digest", snap.InputDigest)

	var tasks []domain.TaskInstance
	require.NoError(t, json.Unmarshal([]byte(snap.TasksJSON), &tasks))
	assert.Len(t, tasks, 3)

	t.Run("no tasks encodes an empty list", func(t *testing.T) {
		evaluation := testEvaluation("woman-1", evaluatedAt)
		evaluation.Tasks = nil
		snap, err := NewSnapshot(evaluation, "digest")
		require.NoError(t, err)
		assert.Equal(t, "[]", snap.TasksJSON)
		assert.Zero(t, snap.OpenTasks)
	})

	t.Run("nil evaluation", func(t *testing.T) {
		_, err := NewSnapshot(nil, "digest")
		assert.Error(t, err)
	})
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "audit.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
	assert.Equal(t, dbPath, store.Path())
}

func TestSQLiteStore_Save(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	snap := testSnapshot(t, "woman-1", evaluatedAt, "digest-1")
	require.NoError(t, store.Save(ctx, snap))
	assert.NotZero(t, snap.ID)
	assert.False(t, snap.CreatedAt.IsZero())

	t.Run("same digest is stored once", func(t *testing.T) {
		again := testSnapshot(t, "woman-1", evaluatedAt, "digest-1")
		require.NoError(t, store.Save(ctx, again))
		assert.Equal(t, snap.ID, again.ID)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("invalid snapshots are rejected", func(t *testing.T) {
		assert.Error(t, store.Save(ctx, nil))
		assert.ErrorIs(t, store.Save(ctx, &domain.Snapshot{InputDigest: "x"}), domain.ErrInvalidPerson)
		assert.Error(t, store.Save(ctx, &domain.Snapshot{PersonID: "woman-1"}))
	})
}

func TestSQLiteStore_GetByDigest(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot(t, "woman-1", evaluatedAt, "digest-1")))

	got, err := store.GetByDigest(ctx, "digest-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "woman-1", got.PersonID)
	assert.Equal(t, domain.STAGE_ANTENATAL_CARE, got.Stage)
	assert.True(t, evaluatedAt.Equal(got.EvaluatedAt))
	assert.Equal(t, 2, got.OpenTasks)
	assert.JSONEq(t, `{"anc_active": true}`, got.ContextJSON)

	missing, err := store.GetByDigest(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_ListByPerson(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		at := evaluatedAt.AddDate(0, 0, i)
		require.NoError(t, store.Save(ctx, testSnapshot(t, "woman-1", at, fmt.Sprintf("w1-%d", i))))
	}
	require.NoError(t, store.Save(ctx, testSnapshot(t, "woman-2", evaluatedAt, "w2-0")))

	history, err := store.ListByPerson(ctx, "woman-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, evaluatedAt.AddDate(0, 0, 2).Equal(history[0].EvaluatedAt), "newest first")
	assert.True(t, evaluatedAt.AddDate(0, 0, 1).Equal(history[1].EvaluatedAt))

	all, err := store.ListByPerson(ctx, "woman-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.ListByPerson(ctx, "woman-3", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_List(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, testSnapshot(t, fmt.Sprintf("woman-%d", i), evaluatedAt, fmt.Sprintf("d-%d", i))))
	}

	page, err := store.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "woman-3", page[0].PersonID)
	assert.Equal(t, "woman-2", page[1].PersonID)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	source := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, testSnapshot(t, "woman-1", evaluatedAt, "d-1")))
	require.NoError(t, source.Save(ctx, testSnapshot(t, "woman-2", evaluatedAt, "d-2")))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))

	var export SnapshotExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 2, export.Count)

	target := createTestStore(t)
	require.NoError(t, target.Save(ctx, testSnapshot(t, "woman-1", evaluatedAt, "d-1")))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	t.Run("invalid entries are skipped", func(t *testing.T) {
		body := `{"version":"1.0","snapshots":[{"person_id":"","input_digest":"x"},{"person_id":"woman-9","input_digest":"d-9","stage":"REGISTRATION"}]}`
		imported, skipped, err := target.ImportJSON(ctx, strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, 1, imported)
		assert.Equal(t, 1, skipped)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, _, err := target.ImportJSON(ctx, strings.NewReader("{"))
		assert.ErrorContains(t, err, "failed to decode JSON")
	})

	t.Run("empty store exports an empty list", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, createTestStore(t).ExportJSON(ctx, &out))
		assert.Contains(t, out.String(), `"snapshots": []`)
	})
}
