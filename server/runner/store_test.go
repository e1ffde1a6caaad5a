package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/cloudops/build"
	"github.com/nomis52/cloudops/logging"
)

func testRun(start time.Time) RunStatus {
	end := start.Add(time.Minute)
	status := build.StatusSucceeded
	return RunStatus{
		RunSummary: RunSummary{
			State:     RunStateIdle,
			Trigger:   TriggerCron,
			Status:    &status,
			StartedAt: &start,
			EndedAt:   &end,
		},
		ActivityExecutions: []ActivityExecution{{
			ID:     build.ActivityID{Kind: "rest", Name: "deploy"},
			State:  "completed",
			Status: "✅ operation op-1 succeeded after 2 polls in 15s",
			Logs:   []logging.LogEntry{{Time: start, Level: "INFO", Message: "remote operation started"}},
		}},
	}
}

func stores(t *testing.T, maxCount int) map[string]StateStore {
	t.Helper()
	disk, err := NewDiskStore(t.TempDir(), maxCount, quietLogger())
	require.NoError(t, err)
	return map[string]StateStore{
		"memory": NewMemoryStore(maxCount),
		"disk":   disk,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, store.History())

			run := testRun(time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC))
			require.NoError(t, store.Save(run))

			history := store.History()
			require.Len(t, history, 1)
			assert.Equal(t, "20240601T020000.000Z", history[0].ID)
			assert.Equal(t, TriggerCron, history[0].Trigger)

			got, ok := store.Get(history[0].ID)
			require.True(t, ok)
			require.Len(t, got.ActivityExecutions, 1)
			assert.Equal(t, run.ActivityExecutions[0].ID, got.ActivityExecutions[0].ID)
			assert.Equal(t, "remote operation started", got.ActivityExecutions[0].Logs[0].Message)

			_, ok = store.Get("missing")
			assert.False(t, ok)
		})
	}
}

func TestStore_SaveWithoutStartTime(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			err := store.Save(RunStatus{})
			assert.ErrorContains(t, err, "cannot save run without start time")
		})
	}
}

func TestStore_MostRecentFirstAndLimit(t *testing.T) {
	for name, store := range stores(t, 3) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				require.NoError(t, store.Save(testRun(base.Add(time.Duration(i)*time.Hour))))
			}

			history := store.History()
			require.Len(t, history, 3)
			for i := 0; i < len(history)-1; i++ {
				assert.True(t, history[i].StartedAt.After(*history[i+1].StartedAt))
			}
			assert.Equal(t, "20240601T040000.000Z", history[0].ID)
		})
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			run := testRun(time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC))
			require.NoError(t, store.Save(run))

			first, _ := store.Get("20240601T020000.000Z")
			first.ActivityExecutions[0].Status = "modified"

			second, _ := store.Get("20240601T020000.000Z")
			assert.NotEqual(t, "modified", second.ActivityExecutions[0].Status)
		})
	}
}

func TestDiskStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	first, err := NewDiskStore(dir, 10, quietLogger())
	require.NoError(t, err)

	run := testRun(time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC))
	require.NoError(t, first.Save(run))

	second, err := NewDiskStore(dir, 10, quietLogger())
	require.NoError(t, err)

	got, ok := second.Get("20240601T020000.000Z")
	require.True(t, ok)
	require.NotNil(t, got.Status)
	assert.Equal(t, build.StatusSucceeded, *got.Status)
	assert.True(t, run.StartedAt.Equal(*got.StartedAt))
	assert.Equal(t, "rest/deploy", got.ActivityExecutions[0].ID.String())
}

func TestDiskStore_RemovesEvictedFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 2, quietLogger())
	require.NoError(t, err)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Save(testRun(base.Add(time.Duration(i)*time.Hour))))
	}

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestDiskStore_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("test"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "subdir"), 0o755))

	store, err := NewDiskStore(dir, 10, quietLogger())
	require.NoError(t, err)
	assert.Empty(t, store.History())
}

func TestNewDiskStore_InvalidLimit(t *testing.T) {
	_, err := NewDiskStore(t.TempDir(), 0, quietLogger())
	assert.Error(t, err)
}
