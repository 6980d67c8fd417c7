package sweep_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printforge/slicerd/internal/model"
	"github.com/printforge/slicerd/internal/storage"
	"github.com/printforge/slicerd/internal/store"
	"github.com/printforge/slicerd/internal/sweep"
)

func newTestDeps(t *testing.T) (*store.Store, *storage.Storage) {
	t.Helper()
	data := t.TempDir()
	db, err := store.Open(filepath.Join(data, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	files := storage.New(
		filepath.Join(data, "models"),
		filepath.Join(data, "outputs"),
		filepath.Join(data, "work"),
	)
	return db, files
}

func seedCompletedJob(t *testing.T, db *store.Store, files *storage.Storage, finished time.Time) *model.SliceJob {
	t.Helper()
	id := model.NewJobID()
	outDir, err := files.JobOutputDir(id)
	require.NoError(t, err)
	gcode := filepath.Join(outDir, "output.gcode")
	require.NoError(t, os.WriteFile(gcode, []byte("; gcode\n"), 0o644))

	job := &model.SliceJob{
		ID:         id,
		ModelID:    "mdl_00000001",
		ProfileID:  "prof_draft_0001",
		Status:     model.StatusCompleted,
		QueuedAt:   finished.Add(-time.Minute),
		FinishedAt: &finished,
		GcodePath:  gcode,
	}
	require.NoError(t, db.CreateJob(t.Context(), job))
	return job
}

func TestSweepRemovesExpiredArtifacts(t *testing.T) {
	t.Parallel()
	db, files := newTestDeps(t)

	old := seedCompletedJob(t, db, files, time.Now().UTC().Add(-48*time.Hour))
	fresh := seedCompletedJob(t, db, files, time.Now().UTC().Add(-time.Minute))

	s := sweep.New(db, files, time.Hour, 24*time.Hour)
	cleaned, err := s.Sweep(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, cleaned)

	// expired job lost its files and paths, the record survives
	got, err := db.GetJob(t.Context(), old.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Empty(t, got.GcodePath)
	_, err = os.Stat(old.GcodePath)
	require.True(t, os.IsNotExist(err))

	// fresh job untouched
	got, err = db.GetJob(t.Context(), fresh.ID)
	require.NoError(t, err)
	require.Equal(t, fresh.GcodePath, got.GcodePath)
	_, err = os.Stat(fresh.GcodePath)
	require.NoError(t, err)
}

func TestSweepIsIdempotent(t *testing.T) {
	t.Parallel()
	db, files := newTestDeps(t)
	seedCompletedJob(t, db, files, time.Now().UTC().Add(-48*time.Hour))

	s := sweep.New(db, files, time.Hour, 24*time.Hour)

	cleaned, err := s.Sweep(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, cleaned)

	// cleared paths drop the job out of the expired set
	cleaned, err = s.Sweep(t.Context())
	require.NoError(t, err)
	require.Zero(t, cleaned)
}

func TestDisabledSweeper(t *testing.T) {
	t.Parallel()
	db, files := newTestDeps(t)

	s := sweep.New(db, files, time.Hour, 0)
	require.NoError(t, s.Start(t.Context()))
	require.NoError(t, s.Shutdown())
}
