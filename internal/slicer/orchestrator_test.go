package slicer_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/printforge/slicerd/internal/model"
	"github.com/printforge/slicerd/internal/slicer"
	"github.com/printforge/slicerd/internal/storage"
	"github.com/printforge/slicerd/internal/store"
)

// completingSlicer parses its arguments the way the real CLI would and
// drops a G-code file with a metadata header into the output directory.
const completingSlicer = `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--outputdir" ]; then out="$2"; fi
  shift
done
cat > "$out/benchy.gcode" <<'EOF'
; model printing time: 58m 30s; total estimated time: 1h 0m 0s
; max_z_height: 48.00
EOF
exit 0
`

type testEnv struct {
	cfg   model.Config
	db    *store.Store
	files *storage.Storage
	orch  *slicer.Orchestrator
}

func newTestEnv(t *testing.T, cliPath string) *testEnv {
	t.Helper()
	env := newTestEnvIdle(t, cliPath)
	env.startWorkers(t)
	return env
}

// newTestEnvIdle builds the environment without starting the worker
// pool, so tests can stage records before anything is picked up.
func newTestEnvIdle(t *testing.T, cliPath string) *testEnv {
	t.Helper()

	var cfg model.Config
	cfg.Orca.CLIPath = cliPath
	cfg.Storage.DataDir = t.TempDir()
	cfg.Jobs.Workers = 1
	cfg.Jobs.QueueSize = 8
	require.NoError(t, cfg.EnsureDirs())

	db, err := store.Open(filepath.Join(cfg.Storage.DataDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	files := storage.New(cfg.ModelsDir(), cfg.OutputsDir(), cfg.WorkDir())
	orch := slicer.NewOrchestrator(cfg, db, files)

	return &testEnv{cfg: cfg, db: db, files: files, orch: orch}
}

func (e *testEnv) startWorkers(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	e.orch.Start(ctx)
	t.Cleanup(func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		require.NoError(t, e.orch.Shutdown(shutdownCtx))
		cancel()
	})
}

func (e *testEnv) seedModel(t *testing.T) *model.Model {
	t.Helper()
	id := model.NewModelID()
	path, size, sum, err := e.files.SaveModel(id, strings.NewReader("solid benchy\nendsolid"), "benchy.stl")
	require.NoError(t, err)
	m := &model.Model{
		ID:             id,
		Filename:       "benchy.stl",
		Format:         "stl",
		SizeBytes:      size,
		ChecksumSHA256: sum,
		StoragePath:    path,
		UploadedAt:     time.Now().UTC(),
	}
	require.NoError(t, e.db.CreateModel(t.Context(), m))
	return m
}

func (e *testEnv) seedProfile(t *testing.T) *model.Profile {
	t.Helper()
	p := &model.Profile{
		ID:     model.NewProfileID("draft"),
		Name:   "draft",
		Source: model.SourceUser,
		SettingsOverrides: datatypes.JSONMap{
			"layer_height": 0.28,
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, e.db.CreateProfile(t.Context(), p))
	return p
}

func (e *testEnv) awaitTerminal(t *testing.T, jobID string) *model.SliceJob {
	t.Helper()
	var job *model.SliceJob
	require.Eventually(t, func() bool {
		var err error
		job, err = e.db.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		return job.Status.Terminal()
	}, 15*time.Second, 25*time.Millisecond)
	return job
}

func TestOrchestratorCompletesJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, fakeSlicer(t, completingSlicer))
	m := env.seedModel(t)
	p := env.seedProfile(t)

	job, err := env.orch.CreateJob(t.Context(), slicer.CreateJobRequest{
		ModelID:   m.ID,
		ProfileID: p.ID,
		Overrides: map[string]any{"wall_loops": 3},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusQueued, job.Status)
	require.True(t, job.OutputOptions.Gcode)
	require.True(t, job.OutputOptions.Metadata)
	require.False(t, job.OutputOptions.Project3MF)

	got := env.awaitTerminal(t, job.ID)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Equal(t, m.ID, got.ModelID, "creation fields never change")
	require.Equal(t, p.ID, got.ProfileID)
	require.EqualValues(t, 3, got.Overrides["wall_loops"])
	require.Empty(t, got.ErrorMessage)
	require.Equal(t, 100, got.ProgressPercent)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)

	require.Equal(t, filepath.Base(got.GcodePath), "output.gcode")
	_, err = os.Stat(got.GcodePath)
	require.NoError(t, err)
	require.Empty(t, got.Project3MFPath)

	require.NotNil(t, got.OutputMetadata)
	require.NotNil(t, got.OutputMetadata.EstimatedPrintTimeSeconds)
	require.Equal(t, 3600, *got.OutputMetadata.EstimatedPrintTimeSeconds)
	require.NotNil(t, got.OutputMetadata.ModelPrintTimeSeconds)
	require.Equal(t, 3510, *got.OutputMetadata.ModelPrintTimeSeconds)
	require.NotNil(t, got.OutputMetadata.BoundingBoxMM)
	require.NotNil(t, got.OutputMetadata.BoundingBoxMM.Z)
	require.InDelta(t, 48.0, *got.OutputMetadata.BoundingBoxMM.Z, 1e-9)

	// work dir is removed on success, outputs stay
	_, err = os.Stat(filepath.Join(env.cfg.WorkDir(), job.ID))
	require.True(t, os.IsNotExist(err))
}

func TestOrchestratorSlicerExitFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, fakeSlicer(t, "echo 1>&2 'error: mesh is not manifold'\nexit 2\n"))
	m := env.seedModel(t)
	p := env.seedProfile(t)

	job, err := env.orch.CreateJob(t.Context(), slicer.CreateJobRequest{
		ModelID:   m.ID,
		ProfileID: p.ID,
	})
	require.NoError(t, err)

	got := env.awaitTerminal(t, job.ID)
	require.Equal(t, model.StatusFailed, got.Status)
	require.Equal(t, model.CodeSlicingFailed, got.ErrorCode)
	require.Contains(t, got.ErrorMessage, "exited with code 2")
	require.EqualValues(t, 2, got.ErrorDetails["exit_code"])
	require.Contains(t, got.ErrorDetails["stderr"], "not manifold")
	require.Empty(t, got.GcodePath)
	require.Nil(t, got.OutputMetadata)
}

func TestOrchestratorMissingCLI(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, filepath.Join(t.TempDir(), "orcaslicer-absent"))
	m := env.seedModel(t)
	p := env.seedProfile(t)

	job, err := env.orch.CreateJob(t.Context(), slicer.CreateJobRequest{
		ModelID:   m.ID,
		ProfileID: p.ID,
	})
	require.NoError(t, err)

	got := env.awaitTerminal(t, job.ID)
	require.Equal(t, model.StatusFailed, got.Status)
	require.Equal(t, model.CodeOrcaCLINotFound, got.ErrorCode)
	require.Contains(t, got.ErrorMessage, "orcaslicer-absent")
}

func TestCreateJobValidatesReferences(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, fakeSlicer(t, "exit 0\n"))
	m := env.seedModel(t)
	p := env.seedProfile(t)

	t.Run("unknown model", func(t *testing.T) {
		_, err := env.orch.CreateJob(t.Context(), slicer.CreateJobRequest{
			ModelID:   "mdl_ffffffff",
			ProfileID: p.ID,
		})
		var apiErr *model.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, model.CodeModelNotFound, apiErr.Code)
	})

	t.Run("unknown profile", func(t *testing.T) {
		_, err := env.orch.CreateJob(t.Context(), slicer.CreateJobRequest{
			ModelID:   m.ID,
			ProfileID: "prof_nope_ffff",
		})
		var apiErr *model.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, model.CodeProfileNotFound, apiErr.Code)
	})
}

func TestCreateJobAfterShutdown(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, fakeSlicer(t, "exit 0\n"))
	m := env.seedModel(t)
	p := env.seedProfile(t)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	require.NoError(t, env.orch.Shutdown(shutdownCtx))

	// the closed queue rejects instead of panicking on the send
	_, err := env.orch.CreateJob(t.Context(), slicer.CreateJobRequest{
		ModelID:   m.ID,
		ProfileID: p.ID,
	})
	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, model.CodeInternal, apiErr.Code)
	require.Contains(t, apiErr.Details["error"], "shut down")
}

func TestJobSurvivesProfileDeletion(t *testing.T) {
	t.Parallel()
	env := newTestEnvIdle(t, fakeSlicer(t, completingSlicer))
	m := env.seedModel(t)
	p := env.seedProfile(t)

	job, err := env.orch.CreateJob(t.Context(), slicer.CreateJobRequest{
		ModelID:   m.ID,
		ProfileID: p.ID,
	})
	require.NoError(t, err)
	require.Equal(t, m.StoragePath, job.ModelStoragePath)
	require.Equal(t, p.Name, job.ProfileName)
	require.InDelta(t, 0.28, job.ProfileSettings["layer_height"], 1e-9)

	// the queued record carries everything the run needs
	require.NoError(t, env.db.DeleteProfile(t.Context(), p.ID))
	env.startWorkers(t)

	got := env.awaitTerminal(t, job.ID)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Empty(t, got.ErrorMessage)
	require.NotNil(t, got.OutputMetadata)
}

func TestOrchestratorExports3MF(t *testing.T) {
	t.Parallel()
	// the stand-in copies a minimal archive to the requested export path
	script := `
out=""
export3mf=""
while [ $# -gt 0 ]; do
  case "$1" in
    --outputdir) out="$2" ;;
    --export-3mf) export3mf="$2" ;;
  esac
  shift
done
printf '; total estimated time: 10m 0s\n' > "$out/benchy.gcode"
printf 'PK' > "$export3mf"
exit 0
`
	env := newTestEnv(t, fakeSlicer(t, script))
	m := env.seedModel(t)
	p := env.seedProfile(t)

	job, err := env.orch.CreateJob(t.Context(), slicer.CreateJobRequest{
		ModelID:       m.ID,
		ProfileID:     p.ID,
		OutputOptions: &model.OutputOptions{Gcode: true, Project3MF: true},
	})
	require.NoError(t, err)

	got := env.awaitTerminal(t, job.ID)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Equal(t, "project.3mf", filepath.Base(got.Project3MFPath))
	_, err = os.Stat(got.Project3MFPath)
	require.NoError(t, err)
	// metadata was not requested
	require.Nil(t, got.OutputMetadata)
}
