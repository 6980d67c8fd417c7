package slicer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/printforge/slicerd/internal/log"
	"github.com/printforge/slicerd/internal/model"
	"github.com/printforge/slicerd/internal/storage"
	"github.com/printforge/slicerd/internal/store"
)

// Canonical artifact names inside a job output directory. The slicer
// names its G-code after the input file, the orchestrator renames it.
const (
	gcodeArtifactName   = "output.gcode"
	projectArtifactName = "project.3mf"
)

var errShuttingDown = errors.New("job queue is shut down")

// Orchestrator owns the slice job state machine. Job creation persists
// a queued record and enqueues the job id exactly once; a fixed pool of
// workers consumes the queue and drives each job to a terminal state.
// A job record is only ever mutated by the worker owning it.
type Orchestrator struct {
	cfg   model.Config
	db    *store.Store
	files *storage.Storage

	// mu serializes enqueues against close: a full queue blocks job
	// creation (backpressure), a closed queue rejects it.
	mu      sync.Mutex
	closed  bool
	queue   chan string
	workers errgroup.Group
	started bool
}

func NewOrchestrator(cfg model.Config, db *store.Store, files *storage.Storage) *Orchestrator {
	size := cfg.Jobs.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Orchestrator{
		cfg:   cfg,
		db:    db,
		files: files,
		queue: make(chan string, size),
	}
}

// Start launches the worker pool. ctx bounds the lifetime of all job
// executions.
func (o *Orchestrator) Start(ctx context.Context) {
	n := o.cfg.Jobs.Workers
	if n <= 0 {
		n = 1
	}
	for range n {
		o.workers.Go(func() error {
			for jobID := range o.queue {
				o.process(ctx, jobID)
			}
			return nil
		})
	}
	o.started = true
}

// Shutdown stops accepting jobs and drains the queue: workers finish
// everything already enqueued. ctx bounds the wait. Idempotent.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if !o.started {
		return nil
	}
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = o.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateJobRequest carries the caller supplied parts of a new job.
type CreateJobRequest struct {
	ModelID       string
	ProfileID     string
	Overrides     map[string]any
	OutputOptions *model.OutputOptions
	Metadata      map[string]any
}

// CreateJob validates the model and profile references, persists a
// queued job record and hands it to the worker pool. Reference
// validation failures are rejected before any record exists. The
// record snapshots the model path and profile settings, so the job
// runs even if either referent is deleted before pickup.
func (o *Orchestrator) CreateJob(ctx context.Context, req CreateJobRequest) (*model.SliceJob, error) {
	mdl, err := o.db.GetModel(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}
	profile, err := o.db.GetProfile(ctx, req.ProfileID)
	if err != nil {
		return nil, err
	}

	opts := model.DefaultOutputOptions()
	if req.OutputOptions != nil {
		opts = *req.OutputOptions
	}

	job := &model.SliceJob{
		ID:            model.NewJobID(),
		ModelID:       req.ModelID,
		ProfileID:     req.ProfileID,
		Status:        model.StatusQueued,
		Overrides:     datatypes.JSONMap(req.Overrides),
		OutputOptions: opts,
		JobMetadata:   datatypes.JSONMap(req.Metadata),
		QueuedAt:      time.Now().UTC(),

		ModelStoragePath: mdl.StoragePath,
		ProfileName:      profile.Name,
		ProfileSettings:  profile.SettingsOverrides,
	}
	if err := o.db.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	if err := o.enqueue(ctx, job); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "slice job queued",
		"job_id", job.ID, "model_id", job.ModelID, "profile_id", job.ProfileID)
	return job, nil
}

// enqueue hands the persisted job to the workers. A full queue blocks
// until a worker frees a slot; a shut down queue fails the record so it
// cannot dangle as queued forever.
func (o *Orchestrator) enqueue(ctx context.Context, job *model.SliceJob) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		finished := time.Now().UTC()
		job.Status = model.StatusFailed
		job.FinishedAt = &finished
		job.ErrorCode = model.CodeInternal
		job.ErrorMessage = errShuttingDown.Error()
		if err := o.db.SaveJob(ctx, job); err != nil {
			slog.ErrorContext(ctx, "failing rejected job", "job_id", job.ID, "error", err)
		}
		return model.ErrInternal(errShuttingDown)
	}
	o.queue <- job.ID
	return nil
}

// GetJob looks a job up by id.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*model.SliceJob, error) {
	return o.db.GetJob(ctx, jobID)
}

// outcome is the success result of a pipeline run.
type outcome struct {
	gcodePath   string
	projectPath string
	metadata    *model.SliceMetadata
}

// process drives one job from queued to a terminal state.
func (o *Orchestrator) process(ctx context.Context, jobID string) {
	ctx = log.ContextAttrs(ctx, slog.String("job_id", jobID))

	job, err := o.db.GetJob(ctx, jobID)
	if err != nil {
		slog.ErrorContext(ctx, "loading queued job failed", "error", err)
		return
	}
	if job.Status != model.StatusQueued {
		// at-most-one execution: never re-enter a picked up job
		slog.WarnContext(ctx, "job not queued: skipping", "status", job.Status)
		return
	}

	started := time.Now().UTC()
	job.Status = model.StatusRunning
	job.StartedAt = &started
	if err := o.db.SaveJob(ctx, job); err != nil {
		slog.ErrorContext(ctx, "marking job running failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "slice job started",
		"model_id", job.ModelID, "profile_id", job.ProfileID)

	out, fail := o.run(ctx, job)

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	if fail != nil {
		job.Status = model.StatusFailed
		job.ErrorCode = fail.Code
		job.ErrorMessage = fail.Message
		job.ErrorDetails = datatypes.JSONMap(fail.Details)
		slog.ErrorContext(ctx, "slice job failed", "code", fail.Code, "error", fail.Message)
	} else {
		job.Status = model.StatusCompleted
		job.ProgressPercent = 100
		job.GcodePath = out.gcodePath
		job.Project3MFPath = out.projectPath
		job.OutputMetadata = out.metadata
		slog.InfoContext(ctx, "slice job completed")
	}

	if err := o.db.SaveJob(ctx, job); err != nil {
		slog.ErrorContext(ctx, "persisting terminal job state failed", "error", err)
	}

	if fail == nil {
		if err := o.files.CleanupWork(job.ID); err != nil {
			slog.WarnContext(ctx, "work dir cleanup failed", "error", err)
		}
	}
}

// run executes the pipeline for a running job. It returns an explicit
// tagged failure instead of letting errors bubble: there is no caller
// connection left to receive them.
func (o *Orchestrator) run(ctx context.Context, job *model.SliceJob) (outcome, *model.APIError) {
	if _, err := os.Stat(o.cfg.Orca.CLIPath); err != nil {
		return outcome{}, model.ErrOrcaCLINotFound(o.cfg.Orca.CLIPath)
	}

	workDir, err := o.files.JobWorkDir(job.ID)
	if err != nil {
		return outcome{}, model.ErrSlicingFailed("preparing work directory failed", detail(err))
	}
	outputDir, err := o.files.JobOutputDir(job.ID)
	if err != nil {
		return outcome{}, model.ErrSlicingFailed("preparing output directory failed", detail(err))
	}

	inv := Invocation{
		CLIPath:   o.cfg.Orca.CLIPath,
		DataDir:   o.cfg.Orca.DataDir,
		OutputDir: outputDir,
		ModelPath: job.ModelStoragePath,
	}

	settings := Translate(job.ProfileSettings, job.Overrides)
	if settings != nil {
		inv.SettingsPath, err = WriteDocument(workDir, job.ProfileName, settings)
		if err != nil {
			return outcome{}, model.ErrSlicingFailed("writing settings document failed", detail(err))
		}
	}
	if job.OutputOptions.Project3MF {
		inv.Export3MFPath = filepath.Join(outputDir, projectArtifactName)
	}

	res, err := Run(ctx, inv, workDir)
	if err != nil {
		return outcome{}, model.ErrSlicingFailed("starting slicer failed: "+err.Error(), detail(err))
	}
	if res.ExitCode != 0 {
		return outcome{}, model.ErrSlicingFailed(
			fmt.Sprintf("OrcaSlicer exited with code %d: %s", res.ExitCode, truncate(res.Stderr, 200)),
			map[string]any{
				"exit_code": res.ExitCode,
				"stdout":    string(res.Stdout),
				"stderr":    string(res.Stderr),
				"command":   inv.CLIPath,
				"args":      inv.Args(),
			})
	}

	var out outcome
	if job.OutputOptions.Gcode {
		out.gcodePath = o.collectGcode(ctx, outputDir)
	}
	if job.OutputOptions.Project3MF {
		if _, err := os.Stat(inv.Export3MFPath); err == nil {
			out.projectPath = inv.Export3MFPath
		} else {
			slog.WarnContext(ctx, "packaged project missing", "path", inv.Export3MFPath)
		}
	}
	if job.OutputOptions.Metadata {
		meta, err := ExtractMetadata(ctx, outputDir)
		if err != nil {
			// best-effort: extraction errors never fail the job
			slog.ErrorContext(ctx, "metadata extraction failed", "error", err)
		}
		out.metadata = meta
	}
	return out, nil
}

// collectGcode renames whatever G-code the slicer produced to the
// canonical artifact name. Missing G-code is a warning, not a failure.
func (o *Orchestrator) collectGcode(ctx context.Context, outputDir string) string {
	canonical := filepath.Join(outputDir, gcodeArtifactName)
	if _, err := os.Stat(canonical); err == nil {
		return canonical
	}

	matches, _ := filepath.Glob(filepath.Join(outputDir, "*.gcode"))
	if len(matches) == 0 {
		slog.WarnContext(ctx, "no gcode file found", "dir", outputDir)
		return ""
	}
	if err := os.Rename(matches[0], canonical); err != nil {
		slog.WarnContext(ctx, "renaming gcode failed", "from", matches[0], "error", err)
		return matches[0]
	}
	return canonical
}

func detail(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
