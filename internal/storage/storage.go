// Package storage owns the on-disk layout of the service:
//
//	<data>/models/<model id>/<filename>
//	<data>/work/<job id>/       scratch, removed after a successful run
//	<data>/outputs/<job id>/    artifacts served to callers
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type Storage struct {
	modelsDir  string
	outputsDir string
	workDir    string
}

func New(modelsDir, outputsDir, workDir string) *Storage {
	return &Storage{
		modelsDir:  modelsDir,
		outputsDir: outputsDir,
		workDir:    workDir,
	}
}

// SaveModel streams r to disk under the model id, computing size and
// SHA-256 checksum in one pass. The checksum is never recomputed.
func (s *Storage) SaveModel(modelID string, r io.Reader, filename string) (path string, size int64, checksum string, err error) {
	dir := filepath.Join(s.modelsDir, modelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, "", fmt.Errorf("creating model dir: %w", err)
	}

	path = filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, "", fmt.Errorf("creating model file: %w", err)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		return "", 0, "", fmt.Errorf("writing model file: %w", err)
	}

	return path, size, hex.EncodeToString(h.Sum(nil)), nil
}

// ModelDir returns the directory a model is stored in.
func (s *Storage) ModelDir(modelID string) string {
	return filepath.Join(s.modelsDir, modelID)
}

// JobWorkDir creates and returns the job scoped scratch directory.
func (s *Storage) JobWorkDir(jobID string) (string, error) {
	dir := filepath.Join(s.workDir, jobID)
	return dir, os.MkdirAll(dir, 0o755)
}

// JobOutputDir creates and returns the job scoped output directory.
func (s *Storage) JobOutputDir(jobID string) (string, error) {
	dir := filepath.Join(s.outputsDir, jobID)
	return dir, os.MkdirAll(dir, 0o755)
}

// CleanupWork removes the job scratch directory.
func (s *Storage) CleanupWork(jobID string) error {
	return os.RemoveAll(filepath.Join(s.workDir, jobID))
}

// CleanupOutput removes the job output directory.
func (s *Storage) CleanupOutput(jobID string) error {
	return os.RemoveAll(filepath.Join(s.outputsDir, jobID))
}

// ArtifactPath returns the path of a named file in the job output
// directory.
func (s *Storage) ArtifactPath(jobID, filename string) string {
	return filepath.Join(s.outputsDir, jobID, filepath.Base(filename))
}
