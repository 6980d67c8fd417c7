package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/printforge/slicerd/internal/model"
	"github.com/printforge/slicerd/internal/slicer"
)

type jobRequest struct {
	ModelID       string               `json:"model_id" binding:"required"`
	ProfileID     string               `json:"profile_id" binding:"required"`
	Overrides     map[string]any       `json:"overrides"`
	OutputOptions *model.OutputOptions `json:"output_options"`
	Metadata      map[string]any       `json:"metadata"`
}

// jobResponse is the job record plus the output view: download links
// and extracted metadata appear once the job completes.
type jobResponse struct {
	*model.SliceJob
	Output *jobOutput `json:"output,omitempty"`
}

type jobOutput struct {
	GcodeURL      string               `json:"gcode_url,omitempty"`
	Project3MFURL string               `json:"project_3mf_url,omitempty"`
	Metadata      *model.SliceMetadata `json:"metadata,omitempty"`
}

func jobView(j *model.SliceJob) jobResponse {
	resp := jobResponse{SliceJob: j}
	if j.Status != model.StatusCompleted {
		return resp
	}
	out := &jobOutput{Metadata: j.OutputMetadata}
	if j.GcodePath != "" {
		out.GcodeURL = "/slice-jobs/" + j.ID + "/gcode"
	}
	if j.Project3MFPath != "" {
		out.Project3MFURL = "/slice-jobs/" + j.ID + "/project.3mf"
	}
	resp.Output = out
	return resp
}

func (s *Server) createJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, model.ErrValidation(map[string]any{"body": err.Error()}))
		return
	}

	job, err := s.orch.CreateJob(c.Request.Context(), slicer.CreateJobRequest{
		ModelID:       req.ModelID,
		ProfileID:     req.ProfileID,
		Overrides:     req.Overrides,
		OutputOptions: req.OutputOptions,
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, jobView(job))
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.orch.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobView(job))
}

func (s *Server) downloadGcode(c *gin.Context) {
	s.downloadArtifact(c, "output.gcode", func(j *model.SliceJob) string { return j.GcodePath })
}

func (s *Server) downloadProject(c *gin.Context) {
	s.downloadArtifact(c, "project.3mf", func(j *model.SliceJob) string { return j.Project3MFPath })
}

// downloadArtifact serves one produced file of a completed job.
func (s *Server) downloadArtifact(c *gin.Context, name string, pathOf func(*model.SliceJob) string) {
	job, err := s.orch.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if job.Status != model.StatusCompleted {
		writeError(c, model.ErrJobNotCompleted(job.ID, job.Status))
		return
	}

	path := pathOf(job)
	if path == "" {
		writeError(c, model.ErrFileNotFound(job.ID, name))
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(c, model.ErrFileNotFound(job.ID, name))
		return
	}
	c.FileAttachment(path, job.ID+"_"+name)
}
