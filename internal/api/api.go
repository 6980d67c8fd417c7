// Package api is the HTTP surface: gin handlers over the store, the
// file storage and the slice job orchestrator. All failures leave
// through one envelope shape.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printforge/slicerd/internal/model"
	"github.com/printforge/slicerd/internal/slicer"
	"github.com/printforge/slicerd/internal/storage"
	"github.com/printforge/slicerd/internal/store"
)

const serviceName = "slicerd"

type Server struct {
	cfg     model.Config
	db      *store.Store
	files   *storage.Storage
	orch    *slicer.Orchestrator
	started time.Time
}

func NewServer(cfg model.Config, db *store.Store, files *storage.Storage, orch *slicer.Orchestrator) *Server {
	return &Server{cfg: cfg, db: db, files: files, orch: orch, started: time.Now()}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/healthz", s.health)
	r.GET("/", s.info)

	r.POST("/models", s.uploadModel)
	r.GET("/models", s.listModels)
	r.GET("/models/:id", s.getModel)

	r.POST("/profiles", s.createProfile)
	r.GET("/profiles", s.listProfiles)
	r.GET("/profiles/:id", s.getProfile)
	r.PATCH("/profiles/:id", s.updateProfile)
	r.DELETE("/profiles/:id", s.deleteProfile)

	r.POST("/slice-jobs", s.createJob)
	r.GET("/slice-jobs/:id", s.getJob)
	r.GET("/slice-jobs/:id/gcode", s.downloadGcode)
	r.GET("/slice-jobs/:id/project.3mf", s.downloadProject)

	return r
}

func (s *Server) health(c *gin.Context) {
	ctx := c.Request.Context()

	orcaAvailable := false
	orcaVersion := ""
	if _, err := os.Stat(s.cfg.Orca.CLIPath); err == nil {
		orcaAvailable = true
		orcaVersion = s.orcaVersion(ctx)
	}

	var profilesLoaded int64
	if _, total, err := s.db.ListProfiles(ctx, "", 1, 0); err == nil {
		profilesLoaded = total
	}

	resp := gin.H{
		"status":             "ok",
		"orca_cli_available": orcaAvailable,
		"profiles_loaded":    profilesLoaded,
		"uptime_seconds":     int(time.Since(s.started).Seconds()),
	}
	if orcaVersion != "" {
		resp["orca_version"] = orcaVersion
	}
	c.JSON(http.StatusOK, resp)
}

// orcaVersion probes the CLI for its version string, best-effort.
func (s *Server) orcaVersion(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.cfg.Orca.CLIPath, "--version").Output()
	if err != nil {
		return ""
	}
	version, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return version
}

func (s *Server) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"endpoints": gin.H{
			"models":     "/models",
			"profiles":   "/profiles",
			"slice_jobs": "/slice-jobs",
		},
	})
}

// writeError renders any error as the uniform envelope. Unclassified
// errors become INTERNAL_SERVER_ERROR and are logged in full.
func writeError(c *gin.Context, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.ErrorContext(c.Request.Context(), "unclassified handler error", "error", err)
		apiErr = model.ErrInternal(err)
	}
	c.JSON(apiErr.HTTPStatus, gin.H{"error": apiErr})
}

// paging reads limit and offset query parameters. Limit is clamped to
// 1..100 and defaults to 20; a negative offset becomes zero.
func paging(c *gin.Context) (limit, offset int) {
	limit = 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}
