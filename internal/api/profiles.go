package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/printforge/slicerd/internal/model"
)

type profileRequest struct {
	Name              string         `json:"name" binding:"required"`
	Description       string         `json:"description"`
	Source            string         `json:"source"`
	Vendor            string         `json:"vendor"`
	MachineID         string         `json:"machine_id"`
	ProcessID         string         `json:"process_id"`
	FilamentID        string         `json:"filament_id"`
	SettingsOverrides map[string]any `json:"settings_overrides"`
}

func (s *Server) createProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, model.ErrValidation(map[string]any{"body": err.Error()}))
		return
	}

	source := req.Source
	if source == "" {
		source = model.SourceUser
	}
	if source != model.SourceBuiltin && source != model.SourceUser {
		writeError(c, model.ErrValidation(map[string]any{"source": "must be builtin or user"}))
		return
	}

	now := time.Now().UTC()
	p := &model.Profile{
		ID:                model.NewProfileID(req.Name),
		Name:              req.Name,
		Description:       req.Description,
		Source:            source,
		Vendor:            req.Vendor,
		MachineID:         req.MachineID,
		ProcessID:         req.ProcessID,
		FilamentID:        req.FilamentID,
		SettingsOverrides: datatypes.JSONMap(req.SettingsOverrides),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.db.CreateProfile(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (s *Server) listProfiles(c *gin.Context) {
	source := c.Query("source")
	if source != "" && source != model.SourceBuiltin && source != model.SourceUser {
		writeError(c, model.ErrValidation(map[string]any{"source": "must be builtin or user"}))
		return
	}

	limit, offset := paging(c)
	items, total, err := s.db.ListProfiles(c.Request.Context(), source, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (s *Server) getProfile(c *gin.Context) {
	p, err := s.db.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// updateProfile applies a partial update: only supplied fields change,
// the id and source never do.
func (s *Server) updateProfile(c *gin.Context) {
	var req struct {
		Name              *string        `json:"name"`
		Description       *string        `json:"description"`
		Vendor            *string        `json:"vendor"`
		MachineID         *string        `json:"machine_id"`
		ProcessID         *string        `json:"process_id"`
		FilamentID        *string        `json:"filament_id"`
		SettingsOverrides map[string]any `json:"settings_overrides"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, model.ErrValidation(map[string]any{"body": err.Error()}))
		return
	}

	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Vendor != nil {
		fields["vendor"] = *req.Vendor
	}
	if req.MachineID != nil {
		fields["machine_id"] = *req.MachineID
	}
	if req.ProcessID != nil {
		fields["process_id"] = *req.ProcessID
	}
	if req.FilamentID != nil {
		fields["filament_id"] = *req.FilamentID
	}
	if req.SettingsOverrides != nil {
		fields["settings_overrides"] = datatypes.JSONMap(req.SettingsOverrides)
	}
	if len(fields) > 0 {
		fields["updated_at"] = time.Now().UTC()
	}

	p, err := s.db.UpdateProfile(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProfile(c *gin.Context) {
	id := c.Param("id")
	if err := s.db.DeleteProfile(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}
