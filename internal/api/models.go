package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printforge/slicerd/internal/model"
)

// uploadModel accepts a multipart form with a single "file" part,
// streams it to disk and records the upload.
func (s *Server) uploadModel(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, model.ErrValidation(map[string]any{"file": "multipart file field is required"}))
		return
	}

	format := model.FileFormat(fileHeader.Filename)
	if !model.SupportedFormat(format) {
		writeError(c, model.ErrUnsupportedFormat(fileHeader.Filename, format))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	id := model.NewModelID()
	path, size, checksum, err := s.files.SaveModel(id, f, fileHeader.Filename)
	if err != nil {
		writeError(c, err)
		return
	}

	m := &model.Model{
		ID:             id,
		Filename:       fileHeader.Filename,
		Format:         format,
		SizeBytes:      size,
		ChecksumSHA256: checksum,
		StoragePath:    path,
		UploadedAt:     time.Now().UTC(),
	}
	if err := s.db.CreateModel(c.Request.Context(), m); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, m)
}

func (s *Server) listModels(c *gin.Context) {
	limit, offset := paging(c)
	items, total, err := s.db.ListModels(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (s *Server) getModel(c *gin.Context) {
	m, err := s.db.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
