package model

import (
	"path/filepath"
	"strings"
	"time"
)

// Model is an uploaded 3D asset reference. The checksum is computed
// once over the full byte stream at save time and never recomputed.
type Model struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Filename       string    `gorm:"not null" json:"filename"`
	Format         string    `gorm:"not null" json:"format"`
	SizeBytes      int64     `gorm:"not null" json:"size_bytes"`
	ChecksumSHA256 string    `gorm:"not null" json:"checksum_sha256"`
	StoragePath    string    `gorm:"not null" json:"storage_path"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

var supportedFormats = map[string]struct{}{
	"stl":  {},
	"step": {},
	"3mf":  {},
}

// FileFormat returns the lowercased extension of filename without the
// leading dot.
func FileFormat(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// SupportedFormat reports whether a model in the given format may be
// uploaded.
func SupportedFormat(format string) bool {
	_, ok := supportedFormats[format]
	return ok
}
