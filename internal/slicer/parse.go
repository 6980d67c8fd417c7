package slicer

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/printforge/slicerd/internal/model"
)

// Patterns of the OrcaSlicer G-code comment header, e.g.
//
//	; total estimated time: 1h 16m 56s
//	; model printing time: 1h 15m 23s ;
//	; first layer printing time = 4m 23s
//	; max_z_height: 35.4
var (
	reTotalTime      = regexp.MustCompile(`total estimated time:\s+([0-9hms\s]+)`)
	reModelTime      = regexp.MustCompile(`model printing time:\s+([0-9hms\s]+);`)
	reFirstLayerTime = regexp.MustCompile(`first layer printing time.*?=\s+([0-9hms\s]+)`)
	reMaxZHeight     = regexp.MustCompile(`max_z_height:\s+([0-9.]+)`)
	reChangeLayer    = regexp.MustCompile(`;\s*CHANGE_LAYER`)
	reLayerComment   = regexp.MustCompile(`(?i);\s*layer\s+\d+`)

	reHours   = regexp.MustCompile(`(\d+)h`)
	reMinutes = regexp.MustCompile(`(\d+)m`)
	reSeconds = regexp.MustCompile(`(\d+)s`)
)

// ParseDuration converts a duration expression like "1h 16m 56s",
// "23m 45s" or "56s" to total seconds. Absent tokens contribute zero.
func ParseDuration(s string) int {
	part := func(re *regexp.Regexp) int {
		m := re.FindStringSubmatch(s)
		if m == nil {
			return 0
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0
		}
		return n
	}
	return part(reHours)*3600 + part(reMinutes)*60 + part(reSeconds)
}

// ParseGcodeMetadata extracts print metadata from G-code content via
// pattern search. Missing fields are simply left unset.
func ParseGcodeMetadata(content string) model.SliceMetadata {
	var meta model.SliceMetadata

	if m := reTotalTime.FindStringSubmatch(content); m != nil {
		v := ParseDuration(strings.TrimSpace(m[1]))
		meta.EstimatedPrintTimeSeconds = &v
	}
	if m := reModelTime.FindStringSubmatch(content); m != nil {
		v := ParseDuration(strings.TrimSpace(m[1]))
		meta.ModelPrintTimeSeconds = &v
	}
	if m := reFirstLayerTime.FindStringSubmatch(content); m != nil {
		v := ParseDuration(strings.TrimSpace(m[1]))
		meta.FirstLayerPrintTimeSeconds = &v
	}
	if m := reMaxZHeight.FindStringSubmatch(content); m != nil {
		if z, err := strconv.ParseFloat(m[1], 64); err == nil {
			meta.BoundingBoxMM = &model.BoundingBox{Z: &z}
		}
	}

	// primary layer change marker, with a case-insensitive per-layer
	// comment fallback
	if n := len(reChangeLayer.FindAllStringIndex(content, -1)); n > 0 {
		meta.LayerCount = &n
	} else if n := len(reLayerComment.FindAllStringIndex(content, -1)); n > 0 {
		meta.LayerCount = &n
	}

	return meta
}

// sliceInfo mirrors Metadata/slice_info.config inside a 3MF package.
type sliceInfo struct {
	Plate struct {
		Filament struct {
			UsedM string `xml:"used_m,attr"`
			UsedG string `xml:"used_g,attr"`
			Type  string `xml:"type,attr"`
		} `xml:"filament"`
	} `xml:"plate"`
}

// ParseProjectMetadata reads filament usage from a packaged project. A
// 3MF file is a zip archive carrying Metadata/slice_info.config; the
// archive is extracted to a temporary directory which is always removed,
// also on error.
func ParseProjectMetadata(projectPath string, meta *model.SliceMetadata) error {
	tmp, err := os.MkdirTemp(filepath.Dir(projectPath), "3mf-extract-")
	if err != nil {
		return fmt.Errorf("creating extraction dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tmp)
	}()

	if err := extractZip(projectPath, tmp); err != nil {
		return fmt.Errorf("extracting 3mf: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(tmp, "Metadata", "slice_info.config"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading slice_info.config: %w", err)
	}

	var info sliceInfo
	if err := xml.Unmarshal(raw, &info); err != nil {
		return fmt.Errorf("parsing slice_info.config: %w", err)
	}

	filament := info.Plate.Filament
	if filament.UsedM != "" {
		if m, err := strconv.ParseFloat(filament.UsedM, 64); err == nil {
			mm := m * 1000
			meta.FilamentUsedMM = &mm
		}
	}
	if filament.UsedG != "" {
		if g, err := strconv.ParseFloat(filament.UsedG, 64); err == nil {
			meta.FilamentUsedG = &g
		}
	}
	if filament.Type != "" {
		meta.FilamentType = filament.Type
	}
	return nil
}

func extractZip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer func() {
		_ = zr.Close()
	}()

	for _, f := range zr.File {
		target := filepath.Join(dest, f.Name)
		// zip slip guard
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() {
		_ = rc.Close()
	}()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	_, err = io.Copy(out, rc)
	return err
}

// ExtractMetadata produces the best-effort metadata of a finished job
// from its output directory. It never fails the job: structural errors
// are returned for logging, missing fields are not errors.
func ExtractMetadata(ctx context.Context, outputDir string) (*model.SliceMetadata, error) {
	gcodePath := filepath.Join(outputDir, gcodeArtifactName)
	if _, err := os.Stat(gcodePath); err != nil {
		matches, _ := filepath.Glob(filepath.Join(outputDir, "*.gcode"))
		if len(matches) == 0 {
			slog.WarnContext(ctx, "no gcode file found", "dir", outputDir)
			return nil, nil
		}
		gcodePath = matches[0]
	}

	content, err := os.ReadFile(gcodePath)
	if err != nil {
		return nil, fmt.Errorf("reading gcode: %w", err)
	}
	meta := ParseGcodeMetadata(string(content))

	projectPath := filepath.Join(outputDir, projectArtifactName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := ParseProjectMetadata(projectPath, &meta); err != nil {
			// a broken project only loses the filament fields, the
			// G-code derived values stay
			return &meta, fmt.Errorf("parsing packaged project: %w", err)
		}
	}

	return &meta, nil
}
