package slicer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// settingCategory drives value coercion. OrcaSlicer is picky about the
// wire format of many settings: numbers as strings, percentages with a
// % suffix, booleans as "0"/"1".
type settingCategory int

const (
	categoryPassthrough settingCategory = iota
	categoryNumericString
	categoryPercent
	categoryBoolDigit
)

// settingCategories maps a canonical setting key to its coercion rule.
// Keys not listed here pass through unchanged.
var settingCategories = map[string]settingCategory{
	"layer_height":                categoryNumericString,
	"initial_layer_print_height":  categoryNumericString,
	"line_width":                  categoryNumericString,
	"inner_wall_line_width":       categoryNumericString,
	"outer_wall_line_width":       categoryNumericString,
	"top_surface_line_width":      categoryNumericString,
	"sparse_infill_line_width":    categoryNumericString,
	"support_line_width":          categoryNumericString,
	"first_layer_extrusion_width": categoryNumericString,
	"min_layer_height":            categoryNumericString,
	"max_layer_height":            categoryNumericString,

	"sparse_infill_density":   categoryPercent,
	"internal_bridge_density": categoryPercent,
	"skin_infill_density":     categoryPercent,
	"skeleton_infill_density": categoryPercent,

	"enable_support":    categoryBoolDigit,
	"detect_thin_wall":  categoryBoolDigit,
	"only_one_wall_top": categoryBoolDigit,
	"spiral_mode":       categoryBoolDigit,
	"overhang_reverse":  categoryBoolDigit,
}

// settingAliases maps colloquial keys to the canonical key OrcaSlicer
// understands.
var settingAliases = map[string]string{
	"infill_density": "sparse_infill_density",
}

const (
	layerGcodeKey      = "layer_gcode"
	extruderResetGcode = "G92 E0"
)

// Translate merges a profile's stored settings with per-job overrides
// (overrides win), resolves aliases, coerces values per category and
// injects the extruder reset into the layer change G-code. It returns
// nil when both inputs are empty: no settings document is produced for
// a job carrying no settings at all.
func Translate(profileSettings, overrides map[string]any) map[string]any {
	if len(profileSettings) == 0 && len(overrides) == 0 {
		return nil
	}

	merged := make(map[string]any, len(profileSettings)+len(overrides))
	for k, v := range profileSettings {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	for alias, canonical := range settingAliases {
		v, ok := merged[alias]
		if !ok {
			continue
		}
		if _, exists := merged[canonical]; !exists {
			merged[canonical] = v
		}
		delete(merged, alias)
	}

	out := make(map[string]any, len(merged))
	for k, v := range merged {
		if v == nil {
			continue
		}
		out[k] = coerce(k, v)
	}

	injectLayerGcode(out)
	return out
}

func coerce(key string, v any) any {
	switch settingCategories[key] {
	case categoryNumericString:
		if s, ok := formatNumber(v); ok {
			return s
		}
	case categoryPercent:
		if s, ok := formatNumber(v); ok {
			return s + "%"
		}
		if s, ok := v.(string); ok && !strings.HasSuffix(s, "%") {
			return s + "%"
		}
	case categoryBoolDigit:
		switch b := v.(type) {
		case bool:
			if b {
				return "1"
			}
			return "0"
		default:
			if s, ok := formatNumber(v); ok {
				return s
			}
		}
	}
	return v
}

// formatNumber stringifies numeric values verbatim: no rounding, no
// trailing zeros.
func formatNumber(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case json.Number:
		return n.String(), true
	}
	return "", false
}

// injectLayerGcode guarantees the extruder position reset is present in
// the layer change G-code. Without it OrcaSlicer trips over relative
// extruder addressing. Idempotent.
func injectLayerGcode(settings map[string]any) {
	v, ok := settings[layerGcodeKey]
	if !ok {
		settings[layerGcodeKey] = extruderResetGcode
		return
	}
	s, isString := v.(string)
	if !isString {
		return
	}
	if !strings.Contains(s, extruderResetGcode) {
		settings[layerGcodeKey] = s + "\n" + extruderResetGcode
	}
}

// WriteDocument writes the translated settings as an OrcaSlicer
// settings file in dir, prepending the preset header fields the tool
// requires. Translated keys win over header defaults.
func WriteDocument(dir, profileName string, settings map[string]any) (string, error) {
	if profileName == "" {
		profileName = "API Generated Profile"
	}
	doc := map[string]any{
		"type":    "process",
		"name":    profileName,
		"from":    "user",
		"version": "1.0.0",
	}
	for k, v := range settings {
		doc[k] = v
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding settings: %w", err)
	}

	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing settings: %w", err)
	}
	return path, nil
}
