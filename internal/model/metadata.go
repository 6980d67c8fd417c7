package model

// SliceMetadata is the derived, best-effort summary extracted from tool
// output after a successful run. Every field is optional: absence means
// the value was not discoverable, not an error.
type SliceMetadata struct {
	EstimatedPrintTimeSeconds  *int `json:"estimated_print_time_seconds,omitempty"`
	ModelPrintTimeSeconds      *int `json:"model_print_time_seconds,omitempty"`
	FirstLayerPrintTimeSeconds *int `json:"first_layer_print_time_seconds,omitempty"`

	FilamentUsedMM *float64 `json:"filament_used_mm,omitempty"`
	FilamentUsedG  *float64 `json:"filament_used_g,omitempty"`
	FilamentType   string   `json:"filament_type,omitempty"`

	LayerCount    *int         `json:"layer_count,omitempty"`
	BoundingBoxMM *BoundingBox `json:"bounding_box_mm,omitempty"`
}

// BoundingBox holds model dimensions in millimeters. Only Z is
// reliably reported by the slicer text output.
type BoundingBox struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
}

// Empty reports whether nothing was extracted.
func (m SliceMetadata) Empty() bool {
	return m.EstimatedPrintTimeSeconds == nil &&
		m.ModelPrintTimeSeconds == nil &&
		m.FirstLayerPrintTimeSeconds == nil &&
		m.FilamentUsedMM == nil &&
		m.FilamentUsedG == nil &&
		m.FilamentType == "" &&
		m.LayerCount == nil &&
		m.BoundingBoxMM == nil
}
