package slicer

// Invocation describes one OrcaSlicer CLI call. The tool itself is the
// authority on argument values; nothing is validated here beyond
// presence.
type Invocation struct {
	CLIPath string
	// DataDir points at the OrcaSlicer configuration tree holding
	// machine/, process/ and filament/ preset JSONs. Optional.
	DataDir   string
	OutputDir string
	// SettingsPath is the translated settings document. Empty when no
	// document was produced.
	SettingsPath string
	// Export3MFPath is set when the job requests a packaged project.
	Export3MFPath string
	ModelPath     string
}

// Args assembles the CLI argument list:
//
//	[--datadir D] --outputdir O [--load-settings S] --slice 0 [--export-3mf P] <model>
//
// The model input is always last.
func (inv Invocation) Args() []string {
	args := make([]string, 0, 10)
	if inv.DataDir != "" {
		args = append(args, "--datadir", inv.DataDir)
	}
	args = append(args, "--outputdir", inv.OutputDir)
	if inv.SettingsPath != "" {
		args = append(args, "--load-settings", inv.SettingsPath)
	}
	// 0 slices all plates
	args = append(args, "--slice", "0")
	if inv.Export3MFPath != "" {
		args = append(args, "--export-3mf", inv.Export3MFPath)
	}
	return append(args, inv.ModelPath)
}
