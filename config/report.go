package config

// ReportConfig controls the report stage.
type ReportConfig struct {
	// Summary prints a text summary of every run to stdout.
	Summary bool `json:"summary"`
	// PlotPath, when set, receives a dispatch chart per run. The routine
	// name is inserted before the extension.
	PlotPath string `json:"plot_path" validate:"omitempty,endswith=.png|endswith=.svg|endswith=.pdf"`
}
