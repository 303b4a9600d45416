package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and, when a config is given,
// the settings a run depends on.
func PrintBanner(version string, config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Vizard", version)

	if config == nil || logger == nil {
		return
	}
	logger.Debug().
		Str("driver", config.Browser.Driver).
		Int("lanes", config.LaneCount()).
		Str("output_path", config.OutputPath).
		Str("report", config.ReportPath()).
		Str("chunk_timeout", config.ChunkTimeout().String()).
		Msg("Resolved configuration")
}
