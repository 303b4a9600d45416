package browser

import (
	"strings"

	"github.com/ternarybob/arbor"
)

// IgnoredConsoleMessages are page console messages that are never relayed
var IgnoredConsoleMessages = []string{
	"Download the React DevTools for a better development experience",
}

// relayConsole writes a page console message to the runner log
func relayConsole(logger arbor.ILogger, lane int, text string) {
	for _, ignored := range IgnoredConsoleMessages {
		if strings.Contains(text, ignored) {
			return
		}
	}
	logger.Info().Int("lane", lane).Msg(" > " + text)
}

// hostEnvelope is what a host function resolves to inside the page.
// The page side unwraps it and throws when Error is set.
type hostEnvelope struct {
	Result interface{} `json:"result"`
	Error  string      `json:"error,omitempty"`
}

func newEnvelope(result interface{}, err error) hostEnvelope {
	if err != nil {
		return hostEnvelope{Error: err.Error()}
	}
	return hostEnvelope{Result: result}
}
