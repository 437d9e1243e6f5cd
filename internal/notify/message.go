package notify

import (
	"fmt"
	"strings"

	"gexcompass/internal/relay"
)

// FormatRegimeMessage creates a regime change notification body.
func FormatRegimeMessage(prev string, upd RegimeUpdate) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Previous: %s\n", prev))
	sb.WriteString(fmt.Sprintf("Now: %s\n", upd.Regime))
	sb.WriteString(fmt.Sprintf("Scores: x %+.2f, y %+.2f\n", upd.XScore, upd.YScore))
	if upd.Confidence != "" {
		sb.WriteString(fmt.Sprintf("Confidence: %s\n", upd.Confidence))
	}
	sb.WriteString(fmt.Sprintf("Strategy: %s", upd.Strategy))

	return sb.String()
}

// FormatMagnetMessage creates a magnet move notification body.
func FormatMagnetMessage(ev relay.MagnetChange) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Magnet: %.2f -> %.2f\n", ev.OldMagnet, ev.NewMagnet))
	sb.WriteString(fmt.Sprintf("Strength: %.0f", ev.Strength))

	return sb.String()
}
