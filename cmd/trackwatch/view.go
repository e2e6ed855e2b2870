package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teslashibe/go-formcoach/pkg/protocol"
)

// view remembers what was last printed so only changes are shown.
type view struct {
	printed bool
	key     string
}

// describe renders one server frame. ok is false when there is nothing new
// to show.
func (v *view) describe(data []byte) (string, bool) {
	var head struct {
		Type protocol.MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", false
	}

	switch head.Type {
	case protocol.TypeTracking:
		var p protocol.TrackingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", false
		}
		t := p.Tracking
		cue := t.PrimaryCueMessage
		if cue == "" {
			cue = "-"
		}
		key := fmt.Sprintf("%v|%s|%s|%d|%s|%v", t.IsTracking, t.Mode, t.Phase, t.Reps, cue, t.Fusion.DegradedMode)
		if v.printed && key == v.key {
			return "", false
		}
		v.printed, v.key = true, key

		var flags []string
		if t.Fusion.DegradedMode {
			flags = append(flags, "degraded")
		}
		if t.Fusion.RequiresRecalibration {
			flags = append(flags, "recalibrate")
		}
		line := fmt.Sprintf("📍 reps=%d phase=%s mode=%s conf=%.2f cue=%s", t.Reps, t.Phase, t.Mode, t.Fusion.Confidence, cue)
		if len(flags) > 0 {
			line += " [" + strings.Join(flags, ",") + "]"
		}
		return line, true

	case protocol.TypeRep:
		var m protocol.RepMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return "", false
		}
		fqi := "n/a"
		if m.Rep.FQI != nil && !m.Rep.ScoreSuppressed {
			fqi = fmt.Sprintf("%.0f", *m.Rep.FQI)
		}
		return fmt.Sprintf("✅ rep %d in %dms fqi=%s faults=%v", m.Rep.Number, m.Rep.DurationMs, fqi, m.Rep.Faults), true

	case protocol.TypePong:
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			return "", false
		}
		pong, err := msg.GetPongData()
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("🏓 latency %dms", pong.LatencyMs), true
	}
	return "", false
}
