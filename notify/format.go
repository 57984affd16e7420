package notify

import (
	"fmt"
	"strings"

	"github.com/warp/recognition-engine/engine"
)

// RecognitionText renders the chat message for a public recognition:
//
//	🎉 Ada Park recognized Eve Hart, Gus Lane: "Thanks!" (10 pts) | Values: craft
func RecognitionText(r engine.Recognition) string {
	names := make([]string, 0, len(r.Recipients))
	for _, s := range r.Recipients {
		names = append(names, displayName(s))
	}
	pts := "no points"
	if r.PointsAwarded > 0 {
		pts = fmt.Sprintf("%d pts", r.PointsAwarded)
	}
	text := fmt.Sprintf("🎉 %s recognized %s: \"%s\" (%s)", displayName(r.Sender), strings.Join(names, ", "), r.Message, pts)
	if len(r.ValuesTags) > 0 {
		text += " | Values: " + strings.Join(r.ValuesTags, ", ")
	}
	return text
}

func RedemptionText(ev engine.RedemptionEvent) string {
	return fmt.Sprintf("Your redemption of %s moved from %s to %s.",
		ev.Redemption.RewardTitle, humanize(string(ev.OldStatus)), humanize(string(ev.Redemption.Status)))
}

func displayName(s engine.UserSnapshot) string {
	if n := s.FullName(); n != "" {
		return n
	}
	return "Someone"
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
