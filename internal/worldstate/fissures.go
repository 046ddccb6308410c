package worldstate

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tennowatch/internal/event"
)

// watchedNode maps a lowercase keyword found in the upstream node string
// to the display label used in notifications. Nodes matching no keyword
// are excluded entirely, not merely unlabeled.
type watchedNode struct {
	keyword string
	label   string
}

// The watch table is ordered; the first matching keyword wins.
var watchedNodes = []watchedNode{
	{"mot", "Mot (Void)"},
	{"ani", "Ani (Void)"},
	{"olympus", "Olympus (Mars)"},
	{"stephano", "Stephano (Uranus)"},
	{"kappa", "Kappa (Sedna)"},
}

// NormalizeFissures turns the fissures document into Steel Path fissure
// records at watched nodes. Non-hard, inactive, unwatched, or expired
// fissures are dropped during normalization.
func NormalizeFissures(raw json.RawMessage, now time.Time) []event.Fissure {
	if len(raw) == 0 {
		return nil
	}
	var docs []fissureDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil
	}

	out := make([]event.Fissure, 0, 4)
	for _, d := range docs {
		if !d.IsHard || !d.Active {
			continue
		}
		label, ok := matchWatchedNode(d.Node)
		if !ok {
			continue
		}
		expiry := parseISO(d.Expiry)
		if !expiry.IsZero() && now.After(expiry) {
			continue
		}

		tier := d.Tier
		if tier == "" && d.TierNum > 0 {
			tier = "T" + strconv.Itoa(d.TierNum)
		}
		remaining := d.ETA
		if remaining == "" {
			remaining = countdown(expiry, now)
		}

		out = append(out, event.Fissure{
			ID:          d.ID,
			Node:        label,
			Tier:        tier,
			MissionType: d.MissionType,
			Expiry:      expiry,
			Remaining:   remaining,
			ExpiryLabel: clockLabel(expiry),
		})
	}
	return out
}

func matchWatchedNode(node string) (string, bool) {
	lower := strings.ToLower(node)
	for _, w := range watchedNodes {
		if strings.Contains(lower, w.keyword) {
			return w.label, true
		}
	}
	return "", false
}
