package worldstate

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tennowatch/internal/event"
)

// RareKeywords is the canonical rare-reward keyword set. Matching is a
// case-sensitive substring test over each reward item's uniqueName/type.
var RareKeywords = []string{
	"OrokinCatalyst", "OrokinReactor", "Forma",
	"AuraForma", "Riven", "AladCoordinate", "SentinelWeaponBP",
}

var factionNames = map[string]string{
	"FC_CORPUS":      "Corpus",
	"FC_GRINEER":     "Grineer",
	"FC_INFESTATION": "Infested",
}

// NormalizeInvasions turns the invasions document into rare-invasion
// records. Completed invasions and invasions without a rare reward on
// either side are dropped here, before they ever reach the ledger.
func NormalizeInvasions(raw json.RawMessage, _ time.Time) []event.Invasion {
	if len(raw) == 0 {
		return nil
	}
	var docs []invasionDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil
	}

	out := make([]event.Invasion, 0, 4)
	for _, d := range docs {
		if d.Completed {
			continue
		}
		if !rewardIsRare(d.Attacker.Reward) && !rewardIsRare(d.Defender.Reward) {
			continue
		}

		node := d.Node
		if node == "" {
			node = unknownLocation
		}

		count := d.Count
		if count < 0 {
			count = -count
		}
		goal := d.Goal
		if goal < 1 {
			goal = 1
		}

		out = append(out, event.Invasion{
			ID:             d.ID,
			Location:       node,
			Attacker:       factionLabel(d.AttackingFaction),
			Defender:       factionLabel(d.DefendingFaction),
			AttackerReward: formatReward(d.Attacker.Reward),
			DefenderReward: formatReward(d.Defender.Reward),
			Progress:       float64(count) / float64(goal),
			Rare:           true,
		})
	}
	return out
}

// rewardIsRare reports whether any item in the reward matches a rare
// keyword. A reward with no items is never rare.
func rewardIsRare(r rewardDoc) bool {
	items := r.Items
	if len(items) == 0 {
		items = r.CountedItems
	}
	for _, it := range items {
		name := it.UniqueName
		if name == "" {
			name = it.Type
		}
		for _, kw := range RareKeywords {
			if strings.Contains(name, kw) {
				return true
			}
		}
	}
	return false
}

func factionLabel(raw string) string {
	if label, ok := factionNames[raw]; ok {
		return label
	}
	return raw
}

// formatReward prefers upstream's preformatted string, else joins the
// item list, else "none".
func formatReward(r rewardDoc) string {
	if s := strings.TrimSpace(r.AsString); s != "" {
		return s
	}
	items := r.Items
	if len(items) == 0 {
		items = r.CountedItems
	}
	if len(items) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		name := it.Type
		if name == "" {
			name = it.UniqueName
		}
		// uniqueName is a path; keep the last segment.
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		if name == "" {
			name = "?"
		}
		count := it.Count
		if count < 1 {
			count = 1
		}
		parts = append(parts, name+" x"+strconv.Itoa(count))
	}
	return strings.Join(parts, "  ")
}
