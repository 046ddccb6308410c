package worldstate

import (
	"encoding/json"
	"time"

	"tennowatch/internal/event"
)

// Cycle state labels. Day/night and warm/cold states are mutually
// exclusive complements derived from a boolean flag; the Cambion cycle
// rotates through a fixed 2-entry table keyed by the upstream state.
const (
	stateDay   = "Day"
	stateNight = "Night"
	stateWarm  = "Warm"
	stateCold  = "Cold"
)

var cambionRotation = map[string][2]string{
	"fass": {"Fass", "Vome"},
	"vome": {"Vome", "Fass"},
}

// EarthDomain identifies the only cycle domain that produces
// notification candidates; the rest are returned for display only.
const EarthDomain = "earth"

// NormalizeCycles extracts the environmental cycle records from the
// full world-state document. A nil or malformed document yields an
// empty set.
func NormalizeCycles(raw json.RawMessage, now time.Time) []event.Cycle {
	if len(raw) == 0 {
		return nil
	}
	var ws worldstateDoc
	if err := json.Unmarshal(raw, &ws); err != nil {
		return nil
	}

	out := make([]event.Cycle, 0, 4)

	if c := ws.EarthCycle; c != nil {
		out = append(out, boolCycle(EarthDomain, "Earth", c, c.IsDay, stateDay, stateNight, now))
	}
	if c := ws.CetusCycle; c != nil {
		out = append(out, boolCycle("cetus", "Cetus", c, c.IsDay, stateDay, stateNight, now))
	}
	if c := ws.VallisCycle; c != nil {
		out = append(out, boolCycle("vallis", "Orb Vallis", c, c.IsWarm, stateWarm, stateCold, now))
	}
	if c := ws.CambionCycle; c != nil {
		state, next := cambionStates(c.State)
		out = append(out, event.Cycle{
			Domain:      "cambion",
			DomainLabel: "Cambion Drift",
			State:       state,
			NextState:   next,
			Remaining:   cycleRemaining(c, now),
			ExpiryLabel: cycleExpiryLabel(c),
		})
	}
	return out
}

func boolCycle(domain, label string, c *cycleDoc, flag *bool, onState, offState string, now time.Time) event.Cycle {
	// Missing flag defaults to the "on" state, matching upstream's own default.
	on := flag == nil || *flag
	state, next := onState, offState
	if !on {
		state, next = offState, onState
	}
	return event.Cycle{
		Domain:      domain,
		DomainLabel: label,
		State:       state,
		NextState:   next,
		Remaining:   cycleRemaining(c, now),
		ExpiryLabel: cycleExpiryLabel(c),
	}
}

func cambionStates(raw string) (string, string) {
	if pair, ok := cambionRotation[raw]; ok {
		return pair[0], pair[1]
	}
	// Unknown state labels pass through so operators still see something.
	return raw, ""
}

func cycleRemaining(c *cycleDoc, now time.Time) string {
	if c.TimeLeft != "" {
		return c.TimeLeft
	}
	if exp := parseISO(c.Expiry); !exp.IsZero() {
		return countdown(exp, now)
	}
	return "—"
}

// cycleExpiryLabel keeps the upstream expiry string in a compact form.
// It participates in the synthesized weather ledger key, so it must be
// stable across polls of the same window.
func cycleExpiryLabel(c *cycleDoc) string {
	exp := c.Expiry
	if len(exp) > 16 {
		exp = exp[:16]
	}
	if exp == "" {
		return "—"
	}
	// "2006-01-02T15:04" reads better with a space.
	out := []byte(exp)
	for i := range out {
		if out[i] == 'T' {
			out[i] = ' '
		}
	}
	return string(out)
}
