package worldstate

import (
	"encoding/json"
	"time"

	"tennowatch/internal/event"
)

const (
	defaultTraderName = "Baro Ki'Teer"
	unknownLocation   = "unknown"
)

// NormalizeTraders turns the voidTraders document into trader records.
// A nil or malformed document yields an empty set, never an error.
// Traders whose window already expired are dropped.
func NormalizeTraders(raw json.RawMessage, now time.Time) []event.Trader {
	if len(raw) == 0 {
		return nil
	}

	// Some API versions return a single object instead of a list.
	var docs []traderDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		var single traderDoc
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		docs = []traderDoc{single}
	}

	out := make([]event.Trader, 0, len(docs))
	for _, d := range docs {
		if d == (traderDoc{}) {
			continue
		}
		activation := parseISO(d.Activation)
		expiry := parseISO(d.Expiry)
		if !expiry.IsZero() && now.After(expiry) {
			continue
		}

		name := d.Character
		if name == "" {
			name = defaultTraderName
		}
		location := d.Location
		if location == "" {
			location = unknownLocation
		}

		arrivalIn := d.StartString
		if arrivalIn == "" {
			arrivalIn = countdown(activation, now)
		}
		remaining := d.EndString
		if remaining == "" {
			remaining = countdown(expiry, now)
		}

		out = append(out, event.Trader{
			ID:           d.ID,
			Name:         name,
			Location:     location,
			Activation:   activation,
			Expiry:       expiry,
			Active:       d.Active,
			ArrivalLabel: clockLabel(activation),
			ArrivalIn:    arrivalIn,
			ExpiryLabel:  clockLabel(expiry),
			Remaining:    remaining,
		})
	}
	return out
}
