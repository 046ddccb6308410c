// Package event holds the canonical domain records produced by the
// worldstate normalizers, plus the tagged identity keys the dedup
// ledger is addressed by.
package event

import "time"

// Trader is a void-trader arrival window at a relay.
type Trader struct {
	ID       string
	Name     string
	Location string

	Activation time.Time
	Expiry     time.Time
	Active     bool

	// Preformatted countdown labels. Upstream-provided when present,
	// derived from the timestamps otherwise.
	ArrivalLabel string // absolute arrival time
	ArrivalIn    string // countdown to arrival
	ExpiryLabel  string // absolute departure time
	Remaining    string // countdown to departure
}

// Invasion is a contested-territory event carrying a rare reward on at
// least one side. Non-rare and completed invasions never become records.
type Invasion struct {
	ID       string
	Location string

	Attacker string
	Defender string

	AttackerReward string
	DefenderReward string

	// Progress is a ratio (1.0 == 100%). It can exceed 1; clamping is a
	// display concern.
	Progress float64

	Rare bool
}

// Fissure is a Steel Path void fissure at a watched node.
type Fissure struct {
	ID          string
	Node        string // display label from the watch table
	Tier        string
	MissionType string

	Expiry      time.Time
	Remaining   string
	ExpiryLabel string
}

// Cycle is an environmental cycle state. Upstream gives it no stable
// per-occurrence identity; its ledger key is synthesized from
// (domain, state, expiry) so that state *changes* dedup, not polls.
type Cycle struct {
	Domain      string // "earth", "cetus", "vallis", "cambion"
	DomainLabel string // display name
	State       string
	NextState   string
	Remaining   string
	ExpiryLabel string
}
