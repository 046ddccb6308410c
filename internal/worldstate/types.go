package worldstate

import (
	"strconv"
	"time"
)

// Upstream document shapes. Only the fields the normalizers depend on
// are declared; unknown fields are ignored by encoding/json.

type traderDoc struct {
	ID          string `json:"id"`
	Character   string `json:"character"`
	Location    string `json:"location"`
	Active      bool   `json:"active"`
	Activation  string `json:"activation"`
	Expiry      string `json:"expiry"`
	StartString string `json:"startString"`
	EndString   string `json:"endString"`
}

type rewardItem struct {
	UniqueName string `json:"uniqueName"`
	Type       string `json:"type"`
	Count      int    `json:"count"`
}

type rewardDoc struct {
	AsString string       `json:"asString"`
	Items    []rewardItem `json:"items"`
	// Some API versions carry the item list under countedItems instead.
	CountedItems []rewardItem `json:"countedItems"`
}

type invasionSide struct {
	Reward rewardDoc `json:"reward"`
}

type invasionDoc struct {
	ID               string       `json:"id"`
	Node             string       `json:"node"`
	AttackingFaction string       `json:"attackingFaction"`
	DefendingFaction string       `json:"defendingFaction"`
	Attacker         invasionSide `json:"attacker"`
	Defender         invasionSide `json:"defender"`
	Completed        bool         `json:"completed"`
	Count            int          `json:"count"`
	Goal             int          `json:"goal"`
}

type fissureDoc struct {
	ID          string `json:"id"`
	Node        string `json:"node"`
	Tier        string `json:"tier"`
	TierNum     int    `json:"tierNum"`
	MissionType string `json:"missionType"`
	Expiry      string `json:"expiry"`
	ETA         string `json:"eta"`
	Active      bool   `json:"active"`
	IsHard      bool   `json:"isHard"`
}

type cycleDoc struct {
	State    string `json:"state"`
	Expiry   string `json:"expiry"`
	TimeLeft string `json:"timeLeft"`
	IsDay    *bool  `json:"isDay"`
	IsWarm   *bool  `json:"isWarm"`
}

type worldstateDoc struct {
	EarthCycle   *cycleDoc `json:"earthCycle"`
	CetusCycle   *cycleDoc `json:"cetusCycle"`
	VallisCycle  *cycleDoc `json:"vallisCycle"`
	CambionCycle *cycleDoc `json:"cambionCycle"`
}

// parseISO parses an upstream ISO-8601 timestamp, zero time on failure.
func parseISO(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// countdown renders the time until t as "2h 05m" / "7m" / "expired".
func countdown(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := t.Sub(now)
	if diff <= 0 {
		return "expired"
	}
	h := int(diff / time.Hour)
	m := int(diff%time.Hour) / int(time.Minute)
	if h > 0 {
		return strconv.Itoa(h) + "h " + pad2(m) + "m"
	}
	return strconv.Itoa(m) + "m"
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// clockLabel renders an absolute timestamp for embed fields.
func clockLabel(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.UTC().Format("01-02 15:04 UTC")
}
