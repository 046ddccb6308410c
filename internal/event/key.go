package event

import "strings"

// Category tags a ledger key so identities from different notification
// categories can never collide, even when the opaque payloads match.
type Category uint8

const (
	CatTraderPre Category = iota + 1
	CatTraderArrive
	CatInvasion
	CatFissure
	CatWeather
)

// Key is a tagged identity for one notifiable event.
type Key struct {
	Cat Category
	ID  string
}

func TraderPreKey(id string) Key    { return Key{Cat: CatTraderPre, ID: id} }
func TraderArriveKey(id string) Key { return Key{Cat: CatTraderArrive, ID: id} }
func InvasionKey(id string) Key     { return Key{Cat: CatInvasion, ID: id} }
func FissureKey(id string) Key      { return Key{Cat: CatFissure, ID: id} }

// WeatherKey builds the synthesized cycle identity. Deduplication is by
// state equality: the same (domain, state, window) never re-announces.
func WeatherKey(domain, state, expiryLabel string) Key {
	return Key{Cat: CatWeather, ID: domain + ":" + state + ":" + expiryLabel}
}

func (c Category) prefix() string {
	switch c {
	case CatTraderPre:
		return "pre:"
	case CatTraderArrive:
		return "arrive:"
	case CatWeather:
		return "weather:"
	default:
		// Invasions and fissures persist as the bare upstream id.
		return ""
	}
}

// IsZero reports whether the key carries no identity. Zero keys are
// never written to the ledger.
func (k Key) IsZero() bool { return k.ID == "" || k.Cat == 0 }

// String returns the persisted ledger form of the key.
func (k Key) String() string { return k.Cat.prefix() + k.ID }

// ParseKey recovers a Key from its persisted form. Unprefixed keys are
// ambiguous between invasions and fissures; they round-trip through
// CatInvasion, which is harmless because both categories persist and
// purge identically.
func ParseKey(s string) Key {
	switch {
	case strings.HasPrefix(s, "pre:"):
		return Key{Cat: CatTraderPre, ID: strings.TrimPrefix(s, "pre:")}
	case strings.HasPrefix(s, "arrive:"):
		return Key{Cat: CatTraderArrive, ID: strings.TrimPrefix(s, "arrive:")}
	case strings.HasPrefix(s, "weather:"):
		return Key{Cat: CatWeather, ID: strings.TrimPrefix(s, "weather:")}
	default:
		return Key{Cat: CatInvasion, ID: s}
	}
}
