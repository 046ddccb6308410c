package event

import "testing"

func TestKeyPersistedForms(t *testing.T) {
	cases := []struct {
		key  Key
		want string
	}{
		{TraderPreKey("5f3e"), "pre:5f3e"},
		{TraderArriveKey("5f3e"), "arrive:5f3e"},
		{InvasionKey("abc123"), "abc123"},
		{FissureKey("def456"), "def456"},
		{WeatherKey("earth", "Night", "2026-03-10 15:42"), "weather:earth:Night:2026-03-10 15:42"},
	}
	for _, c := range cases {
		if got := c.key.String(); got != c.want {
			t.Fatalf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestKeyCategoriesNeverCollide(t *testing.T) {
	pre := TraderPreKey("x")
	arrive := TraderArriveKey("x")
	if pre.String() == arrive.String() {
		t.Fatalf("pre and arrive keys for the same id must differ")
	}
	if pre == arrive {
		t.Fatalf("tagged keys for the same id must not be equal")
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	for _, k := range []Key{
		TraderPreKey("a"),
		TraderArriveKey("b"),
		WeatherKey("earth", "Day", "2026-03-10 15:42"),
	} {
		if got := ParseKey(k.String()); got != k {
			t.Fatalf("round-trip of %q = %+v, want %+v", k.String(), got, k)
		}
	}
	// Bare ids come back as invasions; the persisted form is unchanged.
	got := ParseKey("abc123")
	if got.Cat != CatInvasion || got.String() != "abc123" {
		t.Fatalf("unexpected bare-id parse: %+v", got)
	}
}

func TestKeyIsZero(t *testing.T) {
	if !(Key{}).IsZero() {
		t.Fatalf("zero key must report zero")
	}
	if !InvasionKey("").IsZero() {
		t.Fatalf("empty id must report zero")
	}
	if InvasionKey("x").IsZero() {
		t.Fatalf("real key must not report zero")
	}
}
