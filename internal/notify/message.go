package notify

import (
	"fmt"
	"time"

	"tennowatch/internal/event"
)

// Message is the transient notification shape handed to the webhook.
// It is never persisted.
type Message struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
	Timestamp   time.Time
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Wire envelope: {"embeds":[{title, description, color, fields, footer, timestamp}]}.

type envelope struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

func (m Message) toEmbed() embed {
	e := embed{
		Title:       m.Title,
		Description: m.Description,
		Color:       m.Color,
	}
	for _, f := range m.Fields {
		e.Fields = append(e.Fields, embedField(f))
	}
	if m.Footer != "" {
		e.Footer = &embedFooter{Text: m.Footer}
	}
	if !m.Timestamp.IsZero() {
		e.Timestamp = m.Timestamp.UTC().Format(time.RFC3339)
	}
	return e
}

// Embed colors, carried over from the product's established palette.
const (
	colorTraderPre    = 0xFFA500
	colorTraderArrive = 0xFFD700
	colorInvasion     = 0xE74C3C
	colorFissure      = 0x8E44AD
	colorWeather      = 0x3A86FF
)

const footerText = "TennoReporter"

func TraderPreMessage(t event.Trader, now time.Time) Message {
	return Message{
		Title:       "🛸 Void trader incoming!",
		Description: fmt.Sprintf("**%s** arrives at **%s** within 3 days", t.Name, t.Location),
		Color:       colorTraderPre,
		Fields: []Field{
			{Name: "Arrives", Value: t.ArrivalLabel, Inline: true},
			{Name: "Countdown", Value: t.ArrivalIn, Inline: true},
			{Name: "Departs", Value: t.ExpiryLabel, Inline: true},
		},
		Footer:    footerText,
		Timestamp: now,
	}
}

func TraderArriveMessage(t event.Trader, now time.Time) Message {
	return Message{
		Title:       "🛸 Void trader has arrived!",
		Description: fmt.Sprintf("**%s** is now at **%s**", t.Name, t.Location),
		Color:       colorTraderArrive,
		Fields: []Field{
			{Name: "Remaining", Value: t.Remaining, Inline: true},
			{Name: "Departs", Value: t.ExpiryLabel, Inline: true},
		},
		Footer:    footerText,
		Timestamp: now,
	}
}

func InvasionMessage(inv event.Invasion, now time.Time) Message {
	return Message{
		Title:       "⚠️ Rare invasion reward!",
		Description: fmt.Sprintf("**%s** — %s ▶ %s", inv.Location, inv.Attacker, inv.Defender),
		Color:       colorInvasion,
		Fields: []Field{
			{Name: "Attacker reward", Value: inv.AttackerReward, Inline: true},
			{Name: "Defender reward", Value: inv.DefenderReward, Inline: true},
			{Name: "Progress", Value: fmt.Sprintf("%.1f%%", inv.Progress*100), Inline: false},
		},
		Footer:    footerText,
		Timestamp: now,
	}
}

func FissureMessage(f event.Fissure, now time.Time) Message {
	return Message{
		Title:       "🌀 Steel Path fissure update",
		Description: fmt.Sprintf("**%s** — %s fissure", f.Node, f.Tier),
		Color:       colorFissure,
		Fields: []Field{
			{Name: "🎯 Mission", Value: f.MissionType, Inline: true},
			{Name: "⌛ Remaining", Value: f.Remaining, Inline: true},
			{Name: "📅 Expires", Value: f.ExpiryLabel, Inline: true},
		},
		Footer:    footerText,
		Timestamp: now,
	}
}

func WeatherMessage(c event.Cycle, now time.Time) Message {
	fields := []Field{
		{Name: "Current state", Value: c.State, Inline: true},
		{Name: "Remaining", Value: c.Remaining, Inline: true},
		{Name: "Changes at", Value: c.ExpiryLabel, Inline: false},
	}
	if c.NextState != "" {
		fields = append(fields, Field{Name: "Next state", Value: c.NextState, Inline: true})
	}
	return Message{
		Title:     fmt.Sprintf("🌦 %s weather update", c.DomainLabel),
		Color:     colorWeather,
		Fields:    fields,
		Footer:    footerText,
		Timestamp: now,
	}
}
