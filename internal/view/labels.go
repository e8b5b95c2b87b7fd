// Package view renders domain values for the terminal.
package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/and161185/c3ds-console/internal/model"
)

// StatusLabel is the display label of a device status.
func StatusLabel(s model.DeviceStatus) string {
	switch s {
	case model.DeviceStatusPending:
		return "Pending"
	case model.DeviceStatusActive:
		return "Active"
	case model.DeviceStatusInactive:
		return "Inactive"
	case model.DeviceStatusRevoked:
		return "Revoked"
	case model.DeviceStatusExpired:
		return "Expired"
	}
	return fmt.Sprintf("Unknown(%s)", string(s))
}

// TypeLabel is the badge of a message type.
func TypeLabel(t model.MessageType) string {
	switch t {
	case model.MessageAlert:
		return "ALERT"
	case model.MessageHeartbeat:
		return "HEARTBEAT"
	}
	if t == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(string(t))
}

// LevelLabel names an alert level.
func LevelLabel(l model.AlertLevel) string {
	switch l {
	case model.AlertLevelNone:
		return "calm"
	case model.AlertLevelElevated:
		return "elevated"
	case model.AlertLevelHigh:
		return "HIGH"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// RelativeTime renders t as an age relative to now.
func RelativeTime(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	}
	return t.Local().Format("2006-01-02")
}

// Coordinates renders a location or "-".
func Coordinates(p *model.GeoPoint) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.6f, %.6f", p.Latitude, p.Longitude)
}

// Confidence renders a probability as a percentage or "-".
func Confidence(c *float64) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *c*100)
}

// PreviewLen bounds message previews.
const PreviewLen = 100

// Preview shortens s to PreviewLen runes.
func Preview(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= PreviewLen {
		return string(r)
	}
	return string(r[:PreviewLen]) + "..."
}

func optTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
