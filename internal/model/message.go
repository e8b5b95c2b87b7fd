package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// MessageType is the kind of device message.
type MessageType string

const (
	MessageAlert     MessageType = "alert"
	MessageHeartbeat MessageType = "heartbeat"
)

// Message is a single device report in the feed.
type Message struct {
	ID             int64
	DeviceID       uuid.UUID
	DeviceName     string
	DeviceLocation *GeoPoint
	Type           MessageType
	Timestamp      time.Time
	ReceivedAt     time.Time
	DataPreview    string
	Confidence     *float64 // probability in [0,1] when the sensor reports one
}

// TimeWindow bounds the age of messages returned by the feed.
type TimeWindow string

const (
	Window1h  TimeWindow = "1h"
	Window6h  TimeWindow = "6h"
	Window24h TimeWindow = "24h"
	Window7d  TimeWindow = "7d"
	WindowAll TimeWindow = "all"
)

// Feed limits.
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

// MessageFilter is the sidebar filter state. An empty Type means all types.
type MessageFilter struct {
	Type       MessageType `validate:"omitempty,oneof=alert heartbeat"`
	TimeWindow TimeWindow  `validate:"omitempty,oneof=1h 6h 24h 7d all"`
	Limit      int         `validate:"gte=0,lte=200"`
}

// DefaultMessageFilter mirrors the initial sidebar state.
func DefaultMessageFilter() MessageFilter {
	return MessageFilter{TimeWindow: WindowAll, Limit: DefaultMessageLimit}
}

// Normalize fills defaults and clamps the limit into [1, MaxMessageLimit].
func (f MessageFilter) Normalize() MessageFilter {
	if f.TimeWindow == "" {
		f.TimeWindow = WindowAll
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultMessageLimit
	case f.Limit > MaxMessageLimit:
		f.Limit = MaxMessageLimit
	}
	return f
}

// Stats are the dashboard counters.
type Stats struct {
	AlertsLast2h  int
	ActiveDevices int
}

// AlertLevel buckets an alert count for display.
type AlertLevel int

const (
	AlertLevelNone AlertLevel = iota
	AlertLevelElevated
	AlertLevelHigh
)

// HighAlertThreshold is the alert count at which the level turns high.
const HighAlertThreshold = 15

// LevelForAlerts returns the display level for n alerts.
func LevelForAlerts(n int) AlertLevel {
	switch {
	case n <= 0:
		return AlertLevelNone
	case n < HighAlertThreshold:
		return AlertLevelElevated
	default:
		return AlertLevelHigh
	}
}

// AlertLevel returns the level for the trailing two-hour alert count.
func (s Stats) AlertLevel() AlertLevel { return LevelForAlerts(s.AlertsLast2h) }
