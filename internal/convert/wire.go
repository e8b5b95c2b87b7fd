// Package convert maps JSON wire payloads of the REST backend onto domain values.
package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	model "github.com/and161185/c3ds-console/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// --- helpers ---

// Coord accepts a coordinate sent as a JSON number, a decimal string or null.
type Coord struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Coord) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		c.Value = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			c.Value = nil
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("coordinate %q: %w", s, err)
		}
		c.Value = &f
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	c.Value = &f
	return nil
}

// MarshalJSON writes the decimal string form the backend uses, or null.
func (c Coord) MarshalJSON() ([]byte, error) {
	if c.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(strconv.FormatFloat(*c.Value, 'f', 6, 64))
}

func point(lat, lon Coord) *model.GeoPoint {
	if lat.Value == nil || lon.Value == nil {
		return nil
	}
	return &model.GeoPoint{Latitude: *lat.Value, Longitude: *lon.Value}
}

func parseID(s string) (u.UUID, error) {
	if s == "" {
		return u.Nil, nil
	}
	var id u.UUID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return u.Nil, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// --- envelopes ---

// Page is the paginated list envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// DecodeList accepts either a paginated envelope or a bare JSON array.
func DecodeList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var p Page[T]
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, err
	}
	if p.Results == nil {
		return []T{}, nil
	}
	return p.Results, nil
}

// --- devices ---

// Device is the wire shape of a device.
type Device struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	DeviceType           string     `json:"device_type"`
	Latitude             Coord      `json:"latitude"`
	Longitude            Coord      `json:"longitude"`
	CertificateAlgorithm string     `json:"certificate_algorithm"`
	Status               string     `json:"status"`
	HasCertificate       bool       `json:"has_certificate"`
	CertificateSerial    string     `json:"certificate_serial"`
	CertificateExpiresAt *time.Time `json:"certificate_expires_at"`
	DownloadExpiresAt    *time.Time `json:"download_expires_at"`
	CreatedAt            *time.Time `json:"created_at"`
}

// ToDevice converts a wire device into the domain value.
func ToDevice(in Device) (model.Device, error) {
	id, err := parseID(in.ID)
	if err != nil {
		return model.Device{}, err
	}
	return model.Device{
		ID:                   id,
		Name:                 in.Name,
		Description:          in.Description,
		DeviceType:           in.DeviceType,
		Location:             point(in.Latitude, in.Longitude),
		CertificateAlgorithm: model.CertificateAlgorithm(in.CertificateAlgorithm),
		Status:               model.DeviceStatus(strings.ToUpper(strings.TrimSpace(in.Status))),
		HasCertificate:       in.HasCertificate || in.CertificateSerial != "",
		CertificateSerial:    in.CertificateSerial,
		CertificateExpiresAt: in.CertificateExpiresAt,
		DownloadExpiresAt:    in.DownloadExpiresAt,
		CreatedAt:            timeOrZero(in.CreatedAt),
	}, nil
}

// ToDevices converts a slice of wire devices.
func ToDevices(in []Device) ([]model.Device, error) {
	out := make([]model.Device, 0, len(in))
	for i, d := range in {
		m, err := ToDevice(d)
		if err != nil {
			return nil, fmt.Errorf("device[%d]: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Certificate is the wire shape returned by certificate generation.
type Certificate struct {
	Serial            string     `json:"serial"`
	SerialNumber      string     `json:"serial_number"`
	ExpiresAt         *time.Time `json:"expires_at"`
	DownloadExpiresAt *time.Time `json:"download_expires_at"`
}

// ToCertificateInfo converts generation metadata.
func ToCertificateInfo(in Certificate) model.CertificateInfo {
	serial := in.Serial
	if serial == "" {
		serial = in.SerialNumber
	}
	return model.CertificateInfo{
		Serial:            serial,
		ExpiresAt:         timeOrZero(in.ExpiresAt),
		DownloadExpiresAt: in.DownloadExpiresAt,
	}
}

// --- messages ---

// Message is the wire shape of a feed message.
type Message struct {
	ID              int64      `json:"id"`
	Device          string     `json:"device"`
	DeviceName      string     `json:"device_name"`
	DeviceLatitude  Coord      `json:"device_latitude"`
	DeviceLongitude Coord      `json:"device_longitude"`
	MessageType     string     `json:"message_type"`
	Timestamp       *time.Time `json:"timestamp"`
	ReceivedAt      *time.Time `json:"received_at"`
	RecievedAt      *time.Time `json:"recieved_at"` // misspelled key some backends still send
	DataPreview     string     `json:"data_preview"`
	Confidence      *float64   `json:"confidence"`
}

// ToMessage converts a wire message into the domain value.
func ToMessage(in Message) (model.Message, error) {
	id, err := parseID(in.Device)
	if err != nil {
		return model.Message{}, err
	}
	received := in.ReceivedAt
	if received == nil {
		received = in.RecievedAt
	}
	return model.Message{
		ID:             in.ID,
		DeviceID:       id,
		DeviceName:     in.DeviceName,
		DeviceLocation: point(in.DeviceLatitude, in.DeviceLongitude),
		Type:           model.MessageType(strings.ToLower(strings.TrimSpace(in.MessageType))),
		Timestamp:      timeOrZero(in.Timestamp),
		ReceivedAt:     timeOrZero(received),
		DataPreview:    in.DataPreview,
		Confidence:     in.Confidence,
	}, nil
}

// ToMessages converts a slice of wire messages, preserving server order.
func ToMessages(in []Message) ([]model.Message, error) {
	out := make([]model.Message, 0, len(in))
	for i, m := range in {
		v, err := ToMessage(m)
		if err != nil {
			return nil, fmt.Errorf("message[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// --- stats ---

// Stats is the wire shape of dashboard statistics.
type Stats struct {
	AlertsLast2h  int `json:"alerts_last_2h"`
	ActiveDevices int `json:"active_devices"`
}

// ToStats converts dashboard statistics.
func ToStats(in Stats) model.Stats {
	return model.Stats{AlertsLast2h: in.AlertsLast2h, ActiveDevices: in.ActiveDevices}
}
