// Package model defines the domain values shared by the resource clients, the cache and the views.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// DeviceStatus is the lifecycle status of a registered device.
type DeviceStatus string

const (
	DeviceStatusPending  DeviceStatus = "PENDING"
	DeviceStatusActive   DeviceStatus = "ACTIVE"
	DeviceStatusInactive DeviceStatus = "INACTIVE"
	DeviceStatusRevoked  DeviceStatus = "REVOKED"
	DeviceStatusExpired  DeviceStatus = "EXPIRED"
)

// Valid reports whether s is one of the known statuses.
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusPending, DeviceStatusActive, DeviceStatusInactive, DeviceStatusRevoked, DeviceStatusExpired:
		return true
	}
	return false
}

// CertificateAlgorithm is the key algorithm requested for a device certificate.
type CertificateAlgorithm string

const (
	AlgorithmECDSAP256 CertificateAlgorithm = "ECDSA_P256"
	AlgorithmECDSAP384 CertificateAlgorithm = "ECDSA_P384"
	AlgorithmRSA2048   CertificateAlgorithm = "RSA_2048"
	AlgorithmRSA4096   CertificateAlgorithm = "RSA_4096"
)

// DefaultAlgorithm is preselected when registering a device.
const DefaultAlgorithm = AlgorithmECDSAP256

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Device is a registered sensor endpoint as seen by the client.
type Device struct {
	ID                   uuid.UUID
	Name                 string
	Description          string
	DeviceType           string
	Location             *GeoPoint // nil when the device has no coordinates
	CertificateAlgorithm CertificateAlgorithm
	Status               DeviceStatus
	HasCertificate       bool
	CertificateSerial    string
	CertificateExpiresAt *time.Time
	DownloadExpiresAt    *time.Time // end of the key/bundle download window
	CreatedAt            time.Time
}

// CanDownload reports whether certificate material may be downloaded for the device.
func (d Device) CanDownload() bool {
	switch d.Status {
	case DeviceStatusActive, DeviceStatusPending, DeviceStatusInactive:
		return true
	case DeviceStatusRevoked, DeviceStatusExpired:
		return false
	}
	return false
}

// CanRevoke reports whether the device may still be revoked.
func (d Device) CanRevoke() bool { return d.Status != DeviceStatusRevoked }

// DeviceInput is the body of create and update calls.
type DeviceInput struct {
	Name                 string               `json:"name,omitempty" validate:"required,max=100"`
	Description          string               `json:"description,omitempty" validate:"max=500"`
	DeviceType           string               `json:"device_type,omitempty" validate:"required,max=50"`
	CertificateAlgorithm CertificateAlgorithm `json:"certificate_algorithm,omitempty" validate:"omitempty,oneof=ECDSA_P256 ECDSA_P384 RSA_2048 RSA_4096"`
	Latitude             *float64             `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude            *float64             `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// DevicePatch is the body of a partial update; nil fields are left untouched.
type DevicePatch struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=500"`
	Latitude    *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// CertificateInfo is returned by certificate generation. It never carries key material.
type CertificateInfo struct {
	Serial            string
	ExpiresAt         time.Time
	DownloadExpiresAt *time.Time
}

// BundleRequest carries the short-lived network credentials baked into a firmware bundle.
type BundleRequest struct {
	WiFiSSID     string `json:"wifi_ssid" validate:"required,max=32"`
	WiFiPassword string `json:"wifi_password" validate:"required,max=64"`
}
