package api

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/c3ds-console/internal/convert"
	"github.com/and161185/c3ds-console/internal/httpclient"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/query"
)

const participantDevices = "/devices/participant/"

func devicePath(id uuid.UUID) string { return participantDevices + id.String() + "/" }

// KeyMyDevice is the detail key of one owned device.
func KeyMyDevice(id uuid.UUID) query.Key { return KeyMyDevices.With(id.String()) }

func (c *Client) deviceList(ctx context.Context, path string) ([]model.Device, error) {
	resp, err := c.t.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	wire, err := convert.DecodeList[convert.Device](resp.Body)
	if err != nil {
		return nil, err
	}
	return convert.ToDevices(wire)
}

// PublicDevices lists every publicly visible device.
func (c *Client) PublicDevices(ctx context.Context) ([]model.Device, error) {
	return c.deviceList(ctx, "/devices/public/")
}

// PublicDevicesQuery caches the public device list.
func (c *Client) PublicDevicesQuery() query.Query[[]model.Device] {
	return query.Query[[]model.Device]{Key: KeyPublicDevices, Fn: c.PublicDevices}
}

// MyDevices lists the devices owned by the session user.
func (c *Client) MyDevices(ctx context.Context) ([]model.Device, error) {
	return c.deviceList(ctx, participantDevices)
}

// MyDevicesQuery caches the owned device list. enabled may be nil.
func (c *Client) MyDevicesQuery(enabled func() bool) query.Query[[]model.Device] {
	return query.Query[[]model.Device]{Key: KeyMyDevices, Fn: c.MyDevices, Options: query.Options{Enabled: enabled}}
}

// MyDevice fetches one owned device.
func (c *Client) MyDevice(ctx context.Context, id uuid.UUID) (model.Device, error) {
	var d convert.Device
	if err := c.getJSON(ctx, devicePath(id), nil, &d); err != nil {
		return model.Device{}, err
	}
	return convert.ToDevice(d)
}

// MyDeviceQuery caches one owned device. It is disabled for the nil ID.
func (c *Client) MyDeviceQuery(id uuid.UUID) query.Query[model.Device] {
	return query.Query[model.Device]{
		Key:     KeyMyDevice(id),
		Fn:      func(ctx context.Context) (model.Device, error) { return c.MyDevice(ctx, id) },
		Options: query.Options{Enabled: func() bool { return id != uuid.Nil }},
	}
}

// CreateDevice registers a new device.
func (c *Client) CreateDevice(ctx context.Context, in model.DeviceInput) (model.Device, error) {
	if err := c.Validate(in); err != nil {
		return model.Device{}, err
	}
	if in.CertificateAlgorithm == "" {
		in.CertificateAlgorithm = model.DefaultAlgorithm
	}
	var d convert.Device
	if err := c.sendJSON(ctx, http.MethodPost, participantDevices, in, &d); err != nil {
		return model.Device{}, err
	}
	return convert.ToDevice(d)
}

// DeviceUpdate addresses a partial update to one device.
type DeviceUpdate struct {
	ID    uuid.UUID
	Patch model.DevicePatch
}

// UpdateDevice applies a partial update.
func (c *Client) UpdateDevice(ctx context.Context, u DeviceUpdate) (model.Device, error) {
	if err := c.Validate(u.Patch); err != nil {
		return model.Device{}, err
	}
	var d convert.Device
	if err := c.sendJSON(ctx, http.MethodPatch, devicePath(u.ID), u.Patch, &d); err != nil {
		return model.Device{}, err
	}
	return convert.ToDevice(d)
}

// RevokeDevice revokes a device. The server keeps it with status REVOKED.
func (c *Client) RevokeDevice(ctx context.Context, id uuid.UUID) (struct{}, error) {
	return struct{}{}, c.sendJSON(ctx, http.MethodDelete, devicePath(id), nil, nil)
}

func listAndDetail(id uuid.UUID) []query.Key { return []query.Key{KeyMyDevices, KeyMyDevice(id)} }

// CreateDeviceMutation refreshes the owned list after a registration.
func (c *Client) CreateDeviceMutation() query.Mutation[model.DeviceInput, model.Device] {
	return query.Mutation[model.DeviceInput, model.Device]{
		Fn:          c.CreateDevice,
		Invalidates: func(model.DeviceInput, model.Device) []query.Key { return []query.Key{KeyMyDevices} },
	}
}

// UpdateDeviceMutation refreshes the list and the device detail.
func (c *Client) UpdateDeviceMutation() query.Mutation[DeviceUpdate, model.Device] {
	return query.Mutation[DeviceUpdate, model.Device]{
		Fn:          c.UpdateDevice,
		Invalidates: func(u DeviceUpdate, _ model.Device) []query.Key { return listAndDetail(u.ID) },
	}
}

// RevokeDeviceMutation refreshes the list and the device detail.
func (c *Client) RevokeDeviceMutation() query.Mutation[uuid.UUID, struct{}] {
	return query.Mutation[uuid.UUID, struct{}]{
		Fn:          c.RevokeDevice,
		Invalidates: func(id uuid.UUID, _ struct{}) []query.Key { return listAndDetail(id) },
	}
}
