package main

import (
	"context"
	"fmt"
	"io"

	"github.com/and161185/c3ds-console/internal/api"
	"github.com/and161185/c3ds-console/internal/download"
	"github.com/and161185/c3ds-console/internal/guard"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/nav"
	"github.com/and161185/c3ds-console/internal/query"
	"github.com/and161185/c3ds-console/internal/view"
)

func cmdDevices(ctx context.Context, e *env, args []string) error {
	if err := parse(newFlags("devices", e.errOut), args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	ds, err := query.Get(ctx, e.app.Cache, e.app.API.PublicDevicesQuery())
	if err != nil {
		return err
	}
	return e.show(ds, func(w io.Writer) error { return view.Devices(w, ds) })
}

func cmdMap(ctx context.Context, e *env, args []string) error {
	if err := parse(newFlags("map", e.errOut), args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := e.enter(ctx, nav.Map, guard.Public); err != nil {
		return err
	}
	ds, err := query.Get(ctx, e.app.Cache, e.app.API.PublicDevicesQuery())
	if err != nil {
		return err
	}
	placed := view.Mappable(ds)
	return e.show(placed, func(w io.Writer) error {
		if err := view.Devices(w, placed); err != nil {
			return err
		}
		if hidden := len(ds) - len(placed); hidden > 0 {
			_, err := fmt.Fprintf(w, "%d device(s) without coordinates not shown.\n", hidden)
			return err
		}
		return nil
	})
}

func cmdMyDevices(ctx context.Context, e *env, args []string) error {
	if err := parse(newFlags("my-devices", e.errOut), args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := e.enter(ctx, nav.Dashboard, guard.ParticipantOnly); err != nil {
		return err
	}
	ds, err := query.Get(ctx, e.app.Cache, e.app.API.MyDevicesQuery(e.app.Session.IsParticipant))
	if err != nil {
		return err
	}
	return e.show(ds, func(w io.Writer) error { return view.Devices(w, ds) })
}

// ownedDevice loads one owned device after the participant guard passed.
func ownedDevice(ctx context.Context, e *env, rawID string) (model.Device, error) {
	id, err := parseID(e.errOut, rawID)
	if err != nil {
		return model.Device{}, err
	}
	if err := e.enter(ctx, nav.DeviceDetail(id.String()), guard.ParticipantOnly); err != nil {
		return model.Device{}, err
	}
	return query.Get(ctx, e.app.Cache, e.app.API.MyDeviceQuery(id))
}

func cmdDevice(ctx context.Context, e *env, args []string) error {
	fs := newFlags("device", e.errOut)
	id := fs.String("id", "", "device id")
	if err := parse(fs, args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	d, err := ownedDevice(ctx, e, *id)
	if err != nil {
		return err
	}
	return e.show(d, func(w io.Writer) error { return view.DeviceDetail(w, d) })
}

func cmdAddDevice(ctx context.Context, e *env, args []string) error {
	fs := newFlags("add-device", e.errOut)
	name := fs.String("name", "", "device name")
	typ := fs.String("type", "", "device type")
	desc := fs.String("desc", "", "description")
	alg := fs.String("alg", string(model.DefaultAlgorithm), "certificate algorithm")
	lat := fs.Float64("lat", 0, "latitude")
	lon := fs.Float64("lon", 0, "longitude")
	if err := parse(fs, args); err != nil {
		return err
	}
	set := setFlags(fs)
	if err := need(e.errOut, set["lat"] == set["lon"], "give both -lat and -lon, or neither"); err != nil {
		return err
	}
	in := model.DeviceInput{
		Name:                 *name,
		Description:          *desc,
		DeviceType:           *typ,
		CertificateAlgorithm: model.CertificateAlgorithm(*alg),
	}
	if set["lat"] {
		in.Latitude, in.Longitude = lat, lon
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := e.enter(ctx, nav.Dashboard, guard.ParticipantOnly); err != nil {
		return err
	}
	d, err := query.Mutate(ctx, e.app.Cache, e.app.API.CreateDeviceMutation(), in)
	if err != nil {
		return err
	}
	e.app.Nav.Navigate(nav.DeviceDetail(d.ID.String()))
	return e.show(d, func(w io.Writer) error { return view.DeviceDetail(w, d) })
}

func cmdUpdateDevice(ctx context.Context, e *env, args []string) error {
	fs := newFlags("update-device", e.errOut)
	rawID := fs.String("id", "", "device id")
	name := fs.String("name", "", "device name")
	desc := fs.String("desc", "", "description")
	lat := fs.Float64("lat", 0, "latitude")
	lon := fs.Float64("lon", 0, "longitude")
	if err := parse(fs, args); err != nil {
		return err
	}
	set := setFlags(fs)
	if err := need(e.errOut, set["lat"] == set["lon"], "give both -lat and -lon, or neither"); err != nil {
		return err
	}
	id, err := parseID(e.errOut, *rawID)
	if err != nil {
		return err
	}
	var patch model.DevicePatch
	if set["name"] {
		patch.Name = name
	}
	if set["desc"] {
		patch.Description = desc
	}
	if set["lat"] {
		patch.Latitude, patch.Longitude = lat, lon
	}
	if err := need(e.errOut, len(set) > 1, "nothing to update"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := e.enter(ctx, nav.DeviceDetail(id.String()), guard.ParticipantOnly); err != nil {
		return err
	}
	d, err := query.Mutate(ctx, e.app.Cache, e.app.API.UpdateDeviceMutation(), api.DeviceUpdate{ID: id, Patch: patch})
	if err != nil {
		return err
	}
	return e.show(d, func(w io.Writer) error { return view.DeviceDetail(w, d) })
}

func cmdRevoke(ctx context.Context, e *env, args []string) error {
	fs := newFlags("revoke", e.errOut)
	rawID := fs.String("id", "", "device id")
	if err := parse(fs, args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	d, err := ownedDevice(ctx, e, *rawID)
	if err != nil {
		return err
	}
	if !d.CanRevoke() {
		_, err := fmt.Fprintf(e.out, "Device %s is already revoked.\n", d.Name)
		return err
	}
	if _, err := query.Mutate(ctx, e.app.Cache, e.app.API.RevokeDeviceMutation(), d.ID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.out, "Device %s revoked.\n", d.Name)
	return err
}

func cmdGenCert(ctx context.Context, e *env, args []string) error {
	fs := newFlags("gen-cert", e.errOut)
	rawID := fs.String("id", "", "device id")
	if err := parse(fs, args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	d, err := ownedDevice(ctx, e, *rawID)
	if err != nil {
		return err
	}
	if !d.CanDownload() {
		return fmt.Errorf("device %s is %s; certificates cannot be issued", d.Name, view.StatusLabel(d.Status))
	}
	info, err := query.Mutate(ctx, e.app.Cache, e.app.API.GenerateCertificateMutation(), d.ID)
	if err != nil {
		return err
	}
	return e.show(info, func(w io.Writer) error { return view.Certificate(w, info) })
}

func cmdDownload(ctx context.Context, e *env, cmd string, args []string) error {
	fs := newFlags(cmd, e.errOut)
	rawID := fs.String("id", "", "device id")
	dir := fs.String("dir", "", "destination directory")
	ssid := fs.String("ssid", "", "WiFi network name (bundle only)")
	pass := fs.String("wifi-pass", "", "WiFi password (bundle only)")
	if err := parse(fs, args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	d, err := ownedDevice(ctx, e, *rawID)
	if err != nil {
		return err
	}
	if !d.CanDownload() {
		return fmt.Errorf("device %s is %s; nothing to download", d.Name, view.StatusLabel(d.Status))
	}

	dl := e.app.Downloads
	if *dir != "" {
		dl = download.New(e.app.API, *dir, e.app.Log.Named("download"))
	}
	var path string
	switch cmd {
	case "download-cert":
		path, err = dl.Certificate(ctx, d)
	case "download-key":
		path, err = dl.PrivateKey(ctx, d)
	default:
		path, err = dl.Bundle(ctx, d, model.BundleRequest{WiFiSSID: *ssid, WiFiPassword: *pass})
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.out, "Saved %s\n", path)
	return err
}
