package api

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/c3ds-console/internal/convert"
	"github.com/and161185/c3ds-console/internal/errs"
	"github.com/and161185/c3ds-console/internal/fakebackend"
	"github.com/and161185/c3ds-console/internal/httpclient"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/query"
)

func newAPI(t *testing.T) (*Client, *fakebackend.Server) {
	t.Helper()
	srv := fakebackend.New(t)
	srv.AddUser("alice", "s3cret-pass", true)
	srv.AddUser("bob", "s3cret-pass", false)
	hc, err := httpclient.New(srv.URL, 5*time.Second, httpclient.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return New(hc), srv
}

func login(t *testing.T, c *Client, user string) {
	t.Helper()
	require.NoError(t, c.Login(context.Background(), model.Credentials{Username: user, Password: "s3cret-pass"}))
}

func f64(v float64) *float64 { return &v }

func TestLogin_OpensSession(t *testing.T) {
	t.Parallel()
	c, srv := newAPI(t)
	ctx := context.Background()

	_, err := c.Me(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	login(t, c, "alice")
	require.Equal(t, 1, srv.Hits("GET /auth/csrf/"))

	u, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.True(t, u.IsParticipant())

	require.NoError(t, c.Logout(ctx))
	_, err = c.Me(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestLogin_Rejected(t *testing.T) {
	t.Parallel()
	c, srv := newAPI(t)
	ctx := context.Background()

	err := c.Login(ctx, model.Credentials{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, errs.ErrValidation)
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Invalid username or password.", apiErr.Message)

	err = c.Login(ctx, model.Credentials{Username: "alice"})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Equal(t, []string{"This field is required."}, errs.FieldErrors(err)["password"])
	require.Equal(t, 1, srv.Hits("POST /auth/login/"), "local validation must not reach the server")
}

func TestRegister(t *testing.T) {
	t.Parallel()
	c, _ := newAPI(t)
	ctx := context.Background()

	reg := model.Registration{
		Username:  "carol",
		Email:     "carol@example.test",
		Password1: "long-enough",
		Password2: "long-enough",
		UserType:  model.UserTypeParticipant,
	}
	require.NoError(t, c.Register(ctx, reg))
	login(t, c, "alice")

	reg.Username = "alice"
	err := c.Register(ctx, reg)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Contains(t, errs.FieldErrors(err)["username"][0], "already exists")

	reg.Password2 = "different"
	err = c.Register(ctx, reg)
	require.Equal(t, []string{"The two password fields didn't match."}, errs.FieldErrors(err)["password2"])
}

func TestPublicDevices(t *testing.T) {
	t.Parallel()
	c, srv := newAPI(t)
	srv.AddDevice("alice", convert.Device{
		Name:      "ESP32-Sensor-01",
		Status:    "active",
		Latitude:  convert.Coord{Value: f64(54.6872)},
		Longitude: convert.Coord{Value: f64(25.2797)},
	})
	srv.AddDevice("alice", convert.Device{Name: "Unplaced"})

	ds, err := c.PublicDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 2)
	require.Equal(t, model.DeviceStatusActive, ds[0].Status)
	require.NotNil(t, ds[0].Location)
	require.InDelta(t, 54.6872, ds[0].Location.Latitude, 1e-6)
	require.Nil(t, ds[1].Location)
}

func TestMyDevices_RequiresParticipant(t *testing.T) {
	t.Parallel()
	c, _ := newAPI(t)
	ctx := context.Background()

	_, err := c.MyDevices(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	login(t, c, "bob")
	_, err = c.MyDevices(ctx)
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestDeviceLifecycle(t *testing.T) {
	t.Parallel()
	c, srv := newAPI(t)
	ctx := context.Background()
	login(t, c, "alice")

	d, err := c.CreateDevice(ctx, model.DeviceInput{Name: "probe-7", DeviceType: "ESP8266", Latitude: f64(54.7), Longitude: f64(25.3)})
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusPending, d.Status)
	stored, ok := srv.Device(d.ID.String())
	require.True(t, ok)
	require.Equal(t, string(model.DefaultAlgorithm), stored.CertificateAlgorithm)

	name := "probe-7b"
	d, err = c.UpdateDevice(ctx, DeviceUpdate{ID: d.ID, Patch: model.DevicePatch{Name: &name}})
	require.NoError(t, err)
	require.Equal(t, "probe-7b", d.Name)

	info, err := c.GenerateCertificate(ctx, d.ID)
	require.NoError(t, err)
	require.NotEmpty(t, info.Serial)
	require.NotNil(t, info.DownloadExpiresAt)

	cert, err := c.CertificatePEM(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(cert), "-----BEGIN CERTIFICATE-----"))
	key, err := c.PrivateKeyPEM(ctx, d.ID)
	require.NoError(t, err)
	require.Contains(t, string(key), "PRIVATE KEY")

	zip, err := c.CodeBundle(ctx, d.ID, model.BundleRequest{WiFiSSID: "lab", WiFiPassword: "pw"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(zip), "PK"))

	_, err = c.RevokeDevice(ctx, d.ID)
	require.NoError(t, err)
	d, err = c.MyDevice(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusRevoked, d.Status)
	require.False(t, d.CanRevoke())

	_, err = c.MyDevice(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCodeBundle_Expired(t *testing.T) {
	t.Parallel()
	c, srv := newAPI(t)
	ctx := context.Background()
	login(t, c, "alice")
	id := uuid.FromStringOrNil(srv.AddDevice("alice", convert.Device{Name: "x"}))
	srv.SetBundleExpired(true)

	_, err := c.CodeBundle(ctx, id, model.BundleRequest{WiFiSSID: "lab", WiFiPassword: "pw"})
	require.ErrorIs(t, err, errs.ErrExpired)

	_, err = c.CodeBundle(ctx, id, model.BundleRequest{WiFiSSID: strings.Repeat("s", 33), WiFiPassword: "pw"})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.NotEmpty(t, errs.FieldErrors(err)["wifi_ssid"])
}

func TestMessages_QueryParameters(t *testing.T) {
	t.Parallel()
	c, srv := newAPI(t)
	ctx := context.Background()
	devID := uuid.Must(uuid.NewV4()).String()
	ts := time.Date(2026, 1, 27, 22, 21, 44, 0, time.UTC)
	older := ts.Add(-time.Minute)
	srv.AddMessages(
		convert.Message{ID: 1, Device: devID, MessageType: "heartbeat", Timestamp: &older},
		convert.Message{ID: 2, Device: devID, MessageType: "alert", Timestamp: &ts},
	)

	ms, err := c.Messages(ctx, model.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, ms, 2)
	require.Equal(t, int64(2), ms[0].ID, "server order is newest first")
	q := srv.LastQuery("GET /messages/")
	require.NotContains(t, q, "message_type")
	require.Contains(t, q, "time_window=all")
	require.Contains(t, q, "limit=50")

	ms, err = c.Messages(ctx, model.MessageFilter{Type: model.MessageAlert, TimeWindow: model.Window24h, Limit: 500})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	q = srv.LastQuery("GET /messages/")
	require.Contains(t, q, "message_type=alert")
	require.Contains(t, q, "limit=200")
}

func TestMessageKeys(t *testing.T) {
	t.Parallel()

	a := KeyMessagesFor(model.MessageFilter{Type: model.MessageAlert})
	b := KeyMessagesFor(model.MessageFilter{})
	require.NotEqual(t, a.String(), b.String())
	require.True(t, a.HasPrefix(KeyMessages))
	require.Equal(t, b.String(), KeyMessagesFor(model.DefaultMessageFilter()).String())
}

func TestMutations_RefreshOwnedList(t *testing.T) {
	t.Parallel()
	c, srv := newAPI(t)
	ctx := context.Background()
	login(t, c, "alice")
	cache := query.New(query.WithRetry(0, 0))

	list, err := query.Get(ctx, cache, c.MyDevicesQuery(nil))
	require.NoError(t, err)
	require.Empty(t, list)

	d, err := query.Mutate(ctx, cache, c.CreateDeviceMutation(), model.DeviceInput{Name: "probe", DeviceType: "ESP32"})
	require.NoError(t, err)

	list, err = query.Fetch(ctx, cache, c.MyDevicesQuery(nil))
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, srv.Hits("GET /devices/participant/"))

	detail, err := query.Get(ctx, cache, c.MyDeviceQuery(d.ID))
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusPending, detail.Status)

	_, err = query.Mutate(ctx, cache, c.GenerateCertificateMutation(), d.ID)
	require.NoError(t, err)
	detail, err = query.Fetch(ctx, cache, c.MyDeviceQuery(d.ID))
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusActive, detail.Status)
	require.True(t, detail.HasCertificate)

	_, err = query.Get(ctx, cache, c.MyDeviceQuery(uuid.Nil))
	require.ErrorIs(t, err, query.ErrDisabled)
}

func TestRevokeMutation_RefreshesCachedListAndDetail(t *testing.T) {
	t.Parallel()
	c, _ := newAPI(t)
	ctx := context.Background()
	login(t, c, "alice")
	cache := query.New(query.WithRetry(0, 0))

	d, err := c.CreateDevice(ctx, model.DeviceInput{Name: "porch", DeviceType: "ESP32"})
	require.NoError(t, err)
	_, err = c.GenerateCertificate(ctx, d.ID)
	require.NoError(t, err)

	list, err := query.Get(ctx, cache, c.MyDevicesQuery(nil))
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, model.DeviceStatusActive, list[0].Status)
	detail, err := query.Get(ctx, cache, c.MyDeviceQuery(d.ID))
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusActive, detail.Status)
	require.True(t, detail.CanDownload())

	_, err = query.Mutate(ctx, cache, c.RevokeDeviceMutation(), d.ID)
	require.NoError(t, err)

	list, err = query.Fetch(ctx, cache, c.MyDevicesQuery(nil))
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusRevoked, list[0].Status)
	require.False(t, list[0].CanDownload())

	detail, err = query.Fetch(ctx, cache, c.MyDeviceQuery(d.ID))
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusRevoked, detail.Status)
	require.False(t, detail.CanDownload())
	require.False(t, detail.CanRevoke())
}
