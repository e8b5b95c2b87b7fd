package view

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/c3ds-console/internal/model"
)

func TestStatusLabel_CoversEveryStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []model.DeviceStatus{
		model.DeviceStatusPending, model.DeviceStatusActive, model.DeviceStatusInactive,
		model.DeviceStatusRevoked, model.DeviceStatusExpired,
	} {
		require.True(t, s.Valid())
		require.NotContains(t, StatusLabel(s), "Unknown", s)
	}
	require.Equal(t, "Unknown(ARCHIVED)", StatusLabel("ARCHIVED"))
}

func TestTypeLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ALERT", TypeLabel(model.MessageAlert))
	require.Equal(t, "HEARTBEAT", TypeLabel(model.MessageHeartbeat))
	require.Equal(t, "UNKNOWN", TypeLabel(""))
	require.Equal(t, "STATUS", TypeLabel("status"))
}

func TestRelativeTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 27, 22, 0, 0, 0, time.UTC)
	require.Equal(t, "Just now", RelativeTime(now, now.Add(-30*time.Second)))
	require.Equal(t, "5m ago", RelativeTime(now, now.Add(-5*time.Minute)))
	require.Equal(t, "3h ago", RelativeTime(now, now.Add(-3*time.Hour)))
	require.Equal(t, "-", RelativeTime(now, time.Time{}))
	require.Len(t, RelativeTime(now, now.Add(-72*time.Hour)), len("2006-01-02"))
}

func TestPreviewAndConfidence(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 150)
	require.Equal(t, strings.Repeat("x", 100)+"...", Preview(long))
	require.Equal(t, "short", Preview(" short "))

	c := 0.95
	require.Equal(t, "95%", Confidence(&c))
	require.Equal(t, "-", Confidence(nil))
}

func TestGroupByDevice(t *testing.T) {
	t.Parallel()

	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	now := time.Now()
	ms := []model.Message{
		{ID: 5, DeviceID: a, DeviceName: "a", Type: model.MessageAlert, Timestamp: now},
		{ID: 4, DeviceID: b, DeviceName: "b", Type: model.MessageHeartbeat, Timestamp: now.Add(-time.Minute)},
		{ID: 3, DeviceID: a, DeviceName: "a", Type: model.MessageHeartbeat, Timestamp: now.Add(-2 * time.Minute)},
		{ID: 2, DeviceID: a, DeviceName: "a", Type: model.MessageAlert, Timestamp: now.Add(-3 * time.Minute)},
	}
	gs := GroupByDevice(ms)
	require.Len(t, gs, 2)
	require.Equal(t, a, gs[0].DeviceID)
	require.Equal(t, []int64{5, 3, 2}, []int64{gs[0].Messages[0].ID, gs[0].Messages[1].ID, gs[0].Messages[2].ID})
	require.Equal(t, 2, gs[0].Alerts)
	require.Equal(t, model.AlertLevelElevated, gs[0].Level())
	require.Equal(t, model.AlertLevelNone, gs[1].Level())
	require.Equal(t, int64(5), gs[0].Latest().ID)

	require.Empty(t, GroupByDevice(nil))
}

func TestMappable(t *testing.T) {
	t.Parallel()

	ds := []model.Device{
		{Name: "placed", Location: &model.GeoPoint{Latitude: 54.7, Longitude: 25.3}},
		{Name: "unplaced"},
	}
	got := Mappable(ds)
	require.Len(t, got, 1)
	require.Equal(t, "placed", got[0].Name)
}

func TestDeviceDetail_ActionsFollowStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, DeviceDetail(&buf, model.Device{Name: "p", Status: model.DeviceStatusActive}))
	require.Contains(t, buf.String(), "download-bundle")
	require.Contains(t, buf.String(), "revoke")

	buf.Reset()
	require.NoError(t, DeviceDetail(&buf, model.Device{Name: "p", Status: model.DeviceStatusRevoked}))
	require.NotContains(t, buf.String(), "download")
	require.NotContains(t, buf.String(), "revoke")
	require.NotContains(t, buf.String(), "Actions")
}

func TestTables(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Devices(&buf, nil))
	require.Equal(t, "No devices.\n", buf.String())

	buf.Reset()
	require.NoError(t, Stats(&buf, model.Stats{AlertsLast2h: 20, ActiveDevices: 3}))
	require.Contains(t, buf.String(), "HIGH")

	buf.Reset()
	c := 0.5
	require.NoError(t, Messages(&buf, []model.Message{{DeviceName: "probe", Type: model.MessageAlert, Confidence: &c, Timestamp: time.Now()}}, time.Now()))
	out := buf.String()
	require.Contains(t, out, "ALERT")
	require.Contains(t, out, "probe")
	require.Contains(t, out, "50%")

	buf.Reset()
	require.NoError(t, JSON(&buf, map[string]int{"a": 1}))
	require.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
